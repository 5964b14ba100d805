// Package dispatch looks up tools by name and runs them for the transports.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/entrhq/browserd/pkg/logging"
	"github.com/entrhq/browserd/pkg/tools"
)

// ErrUnknownTool is returned for names no tool is registered under.
var ErrUnknownTool = errors.New("unknown tool")

// Result is the outcome of one tool call. A tool that fails sets Error and
// leaves Output empty.
type Result struct {
	Tool     string                 `json:"tool"`
	Output   string                 `json:"output"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Duration time.Duration          `json:"duration_ns"`
}

// Failed reports whether the tool returned an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// Info describes a registered tool.
type Info struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Schema      map[string]interface{} `json:"schema"`
}

// Dispatcher is a registry of tools keyed by name.
type Dispatcher struct {
	logger *logging.Logger

	mu    sync.RWMutex
	tools map[string]tools.Tool
}

// New returns a dispatcher serving the given tools.
func New(logger *logging.Logger, ts ...tools.Tool) (*Dispatcher, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	d := &Dispatcher{logger: logger, tools: make(map[string]tools.Tool, len(ts))}
	for _, t := range ts {
		if err := d.Register(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Register adds a tool. Names must be unique.
func (d *Dispatcher) Register(tool tools.Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	d.tools[name] = tool
	return nil
}

// Get returns the tool registered under name.
func (d *Dispatcher) Get(name string) (tools.Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tools[name]
	return t, ok
}

// List describes every tool, ordered by name.
func (d *Dispatcher) List() []Info {
	d.mu.RLock()
	out := make([]Info, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, Info{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Call runs the named tool with an <arguments> block. Only an unknown name
// is returned as an error; tool failures are reported in the Result.
func (d *Dispatcher) Call(ctx context.Context, name string, argsXML []byte) (Result, error) {
	tool, ok := d.Get(name)
	if !ok {
		return Result{Tool: name}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if len(argsXML) == 0 {
		argsXML = []byte("<arguments></arguments>")
	}

	start := time.Now()
	output, metadata, err := d.execute(ctx, tool, argsXML)
	res := Result{
		Tool:     name,
		Output:   output,
		Metadata: metadata,
		Duration: time.Since(start),
	}
	if err != nil {
		res.Output = ""
		res.Error = err.Error()
		d.logger.Warnf("tool %s failed after %s: %v", name, res.Duration, err)
		return res, nil
	}
	d.logger.Debugf("tool %s completed in %s", name, res.Duration)
	return res, nil
}

// CallXML parses a <tool> call out of text and runs it.
func (d *Dispatcher) CallXML(ctx context.Context, text string) (Result, error) {
	call, _, err := tools.ParseToolCall(text)
	if err != nil {
		return Result{}, err
	}
	return d.Call(ctx, call.ToolName, call.GetArgumentsXML())
}

// execute runs tool, turning a panic into an error.
func (d *Dispatcher) execute(ctx context.Context, tool tools.Tool, argsXML []byte) (output string, metadata map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorf("tool %s panicked: %v\n%s", tool.Name(), r, debug.Stack())
			output, metadata, err = "", nil, fmt.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Execute(ctx, argsXML)
}
