package browser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// WaitTool waits for elements or conditions in the browser session.
type WaitTool struct {
	registry *session.Registry
}

// NewWaitTool creates a new wait tool.
func NewWaitTool(registry *session.Registry) *WaitTool {
	return &WaitTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *WaitTool) Name() string {
	return "browser_wait"
}

// Description returns the tool description.
func (t *WaitTool) Description() string {
	return "Wait for an element to reach a specific state in the browser session. Useful for waiting for dynamic content, loading indicators, or elements to appear/disappear."
}

// Schema returns the tool's JSON schema.
func (t *WaitTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the element to wait for (e.g., '.loading-spinner', '#content')",
			},
			"state": map[string]interface{}{
				"type":        "string",
				"description": "State to wait for: 'attached' (in DOM), 'detached' (removed from DOM), 'visible' (default), or 'hidden'",
			},
			"timeout": timeoutProperty,
			"page":    pageProperty,
		},
		[]string{"session", "selector"},
	)
}

// WaitInput represents the parameters for waiting.
type WaitInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Session  string   `xml:"session"`
	Selector string   `xml:"selector"`
	State    string   `xml:"state"`
	Timeout  *float64 `xml:"timeout"`
	Page     *int     `xml:"page"`
}

var validSelectorStates = map[string]bool{
	"attached": true,
	"detached": true,
	"visible":  true,
	"hidden":   true,
}

// Execute waits for an element. A timeout is reported as a result.
func (t *WaitTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input WaitInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}
	state := input.State
	if state == "" {
		state = "visible"
	}
	if !validSelectorStates[state] {
		return "", nil, fmt.Errorf("invalid state: %s (must be 'attached', 'detached', 'visible', or 'hidden')", state)
	}
	timeout, err := timeoutFrom(input.Timeout, t.registry.Options().ActionTimeout)
	if err != nil {
		return "", nil, err
	}

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}
	page, err := pageOf(s, input.Page)
	if err != nil {
		return "", nil, err
	}

	meta := map[string]interface{}{
		"session":  input.Session,
		"selector": input.Selector,
		"state":    state,
	}
	if err := page.WaitForSelector(input.Selector, state, timeout); err != nil {
		if !errors.Is(err, driver.ErrTimeout) {
			return "", nil, fmt.Errorf("wait failed: %w", err)
		}
		meta["reached"] = false
		return fmt.Sprintf(`Wait timed out

- Session: %s
- Selector: %s
- State: %s
- Timeout: %s

The element did not reach the requested state in time.`,
			input.Session, input.Selector, state, timeout), meta, nil
	}

	meta["reached"] = true
	result := fmt.Sprintf(`Wait completed successfully

Wait Details:
- Session: %s
- Selector: %s
- State: %s
- Timeout: %s
- Current URL: %s

The element reached the desired state. You can now proceed with extraction, clicking, or other interactions.`,
		input.Session,
		input.Selector,
		state,
		timeout,
		page.URL(),
	)

	return result, meta, nil
}
