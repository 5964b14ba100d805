package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// DefaultLogLimit is the number of most recent entries returned by the log tools.
const DefaultLogLimit = 50

// ConsoleLogsTool returns the captured console messages of a session.
type ConsoleLogsTool struct {
	registry *session.Registry
}

// NewConsoleLogsTool creates a new console logs tool.
func NewConsoleLogsTool(registry *session.Registry) *ConsoleLogsTool {
	return &ConsoleLogsTool{registry: registry}
}

// Name returns the tool name.
func (t *ConsoleLogsTool) Name() string {
	return "browser_console_logs"
}

// Description returns the tool description.
func (t *ConsoleLogsTool) Description() string {
	return "Get console messages and uncaught page errors captured in a browser session, oldest first. Can be filtered to errors, warnings or a message type."
}

// Schema returns the tool's JSON schema.
func (t *ConsoleLogsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"level": map[string]interface{}{
				"type":        "string",
				"description": "Filter: 'all' (default), 'error', 'warning', or a console message type such as 'log' or 'info'",
			},
			"contains": map[string]interface{}{
				"type":        "string",
				"description": "Only return messages containing this text (case-insensitive)",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of most recent entries to return. Default: 50",
			},
		},
		[]string{"session"},
	)
}

// ConsoleLogsInput defines the input parameters.
type ConsoleLogsInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Session  string   `xml:"session"`
	Level    string   `xml:"level"`
	Contains string   `xml:"contains"`
	Limit    *int     `xml:"limit"`
}

// Execute queries the console log.
func (t *ConsoleLogsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ConsoleLogsInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	limit, err := logLimit(input.Limit)
	if err != nil {
		return "", nil, err
	}

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}

	level := strings.ToLower(strings.TrimSpace(input.Level))
	contains := strings.ToLower(input.Contains)
	entries := s.Console.Filter(func(e capture.ConsoleEntry) bool {
		switch level {
		case "", "all":
		case "error", "errors":
			if !e.IsError() {
				return false
			}
		case "warning", "warn", "warnings":
			if !e.IsWarning() {
				return false
			}
		default:
			if !strings.EqualFold(e.Type, level) {
				return false
			}
		}
		return contains == "" || strings.Contains(strings.ToLower(e.Text), contains)
	}, limit)

	total := s.Console.Len()
	meta := map[string]interface{}{
		"session":  input.Session,
		"total":    total,
		"returned": len(entries),
		"entries":  entries,
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No matching console messages in session '%s' (%d captured).", input.Session, total), meta, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Console messages for session '%s': %d of %d captured\n\n", input.Session, len(entries), total)
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s] [%s] %s", e.Timestamp.Format("15:04:05.000"), strings.ToUpper(e.Type), e.Text)
		if e.Location.URL != "" {
			fmt.Fprintf(&b, " (%s:%d:%d)", e.Location.URL, e.Location.Line, e.Location.Column)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), meta, nil
}

func logLimit(limit *int) (int, error) {
	if limit == nil {
		return DefaultLogLimit, nil
	}
	if *limit < 1 || *limit > 1000 {
		return 0, fmt.Errorf("limit must be between 1 and 1000")
	}
	return *limit, nil
}
