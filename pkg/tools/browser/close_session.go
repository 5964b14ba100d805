package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// CloseSessionTool closes a browser session.
type CloseSessionTool struct {
	registry *session.Registry
}

// NewCloseSessionTool creates a new close session tool.
func NewCloseSessionTool(registry *session.Registry) *CloseSessionTool {
	return &CloseSessionTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *CloseSessionTool) Name() string {
	return "close_browser_session"
}

// Description returns the tool description.
func (t *CloseSessionTool) Description() string {
	return "Close a browser session and release its pages, context and browser. Captured logs, rules and download records of the session are discarded."
}

// Schema returns the tool's JSON schema.
func (t *CloseSessionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Name of the browser session to close",
			},
		},
		[]string{"name"},
	)
}

// CloseSessionInput defines the input parameters.
type CloseSessionInput struct {
	XMLName xml.Name `xml:"arguments"`
	Name    string   `xml:"name"`
}

// Execute closes the session. Closing an unknown session is not an error.
func (t *CloseSessionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input CloseSessionInput
	if err := parseArgs(argsXML, &input, func() string { return input.Name }); err != nil {
		return "", nil, err
	}

	closed := t.registry.CloseSession(input.Name)
	remaining := t.registry.Count()
	meta := map[string]interface{}{
		"session":         input.Name,
		"closed":          closed,
		"active_sessions": remaining,
	}
	if !closed {
		return fmt.Sprintf("Browser session '%s' was not open. Active sessions: %d", input.Name, remaining), meta, nil
	}

	return fmt.Sprintf(`Browser session closed

- Name: %s
- Remaining sessions: %d`, input.Name, remaining), meta, nil
}
