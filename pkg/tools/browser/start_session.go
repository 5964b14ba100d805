package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// StartSessionTool creates a new browser session.
type StartSessionTool struct {
	registry *session.Registry
	defaults SessionDefaults
}

// SessionDefaults are applied when start_browser_session omits a value.
type SessionDefaults struct {
	Kind     string
	Headless bool
}

// NewStartSessionTool creates a new start session tool.
func NewStartSessionTool(registry *session.Registry, defaults SessionDefaults) *StartSessionTool {
	return &StartSessionTool{
		registry: registry,
		defaults: defaults,
	}
}

// Name returns the tool name.
func (t *StartSessionTool) Name() string {
	return "start_browser_session"
}

// Description returns the tool description.
func (t *StartSessionTool) Description() string {
	return "Create a new browser session for web automation. Console and network activity is captured from the start. Starting a session with the name of a live session replaces it."
}

// Schema returns the tool's JSON schema.
func (t *StartSessionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Unique name for the browser session (e.g., 'checkout', 'app_test')",
			},
			"browser": map[string]interface{}{
				"type":        "string",
				"description": "Browser to launch: 'chromium' (default), 'chrome', 'msedge', 'firefox', 'webkit', or 'cdp' to attach to a running Chrome",
			},
			"headless": map[string]interface{}{
				"type":        "boolean",
				"description": "Run browser in headless mode (no visible window)",
			},
		},
		[]string{"name"},
	)
}

// StartSessionInput defines the input parameters for starting a browser session.
type StartSessionInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Name     string   `xml:"name"`
	Browser  string   `xml:"browser"`
	Headless *bool    `xml:"headless"`
}

// Execute starts a new browser session.
func (t *StartSessionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input StartSessionInput
	if err := parseArgs(argsXML, &input, func() string { return input.Name }); err != nil {
		return "", nil, err
	}

	kind := input.Browser
	if kind == "" {
		kind = t.defaults.Kind
	}
	headless := t.defaults.Headless
	if input.Headless != nil {
		headless = *input.Headless
	}

	s, err := t.registry.CreateSession(ctx, input.Name, kind, headless)
	if err != nil {
		return "", nil, fmt.Errorf("failed to start session: %w", err)
	}

	d := t.registry.Describe(s)
	mode := "headed"
	if d.Headless {
		mode = "headless"
	}
	vp := t.registry.Options().Viewport

	result := fmt.Sprintf(`Browser session created successfully

Session Details:
- Name: %s
- Browser: %s
- Mode: %s
- Viewport: %dx%d pixels
- Active: %t
- Active sessions: %d

The session is ready. Use browser_navigate to load a page; console and network activity is being captured.`,
		d.ID,
		d.Kind,
		mode,
		vp.Width,
		vp.Height,
		d.IsActive,
		d.ActiveSessions,
	)

	return result, map[string]interface{}{
		"session":         d.ID,
		"browser":         string(d.Kind),
		"headless":        d.Headless,
		"is_active":       d.IsActive,
		"active_sessions": d.ActiveSessions,
	}, nil
}
