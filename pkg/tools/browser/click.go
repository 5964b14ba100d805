package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// ClickTool clicks an element in the browser session.
type ClickTool struct {
	registry *session.Registry
}

// NewClickTool creates a new click tool.
func NewClickTool(registry *session.Registry) *ClickTool {
	return &ClickTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *ClickTool) Name() string {
	return "browser_click"
}

// Description returns the tool description.
func (t *ClickTool) Description() string {
	return "Click an element in the browser session using a CSS selector. Supports single and double clicks, and different mouse buttons."
}

// Schema returns the tool's JSON schema.
func (t *ClickTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the element to click (e.g., 'button.submit', '#login-btn', 'a[href=\"/about\"]')",
			},
			"button": map[string]interface{}{
				"type":        "string",
				"description": "Mouse button to use: 'left' (default), 'right', or 'middle'",
			},
			"click_count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of clicks: 1 (default) for single click, 2 for double click",
			},
			"timeout": timeoutProperty,
			"page":    pageProperty,
		},
		[]string{"session", "selector"},
	)
}

// ClickInput represents the parameters for clicking.
type ClickInput struct {
	XMLName    xml.Name `xml:"arguments"`
	Session    string   `xml:"session"`
	Selector   string   `xml:"selector"`
	Button     string   `xml:"button"`
	ClickCount *int     `xml:"click_count"`
	Timeout    *float64 `xml:"timeout"`
	Page       *int     `xml:"page"`
}

var validButtons = map[string]bool{
	"left":   true,
	"right":  true,
	"middle": true,
}

// Execute clicks an element.
func (t *ClickTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ClickInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}

	opts := driver.ClickOptions{
		Button:     input.Button,
		ClickCount: 1,
	}
	if input.ClickCount != nil {
		if *input.ClickCount < 1 || *input.ClickCount > 3 {
			return "", nil, fmt.Errorf("click_count must be between 1 and 3")
		}
		opts.ClickCount = *input.ClickCount
	}
	if opts.Button != "" && !validButtons[opts.Button] {
		return "", nil, fmt.Errorf("invalid button: %s (must be 'left', 'right', or 'middle')", opts.Button)
	}
	timeout, err := timeoutFrom(input.Timeout, t.registry.Options().ActionTimeout)
	if err != nil {
		return "", nil, err
	}
	opts.Timeout = timeout

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}
	page, err := pageOf(s, input.Page)
	if err != nil {
		return "", nil, err
	}

	if err := page.Click(input.Selector, opts); err != nil {
		if result, meta, ok := selectorMissing(input.Session, input.Selector, err); ok {
			return result, meta, nil
		}
		return "", nil, fmt.Errorf("click failed: %w", err)
	}

	clickType := "single click"
	switch opts.ClickCount {
	case 2:
		clickType = "double click"
	case 3:
		clickType = "triple click"
	}

	buttonDesc := "left button"
	switch opts.Button {
	case "right":
		buttonDesc = "right button"
	case "middle":
		buttonDesc = "middle button"
	}

	result := fmt.Sprintf(`Click executed successfully

Click Details:
- Session: %s
- Selector: %s
- Action: %s with %s
- Current URL: %s

The element has been clicked. If this caused navigation or page changes, you may want to extract content or verify the new page state.`,
		input.Session,
		input.Selector,
		clickType,
		buttonDesc,
		page.URL(),
	)

	return result, map[string]interface{}{"session": input.Session, "selector": input.Selector}, nil
}
