package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// FillTool fills form fields in the browser session.
type FillTool struct {
	registry *session.Registry
}

// NewFillTool creates a new fill tool.
func NewFillTool(registry *session.Registry) *FillTool {
	return &FillTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *FillTool) Name() string {
	return "browser_fill"
}

// Description returns the tool description.
func (t *FillTool) Description() string {
	return "Fill a form input field with text. The field is cleared before the value is typed."
}

// Schema returns the tool's JSON schema.
func (t *FillTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the input field (e.g., 'input[name=\"email\"]', '#password', 'textarea.comment')",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Text value to fill into the field",
			},
			"timeout": timeoutProperty,
			"page":    pageProperty,
		},
		[]string{"session", "selector", "value"},
	)
}

// FillInput represents the parameters for filling.
type FillInput struct {
	XMLName  xml.Name `xml:"arguments"`
	Session  string   `xml:"session"`
	Selector string   `xml:"selector"`
	Value    string   `xml:"value"`
	Timeout  *float64 `xml:"timeout"`
	Page     *int     `xml:"page"`
}

// Execute fills a form field.
func (t *FillTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input FillInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
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

	if err := page.Fill(input.Selector, input.Value, timeout); err != nil {
		if result, meta, ok := selectorMissing(input.Session, input.Selector, err); ok {
			return result, meta, nil
		}
		return "", nil, fmt.Errorf("fill failed: %w", err)
	}

	result := fmt.Sprintf(`Field filled successfully

Fill Details:
- Session: %s
- Selector: %s
- Value length: %d characters
- Current URL: %s`,
		input.Session,
		input.Selector,
		len(input.Value),
		page.URL(),
	)

	return result, map[string]interface{}{"session": input.Session, "selector": input.Selector}, nil
}
