package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// SelectOptionTool selects options of a <select> element.
type SelectOptionTool struct {
	registry *session.Registry
}

// NewSelectOptionTool creates a new select option tool.
func NewSelectOptionTool(registry *session.Registry) *SelectOptionTool {
	return &SelectOptionTool{registry: registry}
}

// Name returns the tool name.
func (t *SelectOptionTool) Name() string {
	return "browser_select_option"
}

// Description returns the tool description.
func (t *SelectOptionTool) Description() string {
	return "Select one or more options of a <select> element by value or label."
}

// Schema returns the tool's JSON schema.
func (t *SelectOptionTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the select element",
			},
			"value": map[string]interface{}{
				"type":        "string",
				"description": "Single option value to select",
			},
			"values": map[string]interface{}{
				"type":        "array",
				"items":       map[string]interface{}{"type": "string"},
				"description": "Several option values for a multi-select, written as <values><item>a</item><item>b</item></values>",
			},
			"timeout": timeoutProperty,
			"page":    pageProperty,
		},
		[]string{"session", "selector"},
	)
}

// SelectOptionInput defines the input parameters.
type SelectOptionInput struct {
	XMLName  xml.Name    `xml:"arguments"`
	Session  string      `xml:"session"`
	Selector string      `xml:"selector"`
	Value    string      `xml:"value"`
	Values   *tools.List `xml:"values"`
	Timeout  *float64    `xml:"timeout"`
	Page     *int        `xml:"page"`
}

// Execute selects the options.
func (t *SelectOptionTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input SelectOptionInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}
	values := input.Values.Values()
	if v := strings.TrimSpace(input.Value); v != "" {
		values = append([]string{v}, values...)
	}
	if len(values) == 0 {
		return "", nil, fmt.Errorf("value or values is required")
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

	selected, err := page.SelectOption(input.Selector, values, timeout)
	if err != nil {
		if result, meta, ok := selectorMissing(input.Session, input.Selector, err); ok {
			return result, meta, nil
		}
		return "", nil, fmt.Errorf("select failed: %w", err)
	}

	result := fmt.Sprintf(`Options selected

- Session: %s
- Selector: %s
- Requested: %s
- Selected: %s`,
		input.Session,
		input.Selector,
		strings.Join(values, ", "),
		strings.Join(selected, ", "),
	)
	return result, map[string]interface{}{"session": input.Session, "selected": selected}, nil
}
