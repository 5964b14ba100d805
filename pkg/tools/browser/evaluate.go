package browser

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// EvaluateTool executes JavaScript code in the browser session.
type EvaluateTool struct {
	registry *session.Registry
}

// NewEvaluateTool creates a new evaluate tool.
func NewEvaluateTool(registry *session.Registry) *EvaluateTool {
	return &EvaluateTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *EvaluateTool) Name() string {
	return "browser_evaluate"
}

// Description returns the tool description.
func (t *EvaluateTool) Description() string {
	return "Execute JavaScript code in the browser session. Can be used to inspect the DOM, read application state, or trigger page behaviour. Returns the result of the JavaScript expression."
}

// Schema returns the tool's JSON schema.
func (t *EvaluateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"code": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript code to execute. Can be an expression or a function body. For complex operations, wrap in an IIFE: (function() { /* code */ })();",
			},
			"timeout": timeoutProperty,
			"page":    pageProperty,
		},
		[]string{"session", "code"},
	)
}

// EvaluateInput defines the input parameters.
type EvaluateInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
	Code    string   `xml:"code"`
	Timeout *float64 `xml:"timeout"`
	Page    *int     `xml:"page"`
}

// Execute executes JavaScript in the browser session.
func (t *EvaluateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input EvaluateInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Code == "" {
		return "", nil, fmt.Errorf("JavaScript code is required")
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

	result, err := page.Evaluate(input.Code, timeout)
	if err != nil {
		return "", nil, fmt.Errorf("JavaScript execution failed: %w", err)
	}

	output := fmt.Sprintf(`JavaScript Execution Complete

Session: %s
URL: %s

Result:
%s`,
		input.Session,
		page.URL(),
		formatValue(result),
	)

	return output, map[string]interface{}{"session": input.Session, "result": result}, nil
}

// formatValue renders an evaluation result, as indented JSON when possible.
func formatValue(v any) string {
	if v == nil {
		return "undefined"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
