package browser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/browserd/pkg/browser/intercept"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

var headersProperty = map[string]interface{}{
	"type":        "object",
	"description": "Response headers, written as <headers><entry name=\"x-trace\">abc</entry></headers>",
}

var delayProperty = map[string]interface{}{
	"type":        "integer",
	"description": "Delay in milliseconds before the rule acts. Default: 0",
}

// MockResponseTool answers matching requests with a canned response.
type MockResponseTool struct {
	registry *session.Registry
}

// NewMockResponseTool creates a new mock response tool.
func NewMockResponseTool(registry *session.Registry) *MockResponseTool {
	return &MockResponseTool{registry: registry}
}

// Name returns the tool name.
func (t *MockResponseTool) Name() string {
	return "browser_mock_response"
}

// Description returns the tool description.
func (t *MockResponseTool) Description() string {
	return "Mock responses for requests whose URL matches a glob pattern (e.g., '*/api/users*'). Matching requests never reach the network; they are answered with the given status, headers and body. Applies to every page of the session."
}

// Schema returns the tool's JSON schema.
func (t *MockResponseTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "URL glob pattern ('*' matches any characters) or an exact URL",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"description": "HTTP method to match. Default: any method",
			},
			"status": map[string]interface{}{
				"type":        "integer",
				"description": "Response status code (100-599). Default: 200",
			},
			"content_type": map[string]interface{}{
				"type":        "string",
				"description": "Response content type. Default: application/json for JSON bodies, text/plain otherwise",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Response body. Must be valid JSON when the content type is JSON",
			},
			"headers": headersProperty,
			"delay":   delayProperty,
		},
		[]string{"session", "pattern"},
	)
}

// MockResponseInput defines the input parameters.
type MockResponseInput struct {
	XMLName     xml.Name   `xml:"arguments"`
	Session     string     `xml:"session"`
	Pattern     string     `xml:"pattern"`
	Method      string     `xml:"method"`
	Status      int        `xml:"status"`
	ContentType string     `xml:"content_type"`
	Body        string     `xml:"body"`
	Headers     *tools.Map `xml:"headers"`
	Delay       int        `xml:"delay"`
}

// Execute registers the mock rule.
func (t *MockResponseTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input MockResponseInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}

	rule, err := t.registry.AddMockRule(input.Session, intercept.MockSpec{
		Pattern:     input.Pattern,
		Method:      input.Method,
		Status:      input.Status,
		Headers:     input.Headers.ToMap(),
		ContentType: input.ContentType,
		Body:        input.Body,
		Delay:       time.Duration(input.Delay) * time.Millisecond,
	})
	if isNotFound(err) {
		return sessionNotFound(t.registry, input.Session)
	}
	if errors.Is(err, intercept.ErrInvalidRulePayload) {
		return invalidRule(input.Session, err)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to add mock rule: %w", err)
	}

	result := fmt.Sprintf(`Mock rule created

Rule Details:
- ID: %s
- Session: %s
- Pattern: %s
- Method: %s
- Status: %d
- Content-Type: %s
- Body length: %d bytes
- Delay: %s

Matching requests are now answered with this response. Use browser_list_rules to see how often it was used and browser_deactivate_rule to turn it off.`,
		rule.ID,
		input.Session,
		rule.Pattern,
		rule.Method,
		rule.Status,
		rule.Headers["content-type"],
		len(rule.Body),
		rule.Delay,
	)
	return result, map[string]interface{}{"session": input.Session, "rule": rule}, nil
}

// invalidRule renders a rejected rule payload as a tool result.
func invalidRule(name string, err error) (string, map[string]interface{}, error) {
	return fmt.Sprintf("Rule rejected for session '%s': %v\n\nNo rule was installed.", name, err),
		map[string]interface{}{"session": name, "error": err.Error()}, nil
}
