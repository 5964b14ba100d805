package browser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserd/pkg/browser/intercept"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// InterceptRequestTool blocks, delays, logs or rewrites matching requests.
type InterceptRequestTool struct {
	registry *session.Registry
}

// NewInterceptRequestTool creates a new intercept request tool.
func NewInterceptRequestTool(registry *session.Registry) *InterceptRequestTool {
	return &InterceptRequestTool{registry: registry}
}

// Name returns the tool name.
func (t *InterceptRequestTool) Name() string {
	return "browser_intercept_request"
}

// Description returns the tool description.
func (t *InterceptRequestTool) Description() string {
	return `Intercept requests whose URL matches a glob pattern. Actions:
- block: abort the request
- modify: fetch the real response and override status, headers, body or JSON fields
- delay: hold the request for the given delay, then let it through
- log: add a console entry describing the request, then let it through`
}

// Schema returns the tool's JSON schema.
func (t *InterceptRequestTool) Schema() map[string]interface{} {
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
			"action": map[string]interface{}{
				"type":        "string",
				"description": "'block', 'modify', 'delay', or 'log'",
			},
			"status": map[string]interface{}{
				"type":        "integer",
				"description": "modify: replacement status code",
			},
			"headers": map[string]interface{}{
				"type":        "object",
				"description": "modify: headers to set on the response, written as <headers><entry name=\"x-a\">b</entry></headers>",
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "modify: replacement body",
			},
			"json_set": map[string]interface{}{
				"type":        "object",
				"description": "modify: JSON paths to overwrite in the response body with raw JSON values, written as <json_set><entry name=\"user.role\">\"admin\"</entry></json_set>",
			},
			"delay": delayProperty,
		},
		[]string{"session", "pattern", "action"},
	)
}

// InterceptRequestInput defines the input parameters.
type InterceptRequestInput struct {
	XMLName xml.Name   `xml:"arguments"`
	Session string     `xml:"session"`
	Pattern string     `xml:"pattern"`
	Method  string     `xml:"method"`
	Action  string     `xml:"action"`
	Status  *int       `xml:"status"`
	Headers *tools.Map `xml:"headers"`
	Body    *string    `xml:"body"`
	JSONSet *tools.Map `xml:"json_set"`
	Delay   int        `xml:"delay"`
}

// Execute registers the intercept rule.
func (t *InterceptRequestTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input InterceptRequestInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}

	rule, err := t.registry.AddInterceptRule(input.Session, intercept.InterceptSpec{
		Pattern: input.Pattern,
		Method:  input.Method,
		Action:  intercept.Action(strings.ToLower(strings.TrimSpace(input.Action))),
		Modify: intercept.ModifySpec{
			Status:  input.Status,
			Headers: input.Headers.ToMap(),
			Body:    input.Body,
			JSONSet: input.JSONSet.ToMap(),
		},
		Delay: time.Duration(input.Delay) * time.Millisecond,
	})
	if isNotFound(err) {
		return sessionNotFound(t.registry, input.Session)
	}
	if errors.Is(err, intercept.ErrInvalidRulePayload) {
		return invalidRule(input.Session, err)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to add intercept rule: %w", err)
	}

	var details strings.Builder
	switch rule.Action {
	case intercept.ActionModify:
		if rule.Modify.Status != nil {
			fmt.Fprintf(&details, "\n- Status override: %d", *rule.Modify.Status)
		}
		if len(rule.Modify.Headers) > 0 {
			fmt.Fprintf(&details, "\n- Header overrides: %d", len(rule.Modify.Headers))
		}
		if rule.Modify.Body != nil {
			fmt.Fprintf(&details, "\n- Body override: %d bytes", len(*rule.Modify.Body))
		}
		if len(rule.Modify.JSONSet) > 0 {
			fmt.Fprintf(&details, "\n- JSON fields: %d", len(rule.Modify.JSONSet))
		}
	case intercept.ActionDelay:
		fmt.Fprintf(&details, "\n- Delay: %s", rule.Delay)
	}

	result := fmt.Sprintf(`Intercept rule created

Rule Details:
- ID: %s
- Session: %s
- Pattern: %s
- Method: %s
- Action: %s%s

Use browser_list_rules to see how often it triggered and browser_deactivate_rule to turn it off.`,
		rule.ID,
		input.Session,
		rule.Pattern,
		rule.Method,
		rule.Action,
		details.String(),
	)
	return result, map[string]interface{}{"session": input.Session, "rule": rule}, nil
}
