package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// DeactivateRuleTool turns off a mock or intercept rule.
type DeactivateRuleTool struct {
	registry *session.Registry
}

// NewDeactivateRuleTool creates a new deactivate rule tool.
func NewDeactivateRuleTool(registry *session.Registry) *DeactivateRuleTool {
	return &DeactivateRuleTool{registry: registry}
}

// Name returns the tool name.
func (t *DeactivateRuleTool) Name() string {
	return "browser_deactivate_rule"
}

// Description returns the tool description.
func (t *DeactivateRuleTool) Description() string {
	return "Deactivate a mock or intercept rule. Matching requests are passed on as if the rule did not exist; the rule stays listed with its counters."
}

// Schema returns the tool's JSON schema.
func (t *DeactivateRuleTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"rule_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the rule, as returned when it was created",
			},
		},
		[]string{"session", "rule_id"},
	)
}

// DeactivateRuleInput defines the input parameters.
type DeactivateRuleInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
	RuleID  string   `xml:"rule_id"`
}

// Execute deactivates the rule.
func (t *DeactivateRuleTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input DeactivateRuleInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.RuleID == "" {
		return "", nil, fmt.Errorf("rule_id is required")
	}

	found, err := t.registry.DeactivateRule(input.Session, input.RuleID)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}
	meta := map[string]interface{}{
		"session":     input.Session,
		"rule_id":     input.RuleID,
		"deactivated": found,
	}
	if !found {
		return fmt.Sprintf("Rule '%s' not found in session '%s'. Use browser_list_rules to see its rules.", input.RuleID, input.Session), meta, nil
	}
	return fmt.Sprintf("Rule '%s' deactivated in session '%s'.", input.RuleID, input.Session), meta, nil
}
