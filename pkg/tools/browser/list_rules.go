package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// ListRulesTool lists the mock and intercept rules of a session.
type ListRulesTool struct {
	registry *session.Registry
}

// NewListRulesTool creates a new list rules tool.
func NewListRulesTool(registry *session.Registry) *ListRulesTool {
	return &ListRulesTool{registry: registry}
}

// Name returns the tool name.
func (t *ListRulesTool) Name() string {
	return "browser_list_rules"
}

// Description returns the tool description.
func (t *ListRulesTool) Description() string {
	return "List the mock and intercept rules of a browser session in creation order, with their usage and trigger counts."
}

// Schema returns the tool's JSON schema.
func (t *ListRulesTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
		},
		[]string{"session"},
	)
}

// ListRulesInput defines the input parameters.
type ListRulesInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
}

// Execute lists the rules.
func (t *ListRulesTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ListRulesInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}

	mocks, err := t.registry.ListMockRules(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}
	intercepts, err := t.registry.ListInterceptRules(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}

	meta := map[string]interface{}{
		"session":         input.Session,
		"mock_rules":      mocks,
		"intercept_rules": intercepts,
	}
	if len(mocks) == 0 && len(intercepts) == 0 {
		return fmt.Sprintf("Session '%s' has no rules.", input.Session), meta, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Rules for session '%s'\n", input.Session)
	if len(mocks) > 0 {
		fmt.Fprintf(&b, "\nMock rules: %d\n", len(mocks))
		for _, r := range mocks {
			fmt.Fprintf(&b, "- %s %s %s -> %d (%s, used %d times)\n",
				r.ID, r.Method, r.Pattern, r.Status, activeLabel(r.Active), r.UsageCount)
		}
	}
	if len(intercepts) > 0 {
		fmt.Fprintf(&b, "\nIntercept rules: %d\n", len(intercepts))
		for _, r := range intercepts {
			fmt.Fprintf(&b, "- %s %s %s -> %s (%s, triggered %d times)\n",
				r.ID, r.Method, r.Pattern, r.Action, activeLabel(r.Active), r.TriggerCount)
		}
	}
	return strings.TrimRight(b.String(), "\n"), meta, nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}
