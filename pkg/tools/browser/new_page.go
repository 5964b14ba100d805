package browser

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// NewPageTool opens another page in a session.
type NewPageTool struct {
	registry *session.Registry
}

// NewNewPageTool creates a new page tool.
func NewNewPageTool(registry *session.Registry) *NewPageTool {
	return &NewPageTool{registry: registry}
}

// Name returns the tool name.
func (t *NewPageTool) Name() string {
	return "browser_new_page"
}

// Description returns the tool description.
func (t *NewPageTool) Description() string {
	return "Open another page (tab) in a browser session. The page shares the session's cookies, capture and rules. Address it with the returned page index."
}

// Schema returns the tool's JSON schema.
func (t *NewPageTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
		},
		[]string{"session"},
	)
}

// NewPageInput defines the input parameters.
type NewPageInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
}

// Execute opens the page.
func (t *NewPageTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input NewPageInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}

	_, index, err := t.registry.NewPage(input.Session)
	if isNotFound(err) {
		return sessionNotFound(t.registry, input.Session)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to open page: %w", err)
	}

	return fmt.Sprintf(`Page opened

- Session: %s
- Page index: %d

Pass <page>%d</page> to browser tools to act on this page.`, input.Session, index, index),
		map[string]interface{}{"session": input.Session, "page": index}, nil
}
