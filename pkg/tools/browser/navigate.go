package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// NavigateTool navigates to a URL in a browser session.
type NavigateTool struct {
	registry *session.Registry
}

// NewNavigateTool creates a new navigate tool.
func NewNavigateTool(registry *session.Registry) *NavigateTool {
	return &NavigateTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *NavigateTool) Name() string {
	return "browser_navigate"
}

// Description returns the tool description.
func (t *NavigateTool) Description() string {
	return "Navigate to a URL in an active browser session. The browser will load the page and wait for it to be ready."
}

// Schema returns the tool's JSON schema.
func (t *NavigateTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to navigate to (must include protocol, e.g., https://example.com)",
			},
			"wait_until": map[string]interface{}{
				"type":        "string",
				"description": "When to consider navigation complete: 'load' (default), 'domcontentloaded', 'networkidle', or 'commit'",
			},
			"timeout": timeoutProperty,
			"page":    pageProperty,
		},
		[]string{"session", "url"},
	)
}

// NavigateInput represents the parameters for navigation.
type NavigateInput struct {
	XMLName   xml.Name `xml:"arguments"`
	Session   string   `xml:"session"`
	URL       string   `xml:"url"`
	WaitUntil string   `xml:"wait_until"`
	Timeout   *float64 `xml:"timeout"`
	Page      *int     `xml:"page"`
}

var validWaitStates = map[string]bool{
	"load":             true,
	"domcontentloaded": true,
	"networkidle":      true,
	"commit":           true,
}

// Execute navigates to a URL.
func (t *NavigateTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input NavigateInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.URL == "" {
		return "", nil, fmt.Errorf("URL is required")
	}

	opts := driver.NavigateOptions{WaitUntil: input.WaitUntil}
	if opts.WaitUntil == "" {
		opts.WaitUntil = "load"
	}
	if !validWaitStates[opts.WaitUntil] {
		return "", nil, fmt.Errorf("invalid wait_until value: %s (must be 'load', 'domcontentloaded', 'networkidle', or 'commit')", opts.WaitUntil)
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

	start := time.Now()
	if navErr := page.Goto(input.URL, opts); navErr != nil {
		return "", nil, fmt.Errorf("navigation to %s failed: %w", input.URL, navErr)
	}
	elapsed := time.Since(start)

	title, err := page.Title()
	if err != nil {
		title = "Unknown"
	}

	result := fmt.Sprintf(`Navigation successful

Page Details:
- URL: %s
- Title: %s
- Session: %s
- Load time: %s

The page has loaded and is ready for interaction. You can now use browser_extract_content, browser_click, browser_fill, and the log tools to inspect the page.`,
		page.URL(),
		title,
		input.Session,
		elapsed.Round(time.Millisecond),
	)

	return result, map[string]interface{}{
		"session": input.Session,
		"url":     page.URL(),
		"title":   title,
	}, nil
}
