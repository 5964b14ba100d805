package browser

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// ExtractContentTool extracts content from the current page.
type ExtractContentTool struct {
	registry *session.Registry
}

// NewExtractContentTool creates a new extract content tool.
func NewExtractContentTool(registry *session.Registry) *ExtractContentTool {
	return &ExtractContentTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *ExtractContentTool) Name() string {
	return "browser_extract_content"
}

// Description returns the tool description.
func (t *ExtractContentTool) Description() string {
	return "Extract content from the current page in the browser session. Supports markdown (default), plain text, or cleaned HTML that keeps ids, classes and form attributes for building selectors."
}

// Schema returns the tool's JSON schema.
func (t *ExtractContentTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"format": map[string]interface{}{
				"type":        "string",
				"description": "Output format: 'markdown' (default), 'text', or 'html'",
			},
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "Optional CSS selector to extract content from specific element (e.g., 'article', '.main-content')",
			},
			"max_length": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum content length in characters. Default: 10000",
			},
			"page": pageProperty,
		},
		[]string{"session"},
	)
}

// ExtractContentInput represents the parameters for content extraction.
type ExtractContentInput struct {
	XMLName   xml.Name `xml:"arguments"`
	Session   string   `xml:"session"`
	Format    string   `xml:"format"`
	Selector  string   `xml:"selector"`
	MaxLength *int     `xml:"max_length"`
	Page      *int     `xml:"page"`
}

// Execute extracts content from the page.
func (t *ExtractContentTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ExtractContentInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}

	format := FormatMarkdown
	switch Format(input.Format) {
	case "":
	case FormatMarkdown, FormatText, FormatHTML:
		format = Format(input.Format)
	default:
		return "", nil, fmt.Errorf("invalid format: %s (must be 'markdown', 'text', or 'html')", input.Format)
	}

	maxLength := DefaultMaxLength
	if input.MaxLength != nil {
		if *input.MaxLength < 100 || *input.MaxLength > 100000 {
			return "", nil, fmt.Errorf("max_length must be between 100 and 100000")
		}
		maxLength = *input.MaxLength
	}

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}
	page, err := pageOf(s, input.Page)
	if err != nil {
		return "", nil, err
	}

	raw, found, err := pageHTML(page, input.Selector, t.registry.Options().ActionTimeout)
	if err != nil {
		return "", nil, err
	}
	if !found {
		result, meta, _ := selectorMissing(input.Session, input.Selector, driver.ErrElementNotFound)
		return result, meta, nil
	}

	content, err := renderContent(raw, format, maxLength)
	if err != nil {
		return "", nil, err
	}

	source := "entire page"
	if input.Selector != "" {
		source = fmt.Sprintf("selector: %s", input.Selector)
	}
	body := content.Body
	if content.Truncated {
		body += fmt.Sprintf("\n\n[Content truncated at %d characters]", maxLength)
	}

	result := fmt.Sprintf(`Content extracted successfully

Extraction Details:
- Session: %s
- URL: %s
- Title: %s
- Format: %s
- Source: %s
- Length: %d characters

---

%s`,
		input.Session,
		page.URL(),
		content.Title,
		format,
		source,
		len(content.Body),
		body,
	)

	return result, map[string]interface{}{
		"session":     input.Session,
		"url":         page.URL(),
		"title":       content.Title,
		"description": content.Description,
		"truncated":   content.Truncated,
	}, nil
}

// pageHTML returns the page HTML, or the outer HTML of the first element
// matching selector. found is false when no element matches.
func pageHTML(page driver.Page, selector string, timeout time.Duration) (raw string, found bool, err error) {
	if selector == "" {
		raw, err = page.Content()
		if err != nil {
			return "", false, fmt.Errorf("failed to read page content: %w", err)
		}
		return raw, true, nil
	}

	quoted, err := json.Marshal(selector)
	if err != nil {
		return "", false, err
	}
	v, err := page.Evaluate(fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.outerHTML : null; })()`, quoted), timeout)
	if err != nil {
		return "", false, fmt.Errorf("selector query failed: %w", err)
	}
	s, ok := v.(string)
	if !ok {
		return "", false, nil
	}
	return s, true, nil
}
