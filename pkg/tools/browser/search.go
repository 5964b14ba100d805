package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// SearchTool searches the text of a page.
type SearchTool struct {
	registry *session.Registry
}

// NewSearchTool creates a new search tool.
func NewSearchTool(registry *session.Registry) *SearchTool {
	return &SearchTool{
		registry: registry,
	}
}

// Name returns the tool name.
func (t *SearchTool) Name() string {
	return "browser_search"
}

// Description returns the tool description.
func (t *SearchTool) Description() string {
	return "Search for text in the current page content. Returns matching text with surrounding context."
}

// Schema returns the tool's JSON schema.
func (t *SearchTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Text to search for in the page content",
			},
			"case_sensitive": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether the search should be case-sensitive. Default: false",
			},
			"max_results": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of results to return. Default: 10",
			},
			"page": pageProperty,
		},
		[]string{"session", "pattern"},
	)
}

// SearchInput represents the parameters for searching.
type SearchInput struct {
	XMLName       xml.Name `xml:"arguments"`
	Session       string   `xml:"session"`
	Pattern       string   `xml:"pattern"`
	CaseSensitive *bool    `xml:"case_sensitive"`
	MaxResults    *int     `xml:"max_results"`
	Page          *int     `xml:"page"`
}

// Match is one occurrence of a search pattern.
type Match struct {
	Text    string `json:"text"`
	Context string `json:"context"`
}

// Execute searches the page.
func (t *SearchTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input SearchInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Pattern == "" {
		return "", nil, fmt.Errorf("search pattern is required")
	}
	caseSensitive := input.CaseSensitive != nil && *input.CaseSensitive
	maxResults := 10
	if input.MaxResults != nil {
		if *input.MaxResults < 1 || *input.MaxResults > 100 {
			return "", nil, fmt.Errorf("max_results must be between 1 and 100")
		}
		maxResults = *input.MaxResults
	}

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}
	page, err := pageOf(s, input.Page)
	if err != nil {
		return "", nil, err
	}
	raw, err := page.Content()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read page content: %w", err)
	}
	content, err := renderContent(raw, FormatText, 1<<20)
	if err != nil {
		return "", nil, err
	}
	matches := findMatches(content.Body, input.Pattern, caseSensitive, maxResults)

	var b strings.Builder
	fmt.Fprintf(&b, `Search completed successfully

Search Details:
- Session: %s
- Pattern: "%s"
- Case Sensitive: %v
- Results Found: %d
- Current URL: %s

`,
		input.Session,
		input.Pattern,
		caseSensitive,
		len(matches),
		page.URL(),
	)

	if len(matches) == 0 {
		b.WriteString("No matches found for the search pattern.")
	} else {
		b.WriteString("Matches:\n\n")
		for i, m := range matches {
			fmt.Fprintf(&b, "Match %d:\nText: %q\nContext: %s\n\n", i+1, m.Text, m.Context)
		}
		if len(matches) == maxResults {
			fmt.Fprintf(&b, "[Limited to %d results. There may be more matches in the page.]", maxResults)
		}
	}

	return strings.TrimSpace(b.String()), map[string]interface{}{
		"session": input.Session,
		"matches": matches,
	}, nil
}

// findMatches returns up to limit occurrences of pattern in text, each with
// 50 bytes of context on either side.
func findMatches(text, pattern string, caseSensitive bool, limit int) []Match {
	haystack, needle := text, pattern
	if !caseSensitive {
		haystack, needle = strings.ToLower(text), strings.ToLower(pattern)
	}
	// lower-casing can change byte lengths; fall back to exact offsets only when it does not
	if len(haystack) != len(text) {
		haystack, needle = text, pattern
	}

	var matches []Match
	for index := 0; index < len(haystack); {
		pos := strings.Index(haystack[index:], needle)
		if pos == -1 {
			break
		}
		at := index + pos
		start := max(0, at-50)
		end := min(len(text), at+len(needle)+50)
		matches = append(matches, Match{
			Text:    text[at : at+len(needle)],
			Context: strings.Join(strings.Fields(text[start:end]), " "),
		})
		if limit > 0 && len(matches) >= limit {
			break
		}
		index = at + len(needle)
	}
	return matches
}
