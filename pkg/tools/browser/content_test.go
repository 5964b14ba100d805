package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head>
  <title>Release notes</title>
  <meta name="description" content="What changed in 2.0">
  <style>body { color: red; }</style>
</head>
<body>
  <!-- build 1234 -->
  <nav><a href="/">Home</a></nav>
  <h2>Highlights</h2>
  <ul><li>Faster startup</li><li>New <b>plugin</b> API</li></ul>
  <pre>go install ./...</pre>
  <form action="/subscribe" method="post" onsubmit="track()">
    <input type="email" name="email" placeholder="you@example.com" style="width:10px">
  </form>
  <script>console.log("hidden")</script>
</body>
</html>`

func TestRenderContentMarkdown(t *testing.T) {
	c, err := renderContent(articleHTML, FormatMarkdown, DefaultMaxLength)
	require.NoError(t, err)

	assert.Equal(t, "Release notes", c.Title)
	assert.Equal(t, "What changed in 2.0", c.Description)
	assert.False(t, c.Truncated)
	assert.True(t, strings.HasPrefix(c.Body, "# Release notes"))
	assert.Contains(t, c.Body, "## Highlights")
	assert.Contains(t, c.Body, "- Faster startup")
	assert.Contains(t, c.Body, "- New plugin API")
	assert.Contains(t, c.Body, "[Home](/)")
	assert.Contains(t, c.Body, "```\ngo install ./...\n```")
	assert.NotContains(t, c.Body, "hidden")
	assert.NotContains(t, c.Body, "color: red")
	assert.NotContains(t, c.Body, "\n\n\n")
}

func TestRenderContentText(t *testing.T) {
	c, err := renderContent(articleHTML, FormatText, DefaultMaxLength)
	require.NoError(t, err)

	assert.Contains(t, c.Body, "Highlights")
	assert.Contains(t, c.Body, "Faster startup")
	assert.NotContains(t, c.Body, "#")
	assert.NotContains(t, c.Body, "build 1234")
	assert.NotContains(t, c.Body, "Release notes")
}

func TestRenderContentHTML(t *testing.T) {
	c, err := renderContent(articleHTML, FormatHTML, DefaultMaxLength)
	require.NoError(t, err)

	assert.Contains(t, c.Body, `<form action="/subscribe" method="post">`)
	assert.Contains(t, c.Body, `<input type="email" name="email" placeholder="you@example.com">`)
	assert.NotContains(t, c.Body, "onsubmit")
	assert.NotContains(t, c.Body, "style=")
	assert.NotContains(t, c.Body, "<script")
	assert.NotContains(t, c.Body, "build 1234")
	assert.NotContains(t, c.Body, "</input>")
}

func TestRenderContentTruncates(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("word ", 500) + "</p></body></html>"
	c, err := renderContent(long, FormatText, 100)
	require.NoError(t, err)

	assert.True(t, c.Truncated)
	assert.Len(t, c.Body, 103)
	assert.True(t, strings.HasSuffix(c.Body, "..."))
}

func TestFindMatches(t *testing.T) {
	text := "The quick brown fox. " + strings.Repeat("x", 80) + " The lazy FOX sleeps."

	matches := findMatches(text, "fox", false, 10)
	require.Len(t, matches, 2)
	assert.Equal(t, "fox", matches[0].Text)
	assert.Equal(t, "FOX", matches[1].Text)
	assert.Contains(t, matches[0].Context, "The quick brown fox.")
	assert.NotContains(t, matches[0].Context, "lazy")

	matches = findMatches(text, "fox", true, 10)
	require.Len(t, matches, 1)

	matches = findMatches(text, "x", false, 3)
	assert.Len(t, matches, 3)

	assert.Empty(t, findMatches(text, "wolf", false, 10))
}
