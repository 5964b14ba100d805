package browser

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Format is an extraction output format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// Content is a rendered page or fragment.
type Content struct {
	Title       string
	Description string
	Body        string
	Truncated   bool
}

var skippedElements = set("script", "style", "noscript", "iframe", "embed", "object", "svg", "template")

var blockElements = set(
	"div", "p", "section", "article", "header", "footer", "nav", "main", "aside",
	"h1", "h2", "h3", "h4", "h5", "h6", "ul", "ol", "li", "table", "tr", "td", "th",
	"form", "fieldset", "blockquote", "pre", "br", "hr",
)

var voidElements = set(
	"area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta",
	"param", "source", "track", "wbr",
)

var globalAttributes = set("id", "class", "role", "aria-label", "aria-describedby")

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// renderContent parses raw HTML and renders it in the given format, capped
// at maxLength characters of output.
func renderContent(raw string, format Format, maxLength int) (*Content, error) {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	c := &Content{
		Title:       findTitle(doc),
		Description: findMetaDescription(doc),
	}
	w := &cappedWriter{max: maxLength}
	switch format {
	case FormatHTML:
		writeCleanHTML(doc, w, 0)
	case FormatText:
		writeText(doc, w)
	case FormatMarkdown, "":
		if c.Title != "" {
			w.WriteString("# " + c.Title + "\n\n")
		}
		writeMarkdown(doc, w)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	c.Body = strings.TrimSpace(collapseBlankLines(w.String()))
	c.Truncated = w.truncated
	return c, nil
}

// cappedWriter stops accepting text once max bytes were written.
type cappedWriter struct {
	strings.Builder
	max       int
	truncated bool
}

func (w *cappedWriter) WriteString(s string) {
	if w.truncated {
		return
	}
	if w.Len()+len(s) > w.max {
		w.Builder.WriteString(s[:w.max-w.Len()])
		w.Builder.WriteString("...")
		w.truncated = true
		return
	}
	w.Builder.WriteString(s)
}

func (w *cappedWriter) full() bool {
	return w.truncated
}

// writeCleanHTML writes the document without scripts, styles and comments,
// keeping the attributes useful for targeting elements.
func writeCleanHTML(n *html.Node, w *cappedWriter, depth int) {
	if w.full() {
		return
	}
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			w.WriteString(html.EscapeString(text))
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] {
			return
		}
		if depth > 0 && blockElements[tag] {
			w.WriteString("\n" + strings.Repeat("  ", depth))
		}
		var b strings.Builder
		b.WriteString("<" + tag)
		for _, attr := range n.Attr {
			if keepAttribute(tag, attr.Key) {
				fmt.Fprintf(&b, ` %s="%s"`, attr.Key, html.EscapeString(attr.Val))
			}
		}
		b.WriteString(">")
		w.WriteString(b.String())

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeCleanHTML(c, w, depth+1)
		}

		if !voidElements[tag] {
			if blockElements[tag] {
				w.WriteString("\n" + strings.Repeat("  ", depth))
			}
			w.WriteString("</" + tag + ">")
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeCleanHTML(c, w, depth)
	}
}

// keepAttribute reports whether an attribute helps locate or understand an element.
func keepAttribute(tag, attr string) bool {
	attr = strings.ToLower(attr)
	if globalAttributes[attr] || strings.HasPrefix(attr, "data-") {
		return true
	}
	switch tag {
	case "a":
		return attr == "href" || attr == "target"
	case "img":
		return attr == "src" || attr == "alt"
	case "input", "textarea", "select", "option":
		return attr == "name" || attr == "type" || attr == "placeholder" || attr == "value"
	case "button":
		return attr == "type" || attr == "name"
	case "form":
		return attr == "action" || attr == "method"
	}
	return false
}

// writeText writes the visible text, one line per block element.
func writeText(n *html.Node, w *cappedWriter) {
	if w.full() {
		return
	}
	switch n.Type {
	case html.CommentNode:
		return
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			w.WriteString(text + " ")
		}
		return
	case html.ElementNode:
		tag := strings.ToLower(n.Data)
		if skippedElements[tag] || tag == "head" {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeText(c, w)
		}
		if blockElements[tag] {
			w.WriteString("\n")
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(c, w)
	}
}

// writeMarkdown writes headings, list items, links and paragraphs as Markdown.
func writeMarkdown(n *html.Node, w *cappedWriter) {
	if w.full() {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			w.WriteString(text + " ")
		}
		return
	}
	if n.Type != html.ElementNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			writeMarkdown(c, w)
		}
		return
	}

	tag := strings.ToLower(n.Data)
	if skippedElements[tag] || tag == "head" {
		return
	}
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		w.WriteString("\n\n" + strings.Repeat("#", int(tag[1]-'0')) + " " + innerText(n) + "\n\n")
		return
	case "li":
		w.WriteString("\n- ")
	case "a":
		href := attrValue(n, "href")
		text := innerText(n)
		if href == "" || text == "" {
			break
		}
		w.WriteString("[" + text + "](" + href + ") ")
		return
	case "pre":
		w.WriteString("\n\n```\n" + textContent(n) + "\n```\n\n")
		return
	case "br":
		w.WriteString("\n")
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeMarkdown(c, w)
	}
	if blockElements[tag] && tag != "li" {
		w.WriteString("\n\n")
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && skippedElements[strings.ToLower(n.Data)] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func innerText(n *html.Node) string {
	return strings.Join(strings.Fields(textContent(n)), " ")
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func findElement(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, match); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(doc *html.Node) string {
	if n := findElement(doc, func(n *html.Node) bool { return n.Data == "title" }); n != nil {
		return innerText(n)
	}
	return ""
}

func findMetaDescription(doc *html.Node) string {
	n := findElement(doc, func(n *html.Node) bool {
		return n.Data == "meta" && strings.EqualFold(attrValue(n, "name"), "description")
	})
	if n == nil {
		return ""
	}
	return strings.TrimSpace(attrValue(n, "content"))
}

// collapseBlankLines trims trailing spaces and folds runs of blank lines.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
