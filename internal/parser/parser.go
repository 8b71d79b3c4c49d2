// Package parser extracts readable content from rendered documentation pages:
// the main text of a page, its table of contents, project listings from the
// Read the Docs website and the structure of Markdown page sources.
package parser

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// ErrNoContent is returned when a page holds no extractable text.
var ErrNoContent = errors.New("no extractable content")

// DefaultMinChars is the stripped text length a container must exceed.
const DefaultMinChars = 100

// Selector matches an element by tag and, optionally, one attribute. The
// class attribute matches any of its whitespace-separated tokens.
type Selector struct {
	Tag   string
	Attr  string
	Value string
}

// String renders the selector in CSS-like form for logs.
func (s Selector) String() string {
	switch s.Attr {
	case "":
		return s.Tag
	case "class":
		return s.Tag + "." + s.Value
	case "id":
		return s.Tag + "#" + s.Value
	default:
		return s.Tag + "[" + s.Attr + "=" + s.Value + "]"
	}
}

// Match reports whether n satisfies the selector.
func (s Selector) Match(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != s.Tag {
		return false
	}
	if s.Attr == "" {
		return true
	}
	for _, a := range n.Attr {
		if a.Key != s.Attr {
			continue
		}
		if s.Attr == "class" {
			for _, token := range strings.Fields(a.Val) {
				if token == s.Value {
					return true
				}
			}
			return false
		}
		return a.Val == s.Value
	}
	return false
}

// DefaultSelectors covers the content containers of the common Sphinx and
// MkDocs themes, most specific first.
var DefaultSelectors = []Selector{
	{Tag: "div", Attr: "role", Value: "main"},
	{Tag: "div", Attr: "class", Value: "document"},
	{Tag: "div", Attr: "class", Value: "rst-content"},
	{Tag: "article", Attr: "role", Value: "main"},
	{Tag: "main"},
	{Tag: "div", Attr: "class", Value: "section"},
	{Tag: "div", Attr: "id", Value: "content"},
	{Tag: "div", Attr: "class", Value: "content"},
}

// strippedTags never contribute text.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
}

// chromeTags are removed from the body before it is used as a fallback.
var chromeTags = map[string]bool{
	"nav":    true,
	"header": true,
	"footer": true,
}

// Extractor finds the main text of a documentation page.
type Extractor struct {
	selectors []Selector
	minChars  int
}

// NewExtractor returns an extractor that accepts a container once its
// stripped text is longer than minChars. With no selectors DefaultSelectors
// is used.
func NewExtractor(minChars int, selectors ...Selector) *Extractor {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &Extractor{
		selectors: selectors,
		minChars:  minChars,
	}
}

// Extract returns the normalised text of page: one trimmed, non-empty line
// per text fragment. The first selector whose first match is long enough
// wins; otherwise the body without navigation chrome is used.
func (e *Extractor) Extract(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", err
	}

	for _, sel := range e.selectors {
		node := findFirst(doc, sel.Match)
		if node == nil {
			continue
		}
		if utf8.RuneCountInString(strippedText(node)) > e.minChars {
			if text := normalizeLines(extractText(node)); text != "" {
				return text, nil
			}
		}
	}

	body := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "body"
	})
	if body == nil {
		return "", ErrNoContent
	}
	removeElements(body, chromeTags)

	text := normalizeLines(extractText(body))
	if text == "" {
		return "", ErrNoContent
	}
	return text, nil
}

// findFirst returns the first node in document order satisfying match
func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// removeElements detaches every descendant element whose tag is in tags
func removeElements(n *html.Node, tags map[string]bool) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && tags[c.Data] {
			n.RemoveChild(c)
		} else {
			removeElements(c, tags)
		}
		c = next
	}
}

// visitText calls fn for every text node below n, skipping non-content tags
func visitText(n *html.Node, fn func(string)) {
	if n.Type == html.TextNode {
		fn(n.Data)
		return
	}
	if n.Type == html.ElementNode && strippedTags[n.Data] {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visitText(c, fn)
	}
}

// extractText joins every text fragment below n with a line break
func extractText(n *html.Node) string {
	var text strings.Builder
	first := true
	visitText(n, func(s string) {
		if !first {
			text.WriteByte('\n')
		}
		text.WriteString(s)
		first = false
	})
	return text.String()
}

// strippedText concatenates the trimmed text fragments below n
func strippedText(n *html.Node) string {
	var text strings.Builder
	visitText(n, func(s string) {
		text.WriteString(strings.TrimSpace(s))
	})
	return text.String()
}

// normalizeLines trims every line and drops the empty ones
func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
