package parser

import (
	"bytes"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Document is the outline of a page source.
type Document struct {
	Title    string
	Sections []Section
}

// Section is the text under one heading.
type Section struct {
	Heading string
	Content string
	Level   int
}

// sourceSuffixes are stripped from a source file name to recover the page name
var sourceSuffixes = []string{".txt", ".md", ".rst"}

// ParseMarkdown parses a Markdown page source into a title and sections.
// name is the source file name or URL and is used for the title when the
// document has neither a level-one heading nor a front matter title.
func ParseMarkdown(content []byte, name string) *Document {
	fmTitle, body := splitFrontMatter(content)

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(body))

	return &Document{
		Title:    markdownTitle(doc, fmTitle, name, body),
		Sections: markdownSections(doc, body),
	}
}

// markdownTitle tries the first H1, then the front matter title, then the file name
func markdownTitle(doc ast.Node, fmTitle, name string, source []byte) string {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok && heading.Level == 1 {
			if title := inlineText(heading, source); title != "" {
				return title
			}
		}
	}

	if fmTitle != "" {
		return fmTitle
	}

	if name != "" {
		base := path.Base(name)
		for _, suffix := range sourceSuffixes {
			base = strings.TrimSuffix(base, suffix)
		}
		base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
		if base != "" && base != "." && base != "/" {
			return titleWords(base)
		}
	}

	return "Untitled"
}

// splitFrontMatter removes a leading --- delimited block and returns its
// title: value along with the remaining document
func splitFrontMatter(source []byte) (string, []byte) {
	content := string(source)
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return "", source
	}

	lines := strings.SplitAfter(content, "\n")
	var title string
	offset := len(lines[0])
	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		offset += len(lines[i])
		if line == "---" {
			return title, source[offset:]
		}
		if title == "" && strings.HasPrefix(line, "title:") {
			title = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "title:")), "\"'")
		}
	}

	// unterminated block: not front matter
	return "", source
}

// inlineText collects the text of inline children, descending into links,
// emphasis and code spans
func inlineText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	for n := node.FirstChild(); n != nil; n = n.NextSibling() {
		switch v := n.(type) {
		case *ast.Text:
			buf.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(v.Value)
		case *ast.Link, *ast.Emphasis, *ast.CodeSpan, *ast.AutoLink:
			if link, ok := v.(*ast.AutoLink); ok {
				buf.Write(link.Label(source))
				continue
			}
			buf.WriteString(inlineText(v, source))
		}
	}
	return strings.TrimSpace(buf.String())
}

// markdownSections splits the top-level blocks at each heading. Content
// before the first heading is dropped unless the document has no headings.
func markdownSections(doc ast.Node, source []byte) []Section {
	var sections []Section
	var current *Section
	var body strings.Builder

	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(body.String())
			sections = append(sections, *current)
		}
		body.Reset()
	}

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if heading, ok := n.(*ast.Heading); ok {
			flush()
			current = &Section{
				Heading: inlineText(heading, source),
				Level:   heading.Level,
			}
			continue
		}
		if current == nil {
			continue
		}
		if content := blockText(n, source); content != "" {
			body.WriteString(content)
			body.WriteString("\n")
		}
	}
	flush()

	if len(sections) == 0 {
		if all := blockText(doc, source); all != "" {
			sections = append(sections, Section{
				Heading: "Content",
				Content: all,
				Level:   1,
			})
		}
	}

	return sections
}

// blockText renders a block node as plain text
func blockText(node ast.Node, source []byte) string {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		return inlineText(n, source)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var buf bytes.Buffer
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(source))
		}
		return strings.TrimRight(buf.String(), "\n")
	case *ast.List:
		var buf bytes.Buffer
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			if content := blockText(item, source); content != "" {
				buf.WriteString("- ")
				buf.WriteString(content)
				buf.WriteString("\n")
			}
		}
		return strings.TrimRight(buf.String(), "\n")
	case *ast.ListItem, *ast.Blockquote:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if content := blockText(c, source); content != "" {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, " ")
	case *ast.Document:
		var parts []string
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if content := blockText(c, source); content != "" {
				parts = append(parts, content)
			}
		}
		return strings.Join(parts, "\n")
	case *ast.HTMLBlock, *ast.Heading, *ast.ThematicBreak:
		return ""
	default:
		return inlineText(n, source)
	}
}

// titleWords upper-cases the first letter of each word
func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
