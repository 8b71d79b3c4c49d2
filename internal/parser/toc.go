package parser

import (
	"bytes"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTOC is returned when a page has no recognisable table of contents.
var ErrNoTOC = errors.New("no table of contents")

// TOCSelectors are the theme containers searched for a table of contents.
// The first unordered list of the page is the last resort.
var TOCSelectors = []string{
	"div.toctree-wrapper",
	"nav.toc",
	"div.sphinxsidebarwrapper",
	"div.sidebar-tree",
}

// TOCEntry is one link of a table of contents.
type TOCEntry struct {
	Text  string
	Href  string
	Level int // number of enclosing list items above the link's own item
}

// ParseTOC returns the links of the first table of contents found in page.
// Links without text or href are skipped.
func ParseTOC(page []byte) ([]TOCEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	var toc *goquery.Selection
	for _, selector := range TOCSelectors {
		if found := doc.Find(selector).First(); found.Length() > 0 {
			toc = found
			break
		}
	}
	if toc == nil {
		if found := doc.Find("ul").First(); found.Length() > 0 {
			toc = found
		}
	}
	if toc == nil {
		return nil, ErrNoTOC
	}

	entries := make([]TOCEntry, 0)
	toc.Find("a").Each(func(_ int, a *goquery.Selection) {
		text := selectionText(a)
		href, _ := a.Attr("href")
		if text == "" || href == "" {
			return
		}

		level := 0
		if li := a.Closest("li"); li.Length() > 0 {
			level = li.ParentsFiltered("li").Length()
		}

		entries = append(entries, TOCEntry{
			Text:  text,
			Href:  href,
			Level: level,
		})
	})

	return entries, nil
}

// selectionText concatenates the trimmed text fragments of s
func selectionText(s *goquery.Selection) string {
	var text strings.Builder
	for _, n := range s.Nodes {
		visitText(n, func(fragment string) {
			text.WriteString(strings.TrimSpace(fragment))
		})
	}
	return text.String()
}
