package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ProjectItem is a project listed on the Read the Docs website search page.
type ProjectItem struct {
	Name        string
	Slug        string
	Description string
}

// ParseProjectSearch scrapes the results of https://readthedocs.org/search/.
// At most limit result items are inspected; a non-positive limit inspects all.
// Items without a title link are skipped.
func ParseProjectSearch(page []byte, limit int) ([]ProjectItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}

	items := doc.Find(".module-item")
	if limit > 0 && items.Length() > limit {
		items = items.Slice(0, limit)
	}

	projects := make([]ProjectItem, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		nameElem := item.Find("h3 a").First()
		if nameElem.Length() == 0 {
			return
		}
		name := selectionText(nameElem)

		var description string
		if desc := item.Find(".module-item-desc").First(); desc.Length() > 0 {
			description = selectionText(desc)
		}

		projects = append(projects, ProjectItem{
			Name:        name,
			Slug:        Slugify(name),
			Description: description,
		})
	})

	return projects, nil
}

// Slugify lowercases name and replaces spaces with hyphens.
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}
