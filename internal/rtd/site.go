package rtd

import (
	"strings"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/config"
)

// Site builds URLs of rendered documentation from a host template such as
// https://{project}.readthedocs.io.
type Site struct {
	template string
	language string
}

// NewSite creates a Site for the given template and language segment.
func NewSite(template, language string) Site {
	return Site{
		template: strings.TrimRight(template, "/"),
		language: language,
	}
}

// Home returns the documentation root of project, without a trailing slash.
func (s Site) Home(project string) string {
	return strings.ReplaceAll(s.template, config.ProjectPlaceholder, project)
}

// DocsURL returns the documentation root with a trailing slash.
func (s Site) DocsURL(project string) string {
	return s.Home(project) + "/"
}

// VersionURL returns the root of one version, including the language segment.
func (s Site) VersionURL(project, version string) string {
	return s.Home(project) + "/" + s.language + "/" + version + "/"
}

// PageURL returns the URL of a page. path must not start with a slash.
func (s Site) PageURL(project, version, path string) string {
	return s.VersionURL(project, version) + path
}

// TOCURL returns the page scraped for a table of contents. The language
// segment is omitted and the site redirects to it.
func (s Site) TOCURL(project, version string) string {
	return s.Home(project) + "/" + version + "/"
}

// SourceURLs returns the Sphinx source file candidates for a page, Markdown
// first. A directory path maps to its index page.
func (s Site) SourceURLs(project, version, path string) []string {
	page := strings.TrimPrefix(path, "/")
	switch {
	case page == "" || strings.HasSuffix(page, "/"):
		page += "index"
	case strings.HasSuffix(page, ".html"):
		page = strings.TrimSuffix(page, ".html")
	}

	base := s.VersionURL(project, version) + "_sources/" + page
	return []string{base + ".md.txt", base + ".rst.txt", base + ".txt"}
}
