package docs

import (
	"github.com/j4ng5y/readthedocs-mcp-server/internal/parser"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/rtd"
)

// SearchResult is one entry of a search.
type SearchResult struct {
	Title   string
	URL     string
	Excerpt string
	Project string
	Version string
}

// SearchResults is the outcome of a search. Results is empty when nothing matched.
type SearchResults struct {
	Query      string
	Project    string
	MaxResults int
	Count      int // total matches reported upstream
	Results    []SearchResult
}

// HasMore reports whether upstream holds more matches than were requested.
func (r *SearchResults) HasMore() bool {
	return r.Count > r.MaxResults
}

// Shown is the number of results returned.
func (r *SearchResults) Shown() int {
	return len(r.Results)
}

// Page is the extracted text of a documentation page.
type Page struct {
	Project   string
	Version   string
	Path      string // without the leading slash
	URL       string // the candidate that resolved
	Content   string
	Truncated bool
}

// ProjectSummary is a project entry of a listing.
type ProjectSummary struct {
	Name        string
	Slug        string
	Description string
	URL         string
}

// Listing sources.
const (
	SourceAPI     = "api"
	SourceSlug    = "slug"
	SourceWebsite = "website"
)

// ProjectList is the outcome of list_projects.
type ProjectList struct {
	Query    string
	Source   string
	Projects []ProjectSummary
}

// VersionEntry is one version of a project.
type VersionEntry struct {
	Slug       string
	Identifier string
	Active     bool
	URL        string
}

// VersionList is the outcome of get_project_versions.
type VersionList struct {
	Project  string
	Versions []VersionEntry
}

// TOC is the table of contents of a documentation site.
type TOC struct {
	Project string
	Version string
	URL     string
	Entries []parser.TOCEntry
}

// ProjectDetails is the outcome of get_project_details.
type ProjectDetails struct {
	Requested string
	Project   *rtd.Project
	DocsURL   string
}

// Source formats.
const (
	FormatMarkdown         = "markdown"
	FormatRestructuredText = "restructuredtext"
	FormatText             = "text"
)

// PageSource is the source file a page was built from.
type PageSource struct {
	Project   string
	Version   string
	Path      string
	URL       string
	Format    string
	Title     string
	Sections  []parser.Section
	Raw       string
	Truncated bool
}
