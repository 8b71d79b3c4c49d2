// Package format renders documentation results and failures as the text
// returned by the MCP tools.
package format

import (
	"errors"
	"fmt"
	"strings"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/docs"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/resolver"
)

// TruncationMarker is appended to truncated page text.
const TruncationMarker = "...\n\n[Content truncated due to length. Use search_docs to find specific information.]"

const (
	searchFooter = "\nTo view the full content of a result, use the get_page tool with the appropriate project, version, and path parameters."
	notAvailable = "N/A"
)

// SearchResults renders a search. An empty result set yields the "no results" line.
func SearchResults(r *docs.SearchResults) string {
	if len(r.Results) == 0 {
		return fmt.Sprintf("No search results found for '%s' in %s documentation.", r.Query, r.Project)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for '%s' in %s documentation:\n\n", r.Query, r.Project)
	for i, res := range r.Results {
		fmt.Fprintf(&b, "%d. %s\n", i+1, res.Title)
		fmt.Fprintf(&b, "   Link: %s\n", res.URL)
		if res.Excerpt != "" {
			fmt.Fprintf(&b, "   %s\n", res.Excerpt)
		}
		b.WriteString("\n")
	}

	if r.HasMore() {
		fmt.Fprintf(&b, "\nShowing %d of %d results. Use a more specific query to narrow down the results.", r.Shown(), r.Count)
	}
	b.WriteString(searchFooter)
	return b.String()
}

// SearchFailure renders a failed search.
func SearchFailure(query, project string, err error) string {
	return fmt.Sprintf("Error searching for '%s' in %s documentation: %v", query, project, err)
}

// Page renders extracted page text, marking truncation.
func Page(p *docs.Page) string {
	content := p.Content
	if p.Truncated {
		content += TruncationMarker
	}
	return fmt.Sprintf("Documentation for %s (%s) - %s:\n\n%s", p.Project, p.Version, p.Path, content)
}

// PageFailure renders a page that could not be resolved. fallbackURL is used
// when err does not name the primary candidate.
func PageFailure(fallbackURL string, err error) string {
	u := fallbackURL
	var resolveErr *resolver.ResolveError
	if errors.As(err, &resolveErr) && resolveErr.URL != "" {
		u = resolveErr.URL
	}

	if docs.KindOf(err) == docs.KindNotFound {
		return fmt.Sprintf("Unable to fetch the page at %s or its variations. Please check if the project, version, and path are correct.", u)
	}
	return fmt.Sprintf("Error fetching the page at %s: %v", u, err)
}

// ProjectList renders a project listing.
func ProjectList(l *docs.ProjectList) string {
	if len(l.Projects) == 0 {
		return "No projects found."
	}

	var b strings.Builder
	b.WriteString("Read the Docs projects:\n\n")
	for i, p := range l.Projects {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p.Name)
		fmt.Fprintf(&b, "   Slug: %s\n", p.Slug)
		if p.Description != "" {
			fmt.Fprintf(&b, "   Description: %s\n", p.Description)
		}
		fmt.Fprintf(&b, "   URL: %s\n\n", p.URL)
	}
	return b.String()
}

// ProjectListFailure renders a listing where every strategy failed.
func ProjectListFailure(query string, err error) string {
	if docs.KindOf(err) == docs.KindNotFound {
		if query != "" {
			return "No projects found matching the query."
		}
		return "No projects found."
	}
	return fmt.Sprintf("Error fetching projects: %v", err)
}

// Versions renders the versions of a project.
func Versions(l *docs.VersionList) string {
	if len(l.Versions) == 0 {
		return fmt.Sprintf("No versions found for project '%s'.", l.Project)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available versions for %s:\n\n", l.Project)
	for i, v := range l.Versions {
		fmt.Fprintf(&b, "%d. %s", i+1, v.Slug)
		if v.Active {
			b.WriteString(" (active)")
		}
		b.WriteString("\n")
		if v.Identifier != "" {
			fmt.Fprintf(&b, "   Identifier: %s\n", v.Identifier)
		}
		fmt.Fprintf(&b, "   URL: %s\n\n", v.URL)
	}
	return b.String()
}

// VersionsFailure renders a failed version listing.
func VersionsFailure(project string, err error) string {
	if docs.KindOf(err) == docs.KindNotFound {
		return ProjectNotFound(project)
	}
	return fmt.Sprintf("Unable to fetch versions for project '%s'.", project)
}

// TOC renders a table of contents, indenting two spaces per level.
func TOC(t *docs.TOC) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table of Contents for %s (%s):\n\n", t.Project, t.Version)
	for _, e := range t.Entries {
		fmt.Fprintf(&b, "%s- %s: %s\n", strings.Repeat("  ", e.Level), e.Text, e.Href)
	}
	return b.String()
}

// TOCFailure renders a failed table of contents lookup.
func TOCFailure(project, version string, err error) string {
	if docs.KindOf(err) == docs.KindNotFound {
		return fmt.Sprintf("Unable to find table of contents for %s (%s). The documentation may have a non-standard structure.", project, version)
	}
	return fmt.Sprintf("Error fetching table of contents: %v", err)
}

// ProjectDetails renders project metadata, substituting placeholders for
// missing fields.
func ProjectDetails(d *docs.ProjectDetails) string {
	p := d.Project

	name := orDefault(p.Name, d.Requested)
	description := orDefault(p.Description, "No description available")

	language := notAvailable
	if p.Language != nil {
		language = orDefault(p.Language.Name, notAvailable)
	}
	programming := notAvailable
	if p.ProgrammingLanguage != nil {
		programming = orDefault(p.ProgrammingLanguage.Name, notAvailable)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project Details for %s:\n\n", name)
	fmt.Fprintf(&b, "Slug: %s\n", orDefault(p.Slug, notAvailable))
	fmt.Fprintf(&b, "Description: %s\n", description)
	fmt.Fprintf(&b, "Homepage: %s\n", orDefault(p.Homepage, notAvailable))
	fmt.Fprintf(&b, "Language: %s\n", language)
	fmt.Fprintf(&b, "Programming Language: %s\n", programming)

	if p.Repository != nil {
		b.WriteString("\nRepository:\n")
		fmt.Fprintf(&b, "  URL: %s\n", orDefault(p.Repository.URL, notAvailable))
		fmt.Fprintf(&b, "  Type: %s\n", orDefault(p.Repository.Type, notAvailable))
	}

	b.WriteString("\nDocumentation:\n")
	fmt.Fprintf(&b, "  URL: %s\n", d.DocsURL)
	return b.String()
}

// ProjectDetailsFailure renders a failed project lookup.
func ProjectDetailsFailure(project string, err error) string {
	if docs.KindOf(err) == docs.KindNotFound {
		return ProjectNotFound(project)
	}
	return fmt.Sprintf("Unable to fetch details for project '%s': %v", project, err)
}

// ProjectNotFound is the message for a project the API does not know.
func ProjectNotFound(project string) string {
	return fmt.Sprintf("Project '%s' not found or is not accessible.", project)
}

// PageSource renders a page source with its outline.
func PageSource(s *docs.PageSource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Source of %s (%s) - %s:\n\n", s.Project, s.Version, s.Path)
	fmt.Fprintf(&b, "URL: %s\n", s.URL)
	fmt.Fprintf(&b, "Format: %s\n", s.Format)
	if s.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", s.Title)
	}

	if len(s.Sections) > 0 {
		b.WriteString("\nSections:\n")
		for _, sec := range s.Sections {
			indent := sec.Level - 1
			if indent < 0 {
				indent = 0
			}
			fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", indent), sec.Heading)
		}
	}

	b.WriteString("\n")
	b.WriteString(s.Raw)
	if s.Truncated {
		b.WriteString(TruncationMarker)
	}
	return b.String()
}

// PageSourceFailure renders a failed page source lookup.
func PageSourceFailure(project, version, path string, err error) string {
	if docs.KindOf(err) == docs.KindNotFound {
		return fmt.Sprintf("No source file found for %s (%s) - %s. The project may not publish its page sources.", project, version, strings.TrimPrefix(path, "/"))
	}
	return fmt.Sprintf("Error fetching the source of %s (%s) - %s: %v", project, version, strings.TrimPrefix(path, "/"), err)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
