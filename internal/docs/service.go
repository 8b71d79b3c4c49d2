// Package docs implements the documentation lookup operations on top of the
// Read the Docs API client and the page resolver. Operations return typed
// results; failures are classified with KindOf.
package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/cache"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/fetcher"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/parser"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/rtd"
)

// Defaults applied when a caller passes a non-positive count.
const (
	DefaultMaxResults = 10
	DefaultLimit      = 10
	DefaultVersion    = "latest"
)

// API is the subset of *rtd.Client used by the service.
type API interface {
	ListProjects(ctx context.Context, query string, limit int, token string) (*rtd.ProjectList, error)
	Project(ctx context.Context, slug, token string) (*rtd.Project, error)
	Versions(ctx context.Context, slug string, activeOnly bool, token string) (*rtd.VersionList, error)
	Search(ctx context.Context, project, query string, pageSize int, token string) (*rtd.SearchResponse, error)
	AuthHeader(token string) http.Header
}

// PageResolver is satisfied by *resolver.Resolver.
type PageResolver interface {
	Resolve(ctx context.Context, project, version, path string) (string, string, error)
}

// Fetcher performs uncached GET requests.
type Fetcher interface {
	Fetch(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// Options configures a Service.
type Options struct {
	Site       rtd.Site
	WebsiteURL string        // Read the Docs website, for the project search fallback
	MaxChars   int           // page text longer than this is truncated
	Cache      cache.Cache   // page sources
	CacheTTL   time.Duration // lifetime of cached page sources
}

// Service implements the documentation operations.
type Service struct {
	api     API
	pages   PageResolver
	fetcher Fetcher
	opts    Options
	logger  *slog.Logger
}

// NewService creates a Service. A nil opts.Cache is replaced with an in-memory
// cache of cache.DefaultCapacity entries.
func NewService(api API, pages PageResolver, f Fetcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory(cache.DefaultCapacity, logger)
	}
	opts.WebsiteURL = strings.TrimRight(opts.WebsiteURL, "/")
	return &Service{
		api:     api,
		pages:   pages,
		fetcher: f,
		opts:    opts,
		logger:  logger,
	}
}

// Search runs a full-text search in one project.
func (s *Service) Search(ctx context.Context, query, project string, maxResults int, token string) (*SearchResults, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	resp, err := s.api.Search(ctx, project, query, maxResults, token)
	if err != nil {
		s.logger.Warn("Search failed", "project", project, "query", query, "error", err)
		return nil, fmt.Errorf("search %s: %w", project, err)
	}

	results := &SearchResults{
		Query:      query,
		Project:    project,
		MaxResults: maxResults,
		Count:      resp.Count,
		Results:    make([]SearchResult, 0, len(resp.Results)),
	}

	for i, hit := range resp.Results {
		if i >= maxResults {
			break
		}
		results.Results = append(results.Results, s.searchResult(hit, project))
	}

	s.logger.Debug("Search completed", "project", project, "query", query, "count", resp.Count, "shown", len(results.Results))
	return results, nil
}

// searchResult projects one hit, synthesising a URL when the hit has no
// domain and path
func (s *Service) searchResult(hit rtd.SearchHit, project string) SearchResult {
	title := hit.Title
	if title == "" {
		title = "Untitled"
	}

	projectSlug := project
	if hit.Project != nil && hit.Project.Slug != "" {
		projectSlug = hit.Project.Slug
	}
	versionSlug := DefaultVersion
	if hit.Version != nil && hit.Version.Slug != "" {
		versionSlug = hit.Version.Slug
	}

	var excerpt string
	for _, block := range hit.Blocks {
		if block.Type == "section" && block.Content != "" {
			excerpt = block.Content
			break
		}
	}

	link := ""
	if hit.Domain != "" && hit.Path != "" {
		link = hit.Domain + hit.Path
	} else if projectSlug != "" {
		var anchor, component string
		if len(hit.Blocks) > 0 && hit.Blocks[0].ID != "" {
			anchor = "#" + hit.Blocks[0].ID
		}
		if len(hit.Blocks) > 0 && hit.Blocks[0].Name != "" {
			component = hit.Blocks[0].Name
		} else {
			component = titleSlug(title)
		}
		link = s.opts.Site.VersionURL(projectSlug, versionSlug) + component + ".html" + anchor
	}

	return SearchResult{
		Title:   title,
		URL:     link,
		Excerpt: excerpt,
		Project: projectSlug,
		Version: versionSlug,
	}
}

// titleSlug lowercases title, hyphenates spaces and drops parentheses
func titleSlug(title string) string {
	return strings.NewReplacer(" ", "-", "(", "", ")", "").Replace(strings.ToLower(title))
}

// checkProject logs when project is unknown to the API. It never fails.
func (s *Service) checkProject(ctx context.Context, project, token string) {
	if _, err := s.api.Project(ctx, project, token); err != nil {
		s.logger.Warn("Project not found via API, accessing the site directly", "project", project, "error", err)
	}
}

// Page resolves and extracts a documentation page.
func (s *Service) Page(ctx context.Context, project, version, path, token string) (*Page, error) {
	s.checkProject(ctx, project, token)

	text, resolved, err := s.pages.Resolve(ctx, project, version, path)
	if err != nil {
		return nil, err
	}

	content, truncated := Truncate(text, s.opts.MaxChars)
	return &Page{
		Project:   project,
		Version:   version,
		Path:      strings.TrimPrefix(path, "/"),
		URL:       resolved,
		Content:   content,
		Truncated: truncated,
	}, nil
}

// Truncate cuts text to its first maxChars runes. A non-positive maxChars
// disables truncation.
func Truncate(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text, false
	}
	runes := []rune(text)
	return string(runes[:maxChars]), true
}

// ListProjects lists projects from the API. When the API fails and query is
// set, query is tried as an exact slug and then against the website search.
func (s *Service) ListProjects(ctx context.Context, query string, limit int, token string) (*ProjectList, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	list, err := s.api.ListProjects(ctx, query, limit, token)
	if err == nil {
		projects := make([]ProjectSummary, 0, len(list.Results))
		for _, p := range list.Results {
			projects = append(projects, s.summary(p.Name, p.Slug, p.Description))
		}
		return &ProjectList{Query: query, Source: SourceAPI, Projects: projects}, nil
	}

	s.logger.Warn("Project list request failed", "query", query, "error", err)
	if query == "" {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	if p, slugErr := s.api.Project(ctx, query, token); slugErr == nil {
		s.logger.Info("Found project by slug", "slug", query)
		return &ProjectList{
			Query:    query,
			Source:   SourceSlug,
			Projects: []ProjectSummary{s.summary(p.Name, p.Slug, p.Description)},
		}, nil
	}

	projects, scrapeErr := s.searchWebsite(ctx, query, limit, token)
	if scrapeErr != nil {
		s.logger.Warn("Website project search failed", "query", query, "error", scrapeErr)
		return nil, fmt.Errorf("list projects: website search: %w (api: %v)", scrapeErr, err)
	}
	if len(projects) == 0 {
		return nil, ErrNoProjects
	}

	s.logger.Info("Found projects on website search", "query", query, "count", len(projects))
	return &ProjectList{Query: query, Source: SourceWebsite, Projects: projects}, nil
}

func (s *Service) summary(name, slug, description string) ProjectSummary {
	return ProjectSummary{
		Name:        name,
		Slug:        slug,
		Description: description,
		URL:         s.opts.Site.Home(slug),
	}
}

// searchWebsite scrapes the project search page of the website
func (s *Service) searchWebsite(ctx context.Context, query string, limit int, token string) ([]ProjectSummary, error) {
	u := s.opts.WebsiteURL + "/search/?q=" + url.QueryEscape(query)

	page, err := s.fetcher.Fetch(ctx, u, s.api.AuthHeader(token))
	if err != nil {
		return nil, err
	}

	items, err := parser.ParseProjectSearch(page, limit)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", u, err)
	}

	projects := make([]ProjectSummary, 0, len(items))
	for _, item := range items {
		projects = append(projects, s.summary(item.Name, item.Slug, item.Description))
	}
	return projects, nil
}

// Versions lists the versions of a project.
func (s *Service) Versions(ctx context.Context, project string, activeOnly bool, token string) (*VersionList, error) {
	list, err := s.api.Versions(ctx, project, activeOnly, token)
	if err != nil {
		return nil, fmt.Errorf("versions of %s: %w", project, err)
	}

	versions := make([]VersionEntry, 0, len(list.Results))
	for _, v := range list.Results {
		versions = append(versions, VersionEntry{
			Slug:       v.Slug,
			Identifier: v.Identifier,
			Active:     v.Active,
			URL:        s.opts.Site.VersionURL(project, v.Slug),
		})
	}
	return &VersionList{Project: project, Versions: versions}, nil
}

// TOC scrapes the table of contents from the root of a version. The page is
// fetched directly, bypassing the cache.
func (s *Service) TOC(ctx context.Context, project, version, token string) (*TOC, error) {
	if version == "" {
		version = DefaultVersion
	}
	s.checkProject(ctx, project, token)

	u := s.opts.Site.TOCURL(project, version)
	page, err := s.fetcher.Fetch(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("table of contents for %s: %w", project, err)
	}

	entries, err := parser.ParseTOC(page)
	if err != nil {
		return nil, fmt.Errorf("table of contents for %s: %w", project, err)
	}

	s.logger.Debug("Table of contents parsed", "url", u, "links", len(entries))
	return &TOC{Project: project, Version: version, URL: u, Entries: entries}, nil
}

// ProjectDetails returns the metadata of a project.
func (s *Service) ProjectDetails(ctx context.Context, project, token string) (*ProjectDetails, error) {
	p, err := s.api.Project(ctx, project, token)
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", project, err)
	}
	return &ProjectDetails{
		Requested: project,
		Project:   p,
		DocsURL:   s.opts.Site.DocsURL(project),
	}, nil
}

// PageSource fetches the Sphinx source of a page. Markdown sources are
// parsed into sections; other formats are returned as is.
func (s *Service) PageSource(ctx context.Context, project, version, path, token string) (*PageSource, error) {
	if version == "" {
		version = DefaultVersion
	}
	s.checkProject(ctx, project, token)

	var lastErr error
	for _, u := range s.opts.Site.SourceURLs(project, version, path) {
		body, err := s.source(ctx, u)
		if err != nil {
			if !errors.Is(err, fetcher.ErrNotFound) {
				return nil, fmt.Errorf("page source %s: %w", u, err)
			}
			lastErr = err
			continue
		}

		raw, truncated := Truncate(string(body), s.opts.MaxChars)
		src := &PageSource{
			Project:   project,
			Version:   version,
			Path:      strings.TrimPrefix(path, "/"),
			URL:       u,
			Format:    sourceFormat(u),
			Raw:       raw,
			Truncated: truncated,
		}
		if src.Format == FormatMarkdown {
			doc := parser.ParseMarkdown(body, u)
			src.Title = doc.Title
			src.Sections = doc.Sections
		}
		return src, nil
	}

	s.logger.Info("No page source published", "project", project, "version", version, "path", path, "error", lastErr)
	return nil, ErrNoSource
}

// source fetches one source URL through the cache
func (s *Service) source(ctx context.Context, u string) ([]byte, error) {
	if body, ok := s.opts.Cache.Get(u); ok {
		return body, nil
	}
	body, err := s.fetcher.Fetch(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	s.opts.Cache.Put(u, body, s.opts.CacheTTL)
	return body, nil
}

func sourceFormat(u string) string {
	switch {
	case strings.HasSuffix(u, ".md.txt"):
		return FormatMarkdown
	case strings.HasSuffix(u, ".rst.txt"):
		return FormatRestructuredText
	default:
		return FormatText
	}
}
