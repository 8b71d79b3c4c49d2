package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/config"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/format"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mark3labs/mcp-go/mcp"
)

const apiPage = `<html><body>
<nav>Site navigation</nav>
<div role="main">
<h1>API</h1>
<p>This part of the documentation covers all the interfaces of Flask. For parts where Flask depends on external libraries, we document the most important right here.</p>
</div>
<footer>Footer</footer>
</body></html>`

const tocPage = `<html><body>
<div class="toctree-wrapper">
<ul>
<li><a href="installation.html">Installation</a>
<ul><li><a href="installation.html#python-version">Python Version</a></li></ul>
</li>
<li><a href="quickstart.html">Quickstart</a></li>
</ul>
</div>
</body></html>`

const quickstartSource = "# Quickstart\n\nEager to get started?\n\n## A Minimal Application\n\nA minimal Flask application looks like this.\n"

// upstream fakes the Read the Docs API, website and documentation sites
type upstream struct {
	*httptest.Server

	mu          sync.Mutex
	authHeaders map[string]string
	searchQuery string
	activeParam string
}

func (u *upstream) recordAuth(r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.authHeaders[r.URL.Path] = r.Header.Get("Authorization")
}

func (u *upstream) auth(path string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.authHeaders[path]
}

// lastSearch returns the last search q parameter and versions active parameter
func (u *upstream) lastSearch() (query, active string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.searchQuery, u.activeParam
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{authHeaders: map[string]string{}}

	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/projects/{$}", func(w http.ResponseWriter, r *http.Request) {
		u.recordAuth(r)
		if r.URL.Query().Get("q") == "http client" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]interface{}{
			"count": 1,
			"results": []map[string]interface{}{
				{"name": "Flask", "slug": "flask", "description": "The Python micro framework"},
			},
		})
	})
	mux.HandleFunc("GET /api/v3/projects/{slug}/{$}", func(w http.ResponseWriter, r *http.Request) {
		u.recordAuth(r)
		switch r.PathValue("slug") {
		case "flask":
			writeJSON(w, map[string]interface{}{
				"name":                 "Flask",
				"slug":                 "flask",
				"description":          "The Python micro framework",
				"homepage":             "https://palletsprojects.com/p/flask/",
				"language":             map[string]string{"code": "en", "name": "English"},
				"programming_language": map[string]string{"code": "py", "name": "Python"},
				"repository":           map[string]string{"url": "https://github.com/pallets/flask", "type": "git"},
			})
		case "requests":
			writeJSON(w, map[string]interface{}{"name": "Requests", "slug": "requests"})
		case "broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("GET /api/v3/projects/{slug}/versions/{$}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("slug") != "flask" {
			http.NotFound(w, r)
			return
		}
		u.mu.Lock()
		u.activeParam = r.URL.Query().Get("active")
		u.mu.Unlock()
		writeJSON(w, map[string]interface{}{
			"count": 2,
			"results": []map[string]interface{}{
				{"slug": "latest", "identifier": "main", "active": true},
				{"slug": "2.3.x", "identifier": "2.3.x", "active": true},
			},
		})
	})
	mux.HandleFunc("GET /api/v3/search/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		u.mu.Lock()
		u.searchQuery = q
		u.mu.Unlock()
		switch q {
		case "project:flask boom":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "project:flask nothing":
			writeJSON(w, map[string]interface{}{"count": 0, "results": []interface{}{}})
		default:
			writeJSON(w, map[string]interface{}{
				"count": 1,
				"results": []map[string]interface{}{{
					"title":   "Quickstart",
					"domain":  u.URL + "/sites/flask",
					"path":    "/en/latest/quickstart.html",
					"project": map[string]string{"slug": "flask"},
					"version": map[string]string{"slug": "latest"},
					"blocks":  []map[string]string{{"type": "section", "id": "routing", "content": "Use the route() decorator."}},
				}},
			})
		}
	})
	mux.HandleFunc("GET /search/", func(w http.ResponseWriter, r *http.Request) {
		u.recordAuth(r)
		fmt.Fprint(w, `<div class="module-item"><h3><a href="/projects/httpx/">HTTPX</a></h3><p class="module-item-desc">A next generation HTTP client</p></div>`)
	})
	mux.HandleFunc("GET /sites/flask/en/latest/api/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, apiPage)
	})
	mux.HandleFunc("GET /sites/flask/latest/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/flask/latest/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, tocPage)
	})
	mux.HandleFunc("GET /sites/flask/en/latest/_sources/quickstart.md.txt", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, quickstartSource)
	})

	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

// newTestServer returns an initialized server with tools registered, talking to up
func newTestServer(t *testing.T, up *upstream, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.NewConfig()
	cfg.LogLevel = "error"
	cfg.APIBaseURL = up.URL + "/api/v3"
	cfg.WebsiteURL = up.URL
	cfg.DocsURLTemplate = up.URL + "/sites/" + config.ProjectPlaceholder
	cfg.FetchTimeout = 5
	cfg.MaxConcurrent = 100
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := NewServer(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if err := srv.Initialize(context.Background()); err != nil {
		t.Fatalf("failed to initialize server: %v", err)
	}
	if err := srv.RegisterTools(); err != nil {
		t.Fatalf("failed to register tools: %v", err)
	}
	t.Cleanup(func() {
		srv.transport = &mockTransport{transportType: "mock"}
		_ = srv.Shutdown(context.Background())
	})
	return srv
}

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func callTool(t *testing.T, handler toolHandler, args map[string]interface{}) (string, bool) {
	t.Helper()

	request := mcp.CallToolRequest{}
	request.Params.Arguments = args

	result, err := handler(context.Background(), request)
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if result == nil || len(result.Content) == 0 {
		t.Fatal("handler returned an empty result")
	}

	switch c := result.Content[0].(type) {
	case mcp.TextContent:
		return c.Text, result.IsError
	case *mcp.TextContent:
		return c.Text, result.IsError
	default:
		t.Fatalf("expected text content, got %T", result.Content[0])
		return "", false
	}
}

func TestSearchDocsTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleSearchDocs, map[string]interface{}{"query": "routing", "project": "flask"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if q, _ := up.lastSearch(); q != "project:flask routing" {
		t.Errorf("upstream q = %q", q)
	}
	for _, want := range []string{"1. Quickstart", "Link: " + up.URL + "/sites/flask/en/latest/quickstart.html", "Use the route() decorator."} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}

	text, isErr = callTool(t, srv.handleSearchDocs, map[string]interface{}{"query": "nothing", "project": "flask"})
	if isErr || text != "No search results found for 'nothing' in flask documentation." {
		t.Errorf("empty search = %q (error %v)", text, isErr)
	}

	text, isErr = callTool(t, srv.handleSearchDocs, map[string]interface{}{"query": "boom", "project": "flask"})
	if !isErr || !strings.HasPrefix(text, "Error searching for 'boom' in flask documentation") {
		t.Errorf("failed search = %q (error %v)", text, isErr)
	}
}

func TestGetPageTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleGetPage, map[string]interface{}{"project": "flask", "version": "latest", "path": "/api/"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if !strings.HasPrefix(text, "Documentation for flask (latest) - api/:\n\n") {
		t.Errorf("unexpected header in:\n%s", text)
	}
	if !strings.Contains(text, "covers all the interfaces of Flask") {
		t.Errorf("expected page text in:\n%s", text)
	}
	if strings.Contains(text, "Site navigation") || strings.Contains(text, format.TruncationMarker) {
		t.Errorf("unexpected chrome or truncation in:\n%s", text)
	}
}

func TestGetPageToolTruncates(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, func(cfg *config.Config) { cfg.MaxContentChars = 20 })

	text, isErr := callTool(t, srv.handleGetPage, map[string]interface{}{"project": "flask", "version": "latest", "path": "api/"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if !strings.HasSuffix(text, format.TruncationMarker) {
		t.Errorf("expected truncation marker in:\n%s", text)
	}
}

func TestGetPageToolNotFound(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleGetPage, map[string]interface{}{"project": "flask", "version": "latest", "path": "missing"})
	if !isErr {
		t.Fatalf("expected error result, got %s", text)
	}
	want := "Unable to fetch the page at " + up.URL + "/sites/flask/en/latest/missing or its variations."
	if !strings.HasPrefix(text, want) {
		t.Errorf("got %q, want prefix %q", text, want)
	}
}

func TestListProjectsTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleListProjects, map[string]interface{}{})
	if isErr || !strings.Contains(text, "1. Flask") || !strings.Contains(text, "Slug: flask") {
		t.Errorf("list = %q (error %v)", text, isErr)
	}

	text, isErr = callTool(t, srv.handleListProjects, map[string]interface{}{"query": "http client", "token": "secret"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if !strings.Contains(text, "1. HTTPX") || !strings.Contains(text, "Slug: httpx") {
		t.Errorf("expected website fallback in:\n%s", text)
	}
	if got := up.auth("/search/"); got != "Token secret" {
		t.Errorf("website search Authorization = %q", got)
	}
}

func TestGetProjectVersionsTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleGetProjectVersions, map[string]interface{}{"project": "flask"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	if _, active := up.lastSearch(); active != "true" {
		t.Errorf("active = %q, want true", active)
	}
	for _, want := range []string{"1. latest (active)", "Identifier: main", "URL: " + up.URL + "/sites/flask/en/2.3.x/"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}

	text, isErr = callTool(t, srv.handleGetProjectVersions, map[string]interface{}{"project": "nope"})
	if !isErr || text != "Project 'nope' not found or is not accessible." {
		t.Errorf("unknown project = %q (error %v)", text, isErr)
	}
}

func TestGetTOCTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleGetTOC, map[string]interface{}{"project": "flask"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	want := "Table of Contents for flask (latest):\n\n" +
		"- Installation: installation.html\n" +
		"  - Python Version: installation.html#python-version\n" +
		"- Quickstart: quickstart.html\n"
	if text != want {
		t.Errorf("TOC = %q, want %q", text, want)
	}

	text, isErr = callTool(t, srv.handleGetTOC, map[string]interface{}{"project": "flask", "version": "9.9"})
	if !isErr || !strings.HasPrefix(text, "Unable to find table of contents for flask (9.9).") {
		t.Errorf("missing TOC = %q (error %v)", text, isErr)
	}
}

func TestGetProjectDetailsTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, func(cfg *config.Config) { cfg.APIToken = "default-token" })

	text, isErr := callTool(t, srv.handleGetProjectDetails, map[string]interface{}{"project": "flask", "token": "per-call"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	for _, want := range []string{"Project Details for Flask:", "Programming Language: Python", "Type: git", "URL: " + up.URL + "/sites/flask/"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}
	if got := up.auth("/api/v3/projects/flask/"); got != "Token per-call" {
		t.Errorf("per-call Authorization = %q", got)
	}

	text, _ = callTool(t, srv.handleGetProjectDetails, map[string]interface{}{"project": "requests"})
	if !strings.Contains(text, "Description: No description available") || !strings.Contains(text, "Homepage: N/A") {
		t.Errorf("expected placeholders in:\n%s", text)
	}
	if got := up.auth("/api/v3/projects/requests/"); got != "Token default-token" {
		t.Errorf("default Authorization = %q", got)
	}

	text, isErr = callTool(t, srv.handleGetProjectDetails, map[string]interface{}{"project": "missing"})
	if !isErr || text != "Project 'missing' not found or is not accessible." {
		t.Errorf("missing project = %q (error %v)", text, isErr)
	}

	text, isErr = callTool(t, srv.handleGetProjectDetails, map[string]interface{}{"project": "broken"})
	if !isErr || !strings.HasPrefix(text, "Unable to fetch details for project 'broken':") {
		t.Errorf("broken project = %q (error %v)", text, isErr)
	}
}

func TestGetPageSourceTool(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	text, isErr := callTool(t, srv.handleGetPageSource, map[string]interface{}{"project": "flask", "path": "quickstart.html"})
	if isErr {
		t.Fatalf("unexpected error result: %s", text)
	}
	for _, want := range []string{"Format: markdown", "Title: Quickstart", "- Quickstart\n  - A Minimal Application", "Eager to get started?"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in:\n%s", want, text)
		}
	}

	text, isErr = callTool(t, srv.handleGetPageSource, map[string]interface{}{"project": "flask", "path": "nothing.html"})
	if !isErr || !strings.HasPrefix(text, "No source file found for flask (latest) - nothing.html.") {
		t.Errorf("missing source = %q (error %v)", text, isErr)
	}
}

// TestToolMissingArguments verifies that missing required arguments produce
// a tool error result rather than a protocol error.
func TestToolMissingArguments(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	handlers := map[string]toolHandler{
		"search_docs":          srv.handleSearchDocs,
		"get_page":             srv.handleGetPage,
		"get_project_versions": srv.handleGetProjectVersions,
		"get_toc":              srv.handleGetTOC,
		"get_project_details":  srv.handleGetProjectDetails,
		"get_page_source":      srv.handleGetPageSource,
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("tools without their required arguments return error results",
		prop.ForAll(
			func(tool string, blank string) bool {
				request := mcp.CallToolRequest{}
				request.Params.Arguments = map[string]interface{}{"project": blank, "query": blank}

				result, err := handlers[tool](context.Background(), request)
				return err == nil && result != nil && result.IsError
			},
			gen.OneConstOf("search_docs", "get_page", "get_project_versions", "get_toc", "get_project_details", "get_page_source"),
			gen.OneConstOf("", " ", "\t"),
		))

	properties.TestingRun(t)
}

func TestToolsList(t *testing.T) {
	up := newUpstream(t)
	srv := newTestServer(t, up, nil)

	resp := srv.mcpServer.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("failed to marshal response: %v", err)
	}

	for _, name := range []string{"search_docs", "get_page", "list_projects", "get_project_versions", "get_toc", "get_project_details", "get_page_source"} {
		if !strings.Contains(string(raw), `"name":"`+name+`"`) {
			t.Errorf("tool %s not listed in %s", name, raw)
		}
	}
}
