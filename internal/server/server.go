// Package server provides the MCP server core implementation, handling protocol
// communication, tool registration, and request routing.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/cache"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/config"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/docs"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/fetcher"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/format"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/logger"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/parser"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/resolver"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/rtd"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/robfig/cron/v3"
)

const (
	serverName    = "readthedocs-mcp-server"
	serverVersion = "1.0.0"
)

// Server represents the MCP server instance with all its dependencies.
// It owns the shared cache and exposes the documentation operations as MCP tools.
type Server struct {
	config      *config.Config
	docs        *docs.Service
	site        rtd.Site
	cache       *cache.Memory
	snapshots   *cache.Disk // nil when no cache directory is configured
	scheduler   *cron.Cron
	logger      *slog.Logger
	mcpServer   *server.MCPServer
	transport   TransportStarter
	initialized bool
}

// NewServer creates a new MCP server instance with the provided configuration and logger.
// The server is not started until Start() is called.
//
// Parameters:
//   - cfg: Configuration for the server
//   - logger: Structured logger for logging
//
// Returns an error if the transport or the cache directory cannot be set up.
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if err := cfg.ValidateTransport(); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}

	mcpServer := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	// HTTP-facing packages log through zerolog on stderr
	zl, err := logger.NewZerolog(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create zerolog logger: %w", err)
	}

	mem := cache.NewMemory(cfg.CacheCapacity, log.With("component", "cache"))

	var snapshots *cache.Disk
	if cfg.CacheDir != "" {
		snapshots, err = cache.NewDisk(cfg.CacheDir, log.With("component", "cache"))
		if err != nil {
			return nil, fmt.Errorf("failed to create cache snapshot store: %w", err)
		}
	}

	httpClient := fetcher.NewHTTPClient(cfg.FetchTimeoutDuration(), cfg.MaxRetries, cfg.MaxConcurrent, zl)
	site := rtd.NewSite(cfg.DocsURLTemplate, cfg.DocsLanguage)
	api := rtd.NewClient(cfg.APIBaseURL, cfg.APIToken, httpClient, mem, cfg.CacheTTLDuration(), zl)
	pages := resolver.New(site, httpClient, parser.NewExtractor(cfg.MinContentChars), mem, cfg.CacheTTLDuration(), zl)

	service := docs.NewService(api, pages, httpClient, docs.Options{
		Site:       site,
		WebsiteURL: cfg.WebsiteURL,
		MaxChars:   cfg.MaxContentChars,
		Cache:      mem,
		CacheTTL:   cfg.CacheTTLDuration(),
	}, log.With("component", "docs"))

	transport, err := NewTransport(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	if cfg.APIToken != "" {
		log.Info("Default API token configured")
	}

	return &Server{
		config:      cfg,
		docs:        service,
		site:        site,
		cache:       mem,
		snapshots:   snapshots,
		logger:      log,
		mcpServer:   mcpServer,
		transport:   transport,
		initialized: false,
	}, nil
}

// Initialize restores the cache snapshot, if one is configured, and starts the
// periodic snapshot schedule. It must be called before Start().
func (s *Server) Initialize(ctx context.Context) error {
	if s.initialized {
		return fmt.Errorf("server already initialized")
	}

	s.logger.Info("Starting server initialization")

	if s.snapshots != nil {
		s.restoreSnapshot()

		if s.config.CacheSnapshotSchedule != "" {
			s.scheduler = cron.New()
			if _, err := s.scheduler.AddFunc(s.config.CacheSnapshotSchedule, s.saveSnapshot); err != nil {
				return fmt.Errorf("invalid cache snapshot schedule: %w", err)
			}
			s.scheduler.Start()
			s.logger.Info("Cache snapshot schedule started", "schedule", s.config.CacheSnapshotSchedule, "path", s.snapshots.Path())
		}
	}

	s.initialized = true
	return nil
}

// restoreSnapshot loads the saved cache. Missing or unreadable snapshots are
// logged and ignored.
func (s *Server) restoreSnapshot() {
	entries, err := s.snapshots.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Info("No cache snapshot found", "path", s.snapshots.Path())
			return
		}
		s.logger.Warn("Failed to load cache snapshot, starting empty", "path", s.snapshots.Path(), "error", err)
		return
	}

	restored := s.cache.Restore(entries)
	s.logger.Info("Cache snapshot restored", "entries", restored, "skipped", len(entries)-restored)
}

func (s *Server) saveSnapshot() {
	if s.snapshots == nil {
		return
	}
	entries := s.cache.Snapshot()
	if err := s.snapshots.Save(entries); err != nil {
		s.logger.Warn("Failed to save cache snapshot", "path", s.snapshots.Path(), "error", err)
		return
	}
	s.logger.Debug("Cache snapshot saved", "entries", len(entries))
}

// RegisterTools registers all MCP tools with the server.
// This should be called after Initialize() and before Start().
func (s *Server) RegisterTools() error {
	if !s.initialized {
		return fmt.Errorf("server not initialized, call Initialize() first")
	}

	s.logger.Info("Registering MCP tools")

	s.mcpServer.AddTool(mcp.NewTool(
		"search_docs",
		mcp.WithDescription("Search the documentation of a Read the Docs project. Returns matching pages with links and excerpts."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query"),
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug (e.g., 'flask', 'requests')"),
		),
		mcp.WithNumber("max_results",
			mcp.Description("Maximum number of results (default: 10)"),
			mcp.DefaultNumber(docs.DefaultMaxResults),
		),
		tokenArg(),
	), s.handleSearchDocs)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_page",
		mcp.WithDescription("Fetch the text content of a documentation page."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithString("version",
			mcp.Required(),
			mcp.Description("Documentation version (e.g., 'latest', 'stable', '2.0')"),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Page path relative to the version root (e.g., 'api/' or 'quickstart.html')"),
		),
		tokenArg(),
	), s.handleGetPage)

	s.mcpServer.AddTool(mcp.NewTool(
		"list_projects",
		mcp.WithDescription("List Read the Docs projects, optionally filtered by a search query."),
		mcp.WithString("query",
			mcp.Description("Search query or project slug"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of projects (default: 10)"),
			mcp.DefaultNumber(docs.DefaultLimit),
		),
		tokenArg(),
	), s.handleListProjects)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_project_versions",
		mcp.WithDescription("List the documentation versions of a project."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithBoolean("active",
			mcp.Description("Only list active versions (default: true)"),
			mcp.DefaultBool(true),
		),
		tokenArg(),
	), s.handleGetProjectVersions)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_toc",
		mcp.WithDescription("Get the table of contents of a project's documentation."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithString("version",
			mcp.Description("Documentation version (default: latest)"),
			mcp.DefaultString(docs.DefaultVersion),
		),
		tokenArg(),
	), s.handleGetTOC)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_project_details",
		mcp.WithDescription("Get the metadata of a project: description, languages, repository and documentation URL."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		tokenArg(),
	), s.handleGetProjectDetails)

	s.mcpServer.AddTool(mcp.NewTool(
		"get_page_source",
		mcp.WithDescription("Fetch the Sphinx source (Markdown or reStructuredText) a documentation page was built from."),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project slug"),
		),
		mcp.WithString("version",
			mcp.Description("Documentation version (default: latest)"),
			mcp.DefaultString(docs.DefaultVersion),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Page path relative to the version root (e.g., 'quickstart.html')"),
		),
		tokenArg(),
	), s.handleGetPageSource)

	s.logger.Info("MCP tools registered successfully", "count", 7)
	return nil
}

func tokenArg() mcp.ToolOption {
	return mcp.WithString("token",
		mcp.Description("Read the Docs API token (overrides the server default)"),
	)
}

// Start starts the MCP server and begins listening for client connections.
// This is a blocking call that runs until the transport stops or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	if !s.initialized {
		return fmt.Errorf("server not initialized, call Initialize() first")
	}

	s.logger.Info("Starting MCP server", "transport", s.transport.Type())
	if addr := s.config.GetTransportAddress(); addr != "" {
		s.logger.Info("Transport address", "address", addr)
	}

	if err := s.transport.Start(ctx, s.mcpServer); err != nil {
		s.logger.Error("MCP server error", "error", err, "transport", s.transport.Type())
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// Shutdown stops the snapshot schedule, writes a final cache snapshot and
// shuts the transport down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server", "transport", s.transport.Type())

	if s.scheduler != nil {
		select {
		case <-s.scheduler.Stop().Done():
		case <-ctx.Done():
			s.logger.Warn("Timed out waiting for a running cache snapshot")
		}
	}
	s.saveSnapshot()

	if err := s.transport.Shutdown(ctx); err != nil {
		s.logger.Error("Error during transport shutdown", "error", err, "transport", s.transport.Type())
		return fmt.Errorf("transport shutdown error: %w", err)
	}

	s.logger.Info("Server shutdown complete", "transport", s.transport.Type())
	return nil
}

// toolLogger tags the log lines of one tool invocation with a request ID
func (s *Server) toolLogger(tool string) *slog.Logger {
	return s.logger.With("tool", tool, "request_id", uuid.NewString())
}

// requireString returns a required, non-blank string argument or the tool
// error result to send back.
func requireString(request mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	val, err := request.RequireString(key)
	if err != nil || strings.TrimSpace(val) == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s parameter is required and must be a non-empty string", key))
	}
	return val, nil
}

// handleSearchDocs handles the search_docs tool invocation
func (s *Server) handleSearchDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, errResult := requireString(request, "query")
	if errResult != nil {
		return errResult, nil
	}
	project, errResult := requireString(request, "project")
	if errResult != nil {
		return errResult, nil
	}
	maxResults := request.GetInt("max_results", docs.DefaultMaxResults)
	token := request.GetString("token", "")

	log := s.toolLogger("search_docs")
	log.Debug("Tool called", "project", project, "query", query, "max_results", maxResults, "token", token != "")

	results, err := s.docs.Search(ctx, query, project, maxResults, token)
	if err != nil {
		log.Error("Search failed", "project", project, "query", query, "kind", docs.KindOf(err).String(), "error", err)
		return mcp.NewToolResultError(format.SearchFailure(query, project, err)), nil
	}

	log.Info("Search completed", "project", project, "query", query, "results", results.Shown(), "total", results.Count)
	return mcp.NewToolResultText(format.SearchResults(results)), nil
}

// handleGetPage handles the get_page tool invocation
func (s *Server) handleGetPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, errResult := requireString(request, "project")
	if errResult != nil {
		return errResult, nil
	}
	version, errResult := requireString(request, "version")
	if errResult != nil {
		return errResult, nil
	}
	// an empty path addresses the version root
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path parameter is required and must be a string"), nil
	}
	token := request.GetString("token", "")

	log := s.toolLogger("get_page")
	log.Debug("Tool called", "project", project, "version", version, "path", path, "token", token != "")

	page, err := s.docs.Page(ctx, project, version, path, token)
	if err != nil {
		log.Warn("Page fetch failed", "project", project, "version", version, "path", path, "kind", docs.KindOf(err).String(), "error", err)
		primary := s.site.PageURL(project, version, strings.TrimPrefix(path, "/"))
		return mcp.NewToolResultError(format.PageFailure(primary, err)), nil
	}

	log.Info("Page fetched", "url", page.URL, "chars", len([]rune(page.Content)), "truncated", page.Truncated)
	return mcp.NewToolResultText(format.Page(page)), nil
}

// handleListProjects handles the list_projects tool invocation
func (s *Server) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(request.GetString("query", ""))
	limit := request.GetInt("limit", docs.DefaultLimit)
	token := request.GetString("token", "")

	log := s.toolLogger("list_projects")
	log.Debug("Tool called", "query", query, "limit", limit, "token", token != "")

	list, err := s.docs.ListProjects(ctx, query, limit, token)
	if err != nil {
		log.Warn("Project listing failed", "query", query, "kind", docs.KindOf(err).String(), "error", err)
		return mcp.NewToolResultError(format.ProjectListFailure(query, err)), nil
	}

	log.Info("Projects listed", "query", query, "source", list.Source, "count", len(list.Projects))
	return mcp.NewToolResultText(format.ProjectList(list)), nil
}

// handleGetProjectVersions handles the get_project_versions tool invocation
func (s *Server) handleGetProjectVersions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, errResult := requireString(request, "project")
	if errResult != nil {
		return errResult, nil
	}
	active := request.GetBool("active", true)
	token := request.GetString("token", "")

	log := s.toolLogger("get_project_versions")

	list, err := s.docs.Versions(ctx, project, active, token)
	if err != nil {
		log.Warn("Version listing failed", "project", project, "kind", docs.KindOf(err).String(), "error", err)
		return mcp.NewToolResultError(format.VersionsFailure(project, err)), nil
	}

	log.Info("Versions listed", "project", project, "active_only", active, "count", len(list.Versions))
	return mcp.NewToolResultText(format.Versions(list)), nil
}

// handleGetTOC handles the get_toc tool invocation
func (s *Server) handleGetTOC(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, errResult := requireString(request, "project")
	if errResult != nil {
		return errResult, nil
	}
	version := request.GetString("version", docs.DefaultVersion)
	if strings.TrimSpace(version) == "" {
		version = docs.DefaultVersion
	}
	token := request.GetString("token", "")

	log := s.toolLogger("get_toc")

	toc, err := s.docs.TOC(ctx, project, version, token)
	if err != nil {
		log.Warn("Table of contents failed", "project", project, "version", version, "kind", docs.KindOf(err).String(), "error", err)
		return mcp.NewToolResultError(format.TOCFailure(project, version, err)), nil
	}

	log.Info("Table of contents parsed", "project", project, "version", version, "entries", len(toc.Entries))
	return mcp.NewToolResultText(format.TOC(toc)), nil
}

// handleGetProjectDetails handles the get_project_details tool invocation
func (s *Server) handleGetProjectDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, errResult := requireString(request, "project")
	if errResult != nil {
		return errResult, nil
	}
	token := request.GetString("token", "")

	log := s.toolLogger("get_project_details")

	details, err := s.docs.ProjectDetails(ctx, project, token)
	if err != nil {
		log.Warn("Project lookup failed", "project", project, "kind", docs.KindOf(err).String(), "error", err)
		return mcp.NewToolResultError(format.ProjectDetailsFailure(project, err)), nil
	}

	log.Info("Project details fetched", "project", project)
	return mcp.NewToolResultText(format.ProjectDetails(details)), nil
}

// handleGetPageSource handles the get_page_source tool invocation
func (s *Server) handleGetPageSource(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, errResult := requireString(request, "project")
	if errResult != nil {
		return errResult, nil
	}
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path parameter is required and must be a string"), nil
	}
	version := request.GetString("version", docs.DefaultVersion)
	token := request.GetString("token", "")

	log := s.toolLogger("get_page_source")

	src, err := s.docs.PageSource(ctx, project, version, path, token)
	if err != nil {
		log.Warn("Page source failed", "project", project, "version", version, "path", path, "kind", docs.KindOf(err).String(), "error", err)
		if version == "" {
			version = docs.DefaultVersion
		}
		return mcp.NewToolResultError(format.PageSourceFailure(project, version, path, err)), nil
	}

	log.Info("Page source fetched", "url", src.URL, "format", src.Format, "sections", len(src.Sections))
	return mcp.NewToolResultText(format.PageSource(src)), nil
}
