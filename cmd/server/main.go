// Read the Docs MCP Server
//
// This is the main entry point for the Read the Docs MCP Server.
// It gives LLMs access to documentation hosted on Read the Docs through
// the Model Context Protocol (MCP).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/j4ng5y/readthedocs-mcp-server/internal/config"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/logger"
	"github.com/j4ng5y/readthedocs-mcp-server/internal/server"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configFile  string
	logLevel    string
	transport   string
	host        string
	port        int
	apiToken    string
	showVersion bool
)

const shutdownTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "readthedocs-mcp-server",
		Short: "Read the Docs MCP Server",
		Long: `Read the Docs MCP Server gives LLMs access to documentation hosted on
Read the Docs through the Model Context Protocol (MCP).

The server exposes the following tools:
  - search_docs: Search the documentation of a project
  - get_page: Fetch the text of a documentation page
  - list_projects: List or search projects
  - get_project_versions: List the versions of a project
  - get_toc: Get the table of contents of a project
  - get_project_details: Get the metadata of a project
  - get_page_source: Fetch the source file of a page

Requests go to the Read the Docs API and the rendered documentation sites
on demand; responses are cached in memory. Set READTHEDOCS_TOKEN to
authenticate API requests.`,
		SilenceUsage: true,
		RunE:         runServer,
	}

	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (optional)")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVarP(&transport, "transport", "t", "", "Transport type (stdio, sse, streamablehttp)")
	rootCmd.Flags().StringVar(&host, "host", "", "Listen host for network transports")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port for network transports")
	rootCmd.Flags().StringVar(&apiToken, "token", "", "Read the Docs API token")
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flagOverrides collects the flags the user actually set, keyed by config key
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := map[string]interface{}{}
	if cmd.Flags().Changed("log-level") {
		flags["log_level"] = logLevel
	}
	if cmd.Flags().Changed("transport") {
		flags["transport_type"] = transport
	}
	if cmd.Flags().Changed("host") {
		flags["host"] = host
	}
	if cmd.Flags().Changed("port") {
		flags["port"] = port
	}
	if cmd.Flags().Changed("token") {
		flags["api_token"] = apiToken
	}
	return flags
}

func runServer(cmd *cobra.Command, args []string) error {
	if showVersion {
		fmt.Printf("Read the Docs MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Commit:  %s\n", commit)
		fmt.Printf("Built:   %s\n", date)
		return nil
	}

	cfg, err := config.LoadWithFlags(configFile, flagOverrides(cmd))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateTransport(); err != nil {
		return fmt.Errorf("invalid transport configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	log.Info("Starting Read the Docs MCP Server",
		"version", version,
		"commit", commit,
		"date", date,
		"transport", cfg.TransportType)

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		log.Error("Failed to create server", "error", err)
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Initialize(ctx); err != nil {
			errChan <- fmt.Errorf("server initialization failed: %w", err)
			return
		}

		if err := srv.RegisterTools(); err != nil {
			errChan <- fmt.Errorf("tool registration failed: %w", err)
			return
		}

		log.Info("Server initialized successfully, starting MCP server")

		// Start blocks until the transport stops
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
			return
		}

		errChan <- nil
	}()

	shutdown := func() error {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Error during shutdown", "error", err)
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}

	select {
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			log.Error("Server error", "error", err)
			_ = shutdown()
			return err
		}
		log.Info("Server stopped normally")
		return shutdown()

	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
		cancel()

		if err := shutdown(); err != nil {
			return err
		}

		log.Info("Server shutdown complete")
		return nil
	}
}
