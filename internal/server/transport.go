package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
)

// Transport type names accepted by NewTransport.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamablehttp"
)

// TransportStarter defines the interface for all transport implementations.
// It provides a common abstraction for starting and stopping the transports
// (STDIO, SSE, StreamableHTTP) used by the MCP server.
type TransportStarter interface {
	// Start binds the MCP server to the transport and blocks until the
	// transport stops or fails.
	Start(ctx context.Context, mcpServer *server.MCPServer) error

	// Shutdown closes active connections and stops accepting new ones.
	Shutdown(ctx context.Context) error

	// Type returns the transport type name for logging and diagnostics.
	Type() string
}

// StdioTransport serves MCP over standard input and output. Logs must go to
// stderr so they do not interleave with protocol messages.
type StdioTransport struct {
	in  io.Reader
	out io.Writer
}

// Start serves until ctx is cancelled or stdin is closed.
func (s *StdioTransport) Start(ctx context.Context, mcpServer *server.MCPServer) error {
	in, out := s.in, s.out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return server.NewStdioServer(mcpServer).Listen(ctx, in, out)
}

// Shutdown is a no-op; cancelling the Start context stops the transport.
func (s *StdioTransport) Shutdown(ctx context.Context) error {
	return nil
}

// Type returns "stdio".
func (s *StdioTransport) Type() string {
	return TransportStdio
}

// SSETransport serves MCP over HTTP with Server-Sent Events.
type SSETransport struct {
	address string
	server  *server.SSEServer
}

// Start creates the SSE server and listens on the configured address.
func (s *SSETransport) Start(ctx context.Context, mcpServer *server.MCPServer) error {
	s.server = server.NewSSEServer(mcpServer)
	return s.server.Start(s.address)
}

// Shutdown stops the HTTP server and closes client connections.
func (s *SSETransport) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Type returns "sse".
func (s *SSETransport) Type() string {
	return TransportSSE
}

// StreamableHTTPTransport serves MCP over the streamable HTTP transport.
type StreamableHTTPTransport struct {
	address string
	server  *server.StreamableHTTPServer
}

// Start creates the StreamableHTTP server and listens on the configured address.
func (s *StreamableHTTPTransport) Start(ctx context.Context, mcpServer *server.MCPServer) error {
	s.server = server.NewStreamableHTTPServer(mcpServer)
	return s.server.Start(s.address)
}

// Shutdown stops the HTTP server and closes client connections.
func (s *StreamableHTTPTransport) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Type returns "streamablehttp".
func (s *StreamableHTTPTransport) Type() string {
	return TransportStreamableHTTP
}

// NewTransport creates the transport named by the configuration. Network
// transports require a port.
func NewTransport(cfg transportConfig, logger *slog.Logger) (TransportStarter, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var transport TransportStarter
	switch cfg.GetTransportType() {
	case TransportStdio:
		transport = &StdioTransport{}
	case TransportSSE:
		if cfg.GetPort() == 0 {
			return nil, fmt.Errorf("port must be configured for SSE transport")
		}
		transport = &SSETransport{address: cfg.GetTransportAddress()}
	case TransportStreamableHTTP:
		if cfg.GetPort() == 0 {
			return nil, fmt.Errorf("port must be configured for StreamableHTTP transport")
		}
		transport = &StreamableHTTPTransport{address: cfg.GetTransportAddress()}
	default:
		return nil, fmt.Errorf("unsupported transport type: %s (must be one of: stdio, sse, streamablehttp)", cfg.GetTransportType())
	}

	logger.Debug("Transport created", "transport", transport.Type(), "address", cfg.GetTransportAddress())
	return transport, nil
}

// transportConfig is the subset of *config.Config used by NewTransport.
type transportConfig interface {
	GetTransportType() string
	GetPort() int
	GetTransportAddress() string
}
