// Package server exposes the browser automation packages as MCP tools over
// a pair of line-delimited JSON-RPC streams.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/yourusername/linkedin-mcp/internal/activity"
	"github.com/yourusername/linkedin-mcp/internal/auth"
	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/connection"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/session"
)

const (
	Name = "linkedin-scraper"

	defaultVersion = "0.1.0"
)

// Sessions hands out exclusive use of the browser session.
type Sessions interface {
	Use(keepAlive bool, fn func(*session.Session) error) error
	Release()
	State() session.State
}

// Authenticator logs a page in and reports its login state.
type Authenticator interface {
	Login(page browser.Page, creds auth.Credentials) (auth.State, error)
	IsAuthenticated(page browser.Page) bool
	Probe(page browser.Page) bool
}

// PostScraper collects posts from profiles.
type PostScraper interface {
	Scrape(page browser.Page, profileIDs []string, maxPosts int) []activity.PostRecord
}

// ConnectionSender sends connection requests from search results.
type ConnectionSender interface {
	Send(page browser.Page, query string, maxConnections int, noteTemplate string) (connection.Result, error)
}

// Options wires a Server.
type Options struct {
	Sessions  Sessions
	Auth      Authenticator
	Scraper   PostScraper
	Connector ConnectionSender
	Cookies   auth.CookieJar
	// Credentials are used to sign in before scraping or connecting.
	Credentials auth.Credentials
	KeepAlive   bool
	Version     string
}

// Server registers the tools on an MCP server. Requests are handled one at
// a time; the browser session lease rejects any overlap.
type Server struct {
	opts Options
	mcp  *mcpserver.MCPServer
}

// New returns a server using the given collaborators.
func New(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	s := &Server{opts: opts}

	hooks := &mcpserver.Hooks{}
	hooks.AddBeforeAny(func(_ context.Context, id any, method mcp.MCPMethod, _ any) {
		logger.Debug("Processing method", "method", method, "id", id)
	})
	hooks.AddOnError(func(_ context.Context, id any, method mcp.MCPMethod, _ any, err error) {
		logger.Warn("Request failed", "method", method, "id", id, "error", err)
	})

	s.mcp = mcpserver.NewMCPServer(Name, opts.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
		mcpserver.WithHooks(hooks),
	)
	for _, tool := range toolList() {
		s.mcp.AddTool(tool, s.handleCallTool)
	}
	return s
}

// HandleMessage answers one JSON-RPC message. Notifications yield nil.
func (s *Server) HandleMessage(ctx context.Context, message json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, message)
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is cancelled. The browser session is released before
// Serve returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.Close()

	stdio := mcpserver.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(logger.Get().Desugar()))

	logger.Info("Starting server", "name", Name, "version", s.opts.Version)
	err := stdio.Listen(ctx, r, w)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("Shutdown requested, stopping server")
		return nil
	case err != nil:
		return fmt.Errorf("failed to serve requests: %w", err)
	}
	logger.Info("Received EOF, shutting down server")
	return nil
}

// Close releases the browser session.
func (s *Server) Close() {
	if s.opts.Sessions != nil {
		s.opts.Sessions.Release()
	}
}
