package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/yourusername/linkedin-mcp/internal/activity"
	"github.com/yourusername/linkedin-mcp/internal/auth"
	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/connection"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/session"
)

// ToolName identifies a callable tool.
type ToolName string

const (
	ToolLogin            ToolName = "login"
	ToolCheckLoginStatus ToolName = "check_login_status"
	ToolScrapePosts      ToolName = "scrape_posts"
	ToolSendConnections  ToolName = "send_connections"
)

const (
	defaultMaxPosts       = 5
	defaultMaxConnections = 10
)

// ErrUnknownTool is returned for tool names outside the fixed set.
var ErrUnknownTool = errors.New("unknown tool")

var errChallenge = errors.New("security challenge required, complete it manually and retry")

// ParseToolName maps name onto a known tool.
func ParseToolName(name string) (ToolName, error) {
	switch t := ToolName(name); t {
	case ToolLogin, ToolCheckLoginStatus, ToolScrapePosts, ToolSendConnections:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func newToolResult(payload interface{}, isError bool) *mcp.CallToolResult {
	text, err := json.Marshal(payload)
	if err != nil {
		text, _ = json.Marshal(map[string]interface{}{"success": false, "error": err.Error()})
		isError = true
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(text)},
		},
		IsError: isError,
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return newToolResult(map[string]interface{}{"success": false, "error": err.Error()}, true)
}

func toolList() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(string(ToolLogin),
			mcp.WithDescription("Log in to LinkedIn with the given credentials"),
			mcp.WithString("email", mcp.Required(), mcp.Description("LinkedIn account email")),
			mcp.WithString("password", mcp.Required(), mcp.Description("LinkedIn account password")),
		),
		mcp.NewTool(string(ToolCheckLoginStatus),
			mcp.WithDescription("Check whether the browser session is logged in to LinkedIn"),
		),
		mcp.NewTool(string(ToolScrapePosts),
			mcp.WithDescription("Scrape LinkedIn posts from specified profiles (handles login automatically)"),
			mcp.WithArray("profile_ids",
				mcp.Required(),
				mcp.Description("List of LinkedIn profile IDs to scrape"),
				mcp.Items(map[string]interface{}{"type": "string"}),
			),
			mcp.WithNumber("max_posts",
				mcp.Description("Maximum number of posts to scrape per profile"),
				mcp.DefaultNumber(defaultMaxPosts),
			),
		),
		mcp.NewTool(string(ToolSendConnections),
			mcp.WithDescription("Search LinkedIn people and send connection requests (handles login automatically)"),
			mcp.WithString("search_query", mcp.Required(), mcp.Description("Search query to find LinkedIn profiles")),
			mcp.WithNumber("max_connections",
				mcp.Description("Maximum number of connection requests to send"),
				mcp.DefaultNumber(defaultMaxConnections),
			),
			mcp.WithString("custom_note",
				mcp.Description("Optional note; {name}, {title} and {location} are filled from the profile"),
				mcp.DefaultString(""),
			),
		),
	}
}

// handleCallTool adapts a tools/call request to Call.
func (s *Server) handleCallTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	return s.Call(req.Params.Name, args)
}

// Call runs the named tool with JSON arguments. Tool failures are reported
// inside the result; only an unknown name is returned as an error.
func (s *Server) Call(name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	tool, err := ParseToolName(name)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	logger.Info("Calling tool", "tool", tool, "session", s.opts.Sessions.State())
	switch tool {
	case ToolLogin:
		return s.login(args), nil
	case ToolCheckLoginStatus:
		return s.checkLoginStatus(), nil
	case ToolScrapePosts:
		return s.scrapePosts(args), nil
	case ToolSendConnections:
		return s.sendConnections(args), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, tool)
	}
}

func (s *Server) login(raw json.RawMessage) *mcp.CallToolResult {
	var args struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err))
	}
	creds := auth.Credentials{Email: strings.TrimSpace(args.Email), Password: args.Password}
	if creds.Email == "" || creds.Password == "" {
		return errorResult(auth.ErrInvalidCredentials)
	}

	var state auth.State
	err := s.opts.Sessions.Use(s.opts.KeepAlive, func(sess *session.Session) error {
		var err error
		state, err = s.opts.Auth.Login(sess.Page, creds)
		s.keepOrDiscardCookies(sess.Page, state, err)
		return err
	})
	if err != nil {
		logger.Error("Login failed", "error", err)
		return errorResult(err)
	}

	if state == auth.ChallengeRequired {
		return newToolResult(map[string]interface{}{"success": false, "error": errChallenge.Error()}, false)
	}
	return newToolResult(map[string]interface{}{"success": true, "message": "Successfully logged in"}, false)
}

func (s *Server) checkLoginStatus() *mcp.CallToolResult {
	loggedIn := false
	err := s.opts.Sessions.Use(s.opts.KeepAlive, func(sess *session.Session) error {
		loggedIn = s.opts.Auth.Probe(sess.Page)
		return nil
	})
	if err != nil {
		logger.Warn("Could not check login status", "error", err)
		loggedIn = false
	}
	return newToolResult(map[string]interface{}{"logged_in": loggedIn}, false)
}

// profileIDs accepts a list of ids or a single id.
type profileIDs []string

func (p *profileIDs) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*p = profileIDs{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("profile_ids must be a string or an array of strings")
	}
	*p = many
	return nil
}

func (s *Server) scrapePosts(raw json.RawMessage) *mcp.CallToolResult {
	var args struct {
		ProfileIDs profileIDs `json:"profile_ids"`
		MaxPosts   *int       `json:"max_posts"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err))
	}
	if len(args.ProfileIDs) == 0 {
		return errorResult(errors.New("profile_ids is required"))
	}
	maxPosts := defaultMaxPosts
	if args.MaxPosts != nil {
		maxPosts = *args.MaxPosts
	}
	if maxPosts < 0 {
		return errorResult(errors.New("max_posts must not be negative"))
	}

	var posts []activity.PostRecord
	err := s.opts.Sessions.Use(s.opts.KeepAlive, func(sess *session.Session) error {
		if err := s.ensureLoggedIn(sess.Page); err != nil {
			return err
		}
		posts = s.opts.Scraper.Scrape(sess.Page, args.ProfileIDs, maxPosts)
		return nil
	})
	if err != nil {
		logger.Error("Failed to scrape posts", "error", err)
		return errorResult(err)
	}
	if posts == nil {
		posts = []activity.PostRecord{}
	}
	return newToolResult(map[string]interface{}{"success": true, "posts": posts}, false)
}

func (s *Server) sendConnections(raw json.RawMessage) *mcp.CallToolResult {
	var args struct {
		SearchQuery    string `json:"search_query"`
		MaxConnections *int   `json:"max_connections"`
		CustomNote     string `json:"custom_note"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult(fmt.Errorf("invalid arguments: %w", err))
	}
	query := strings.TrimSpace(args.SearchQuery)
	if query == "" {
		return errorResult(errors.New("search_query is required"))
	}
	maxConnections := defaultMaxConnections
	if args.MaxConnections != nil {
		maxConnections = *args.MaxConnections
	}
	if maxConnections < 1 {
		return errorResult(errors.New("max_connections must be at least 1"))
	}

	var result connection.Result
	err := s.opts.Sessions.Use(s.opts.KeepAlive, func(sess *session.Session) error {
		if err := s.ensureLoggedIn(sess.Page); err != nil {
			return err
		}
		var err error
		result, err = s.opts.Connector.Send(sess.Page, query, maxConnections, args.CustomNote)
		return err
	})
	if err != nil {
		logger.Error("Failed to send connections", "error", err)
		return errorResult(err)
	}

	attempts := result.Attempts
	if attempts == nil {
		attempts = []connection.Attempt{}
	}
	return newToolResult(map[string]interface{}{
		"success":          true,
		"connections_sent": result.Sent,
		"results":          attempts,
	}, false)
}

// ensureLoggedIn signs page in with the configured credentials unless it
// already is.
func (s *Server) ensureLoggedIn(page browser.Page) error {
	if s.opts.Auth.IsAuthenticated(page) {
		return nil
	}
	state, err := s.opts.Auth.Login(page, s.opts.Credentials)
	s.keepOrDiscardCookies(page, state, err)
	if err != nil {
		return fmt.Errorf("failed to log in to LinkedIn: %w", err)
	}
	switch state {
	case auth.Authenticated:
		return nil
	case auth.ChallengeRequired:
		return errChallenge
	default:
		return fmt.Errorf("failed to log in to LinkedIn: %s", state)
	}
}

// keepOrDiscardCookies saves the cookies of a signed-in page and drops the
// saved ones after a failed sign-in, so stale cookies are not restored into
// the next session. A challenge leaves them alone.
func (s *Server) keepOrDiscardCookies(page browser.Page, state auth.State, err error) {
	switch {
	case err == nil && state == auth.Authenticated:
		if err := s.opts.Cookies.Save(page); err != nil {
			logger.Warn("Failed to save session", "error", err)
		}
	case errors.Is(err, auth.ErrLoginTimeout), err == nil && state != auth.ChallengeRequired:
		if err := s.opts.Cookies.Clear(); err != nil {
			logger.Warn("Failed to clear saved session", "error", err)
		}
	}
}
