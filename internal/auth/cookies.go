package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod/lib/proto"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
)

// ErrNoSavedSession is returned by Restore when nothing was saved yet.
var ErrNoSavedSession = errors.New("no saved session found")

// CookieJar persists session cookies between runs. A jar with an empty Path
// is disabled and every method is a no-op.
type CookieJar struct {
	Path string
}

// Enabled reports whether the jar has somewhere to write.
func (j CookieJar) Enabled() bool {
	return j.Path != ""
}

// Save writes the cookies of page to the jar.
func (j CookieJar) Save(page browser.Page) error {
	if !j.Enabled() {
		return nil
	}

	cookies, err := page.Cookies()
	if err != nil {
		return fmt.Errorf("failed to get cookies: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.Path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}

	if err := os.WriteFile(j.Path, data, 0600); err != nil {
		return fmt.Errorf("failed to write cookies file: %w", err)
	}

	logger.Info("Session saved successfully", "path", j.Path, "cookie_count", len(cookies))
	return nil
}

// Restore loads saved cookies into page.
func (j CookieJar) Restore(page browser.Page) error {
	if !j.Enabled() {
		return nil
	}

	data, err := os.ReadFile(j.Path)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNoSavedSession
	}
	if err != nil {
		return fmt.Errorf("failed to read cookies file: %w", err)
	}

	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("failed to unmarshal cookies: %w", err)
	}

	params := make([]*proto.NetworkCookieParam, len(cookies))
	for i, cookie := range cookies {
		params[i] = &proto.NetworkCookieParam{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
			SameSite: cookie.SameSite,
		}
	}

	if err := page.SetCookies(params); err != nil {
		return fmt.Errorf("failed to set cookies: %w", err)
	}

	logger.Info("Session loaded successfully", "cookie_count", len(cookies))
	return nil
}

// Clear removes saved cookies.
func (j CookieJar) Clear() error {
	if !j.Enabled() {
		return nil
	}
	if err := os.Remove(j.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove cookies file: %w", err)
	}
	logger.Info("Session cleared successfully")
	return nil
}
