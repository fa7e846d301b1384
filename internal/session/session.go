// Package session owns the lifetime of the single browser session the server
// drives. Every browser, context and page handle is opened and closed here.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
)

// State is the lifecycle state of a session.
type State int

const (
	Closed State = iota
	Open
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

var (
	// ErrSessionInit is matched by every *InitError.
	ErrSessionInit = errors.New("session init failed")
	// ErrSessionBusy is returned by Use while another call holds the session.
	ErrSessionBusy = errors.New("session is busy")
)

// InitError reports which construction step failed.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("session init failed at %s: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func (e *InitError) Is(target error) bool { return target == ErrSessionInit }

// Session groups the handles of one live browser session.
type Session struct {
	ID      string
	Browser browser.Browser
	Context browser.Context
	Page    browser.Page
	State   State
}

// Controller creates, reuses and tears down the process-wide session.
type Controller struct {
	engine browser.Engine
	opts   browser.LaunchOptions
	onOpen func(*Session) error

	lease *semaphore.Weighted

	mu       sync.Mutex
	current  *Session
	launched bool
}

// NewController returns a controller launching browsers through engine.
func NewController(engine browser.Engine, opts browser.LaunchOptions) *Controller {
	return &Controller{
		engine: engine,
		opts:   opts,
		lease:  semaphore.NewWeighted(1),
	}
}

// OnOpen registers fn to run on every freshly built session. A failing hook
// is logged and does not fail acquisition.
func (c *Controller) OnOpen(fn func(*Session) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

// Acquire returns the healthy session, or builds a new one after tearing
// down whatever is left of the previous.
func (c *Controller) Acquire() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthyLocked() {
		return c.current, nil
	}
	if c.current != nil || c.launched {
		logger.Warn("Discarding stale browser session")
		c.releaseLocked()
	}

	s := &Session{ID: uuid.NewString()}
	logger.Info("Opening browser session", "session_id", s.ID, "headless", c.opts.Headless)

	b, err := c.engine.Launch(c.opts)
	if err != nil {
		c.current = s
		c.launched = true
		c.releaseLocked()
		return nil, &InitError{Step: "launch", Err: err}
	}
	s.Browser = b
	c.current = s
	c.launched = true

	ctx, err := b.NewContext()
	if err != nil {
		c.releaseLocked()
		return nil, &InitError{Step: "context", Err: err}
	}
	s.Context = ctx

	page, err := ctx.NewPage()
	if err != nil {
		c.releaseLocked()
		return nil, &InitError{Step: "page", Err: err}
	}
	s.Page = page
	s.State = Open

	if c.onOpen != nil {
		if err := c.onOpen(s); err != nil {
			logger.Warn("Session open hook failed", "session_id", s.ID, "error", err)
		}
	}
	return s, nil
}

// Release closes the context, then the browser, then stops the engine. Each
// step is attempted even when an earlier one fails. Calling it with nothing
// open is a no-op.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked()
}

func (c *Controller) releaseLocked() {
	s := c.current
	if s == nil && !c.launched {
		return
	}
	id := ""
	if s != nil {
		id = s.ID
		if s.Context != nil {
			if err := s.Context.Close(); err != nil {
				logger.Warn("Failed to close browser context", "session_id", id, "error", err)
			}
		}
		if s.Browser != nil {
			if err := s.Browser.Close(); err != nil {
				logger.Warn("Failed to close browser", "session_id", id, "error", err)
			}
		}
		s.Browser, s.Context, s.Page = nil, nil, nil
		s.State = Closed
	}
	if c.launched {
		if err := c.engine.Shutdown(); err != nil {
			logger.Warn("Failed to stop browser engine", "session_id", id, "error", err)
		}
	}
	c.current = nil
	c.launched = false
	logger.Info("Browser session released", "session_id", id)
}

// IsHealthy reports whether all handles are present and the page is still
// attached.
func (c *Controller) IsHealthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthyLocked()
}

func (c *Controller) healthyLocked() bool {
	s := c.current
	if s == nil || s.State != Open {
		return false
	}
	if s.Browser == nil || s.Context == nil || s.Page == nil {
		return false
	}
	return s.Page.Alive()
}

// State returns the lifecycle state of the current session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Closed
	}
	return c.current.State
}

// Use runs fn with exclusive access to an acquired session. The session is
// released afterwards unless keepAlive is set and fn succeeded. A panic in
// fn releases the session and is returned as an error.
func (c *Controller) Use(keepAlive bool, fn func(*Session) error) (err error) {
	if !c.lease.TryAcquire(1) {
		return ErrSessionBusy
	}
	defer c.lease.Release(1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered panic in session operation", "panic", r)
			c.Release()
			err = fmt.Errorf("session operation panicked: %v", r)
		}
	}()

	s, err := c.Acquire()
	if err != nil {
		return err
	}

	err = fn(s)
	if err != nil || !keepAlive {
		c.Release()
	}
	return err
}
