// Package auth drives credential submission and classifies where the site
// lands the session afterwards.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/selector"
	"github.com/yourusername/linkedin-mcp/internal/stealth"
	"github.com/yourusername/linkedin-mcp/internal/storage"
)

// State is the authentication state derived from the current page.
type State int

const (
	Unauthenticated State = iota
	Authenticated
	ChallengeRequired
	Indeterminate
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case ChallengeRequired:
		return "challenge_required"
	case Indeterminate:
		return "indeterminate"
	default:
		return "unauthenticated"
	}
}

var (
	ErrInvalidCredentials = errors.New("email and password are required")
	ErrLoginTimeout       = errors.New("login did not reach a recognized page")
	ErrLogin              = errors.New("login failed")

	errElementNotFound = errors.New("element not found")
)

// LoginError wraps a navigation or element fault during the login flow.
type LoginError struct {
	Op  string
	Err error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed: %s: %v", e.Op, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }

func (e *LoginError) Is(target error) bool { return target == ErrLogin }

// Outcome maps an address path pattern to the state it signals.
type Outcome struct {
	State   State
	Pattern *regexp.Regexp
}

// Outcomes is checked in order against the path of the current address.
// A rejected password lands on a checkpoint path, so it precedes the
// challenge patterns. The sign-in wall matches nothing and reads as
// Unauthenticated.
var Outcomes = []Outcome{
	{Indeterminate, regexp.MustCompile(`^/checkpoint/lg/login-submit`)},
	{ChallengeRequired, regexp.MustCompile(`^/checkpoint/`)},
	{ChallengeRequired, regexp.MustCompile(`^/challenge`)},
	{ChallengeRequired, regexp.MustCompile(`security-verification`)},
	{Authenticated, regexp.MustCompile(`^/feed(/|$)`)},
	{Authenticated, regexp.MustCompile(`^/mynetwork(/|$)`)},
	{Indeterminate, regexp.MustCompile(`^/login`)},
	{Indeterminate, regexp.MustCompile(`^/uas/login-submit`)},
}

// Classify returns the state signalled by rawURL. Addresses that match no
// outcome are Unauthenticated.
func Classify(rawURL string) State {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}
	for _, o := range Outcomes {
		if o.Pattern.MatchString(path) {
			return o.State
		}
	}
	return Unauthenticated
}

// Credentials are the account secrets submitted to the login form.
type Credentials struct {
	Email    string
	Password string
}

// Ledger records performed actions.
type Ledger interface {
	RecordAction(actionType string) error
}

// Options configures a Manager.
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	LoginTimeout      time.Duration
	PollInterval      time.Duration
	TypingSpeed       time.Duration
	// StrictProbe additionally requires the signed-in navigation bar.
	StrictProbe bool
}

// markerWait bounds the navigation-bar lookup after a probe navigation.
const markerWait = 5 * time.Second

// Manager logs in and inspects login state.
type Manager struct {
	opts     Options
	resolver *selector.Resolver
	pacer    *stealth.Pacer
	ledger   Ledger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewManager returns a manager locating form fields through resolver.
func NewManager(opts Options, resolver *selector.Resolver, pacer *stealth.Pacer) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	return &Manager{
		opts:     opts,
		resolver: resolver,
		pacer:    pacer,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// WithLedger records successful logins in l.
func (m *Manager) WithLedger(l Ledger) *Manager {
	m.ledger = l
	return m
}

// Login signs page in with creds. ChallengeRequired is returned without an
// error: nothing automated can get past it.
func (m *Manager) Login(page browser.Page, creds Credentials) (State, error) {
	if creds.Email == "" || creds.Password == "" {
		return Unauthenticated, ErrInvalidCredentials
	}

	if m.IsAuthenticated(page) {
		logger.Info("Already logged in, skipping login form")
		return Authenticated, nil
	}

	logger.Info("Starting LinkedIn login", "email", creds.Email)

	loginURL := m.opts.BaseURL + "/login"
	if err := page.Navigate(loginURL, m.opts.NavigationTimeout); err != nil {
		return Unauthenticated, &LoginError{Op: "navigate to login page", Err: err}
	}

	// saved cookies make the site bounce /login straight to the feed
	if current, err := page.URL(); err == nil && Classify(current) == Authenticated {
		logger.Info("Login page redirected to feed, session restored")
		return Authenticated, nil
	}

	m.pacer.Pause(stealth.RandomDelay(time.Second, 2*time.Second))

	if err := m.fill(page, selector.LoginEmail, "email field", creds.Email); err != nil {
		return Unauthenticated, err
	}
	m.pacer.Pause(stealth.ShortDelay())
	if err := m.fill(page, selector.LoginPassword, "password field", creds.Password); err != nil {
		return Unauthenticated, err
	}
	m.pacer.Pause(stealth.RandomDelay(500*time.Millisecond, 1500*time.Millisecond))

	submit, ok := m.resolver.Resolve(page, selector.LoginSubmit, m.opts.NavigationTimeout)
	if !ok {
		return Unauthenticated, &LoginError{Op: "locate sign in button", Err: errElementNotFound}
	}
	logger.Debug("Clicking sign in button")
	if err := submit.Click(m.opts.NavigationTimeout); err != nil {
		return Unauthenticated, &LoginError{Op: "click sign in button", Err: err}
	}

	state, err := m.waitForOutcome(page)
	if err != nil {
		return state, err
	}

	switch state {
	case Authenticated:
		logger.Info("Login successful")
		if m.ledger != nil {
			if err := m.ledger.RecordAction(storage.ActionLogin); err != nil {
				logger.Warn("Failed to record login", "error", err)
			}
		}
	case ChallengeRequired:
		logger.Warn("Security challenge detected - manual intervention required")
	}
	return state, nil
}

func (m *Manager) fill(page browser.Page, t selector.Target, what, value string) error {
	el, ok := m.resolver.Resolve(page, t, m.opts.NavigationTimeout)
	if !ok {
		return &LoginError{Op: "locate " + what, Err: errElementNotFound}
	}
	if err := el.Click(m.opts.NavigationTimeout); err != nil {
		return &LoginError{Op: "focus " + what, Err: err}
	}
	if err := stealth.TypeText(m.pacer, el, value, m.opts.TypingSpeed, m.opts.NavigationTimeout); err != nil {
		return &LoginError{Op: "fill " + what, Err: err}
	}
	return nil
}

// waitForOutcome polls the address until it lands on a terminal outcome or
// the login timeout passes.
func (m *Manager) waitForOutcome(page browser.Page) (State, error) {
	deadline := m.now().Add(m.opts.LoginTimeout)
	last := ""
	for {
		current, err := page.URL()
		if err != nil {
			return Unauthenticated, &LoginError{Op: "read page address", Err: err}
		}
		last = current

		switch state := Classify(current); state {
		case Authenticated, ChallengeRequired:
			return state, nil
		}

		if !m.now().Before(deadline) {
			break
		}
		m.sleep(m.opts.PollInterval)
	}

	if Classify(last) == Indeterminate {
		return Indeterminate, fmt.Errorf("%w within %s: still on the sign-in page", ErrLoginTimeout, m.opts.LoginTimeout)
	}
	return Unauthenticated, fmt.Errorf("%w within %s: landed on %s", ErrLoginTimeout, m.opts.LoginTimeout, last)
}

// IsAuthenticated inspects the current address, and in strict mode the
// navigation bar, without navigating. Any fault counts as signed out.
func (m *Manager) IsAuthenticated(page browser.Page) bool {
	return m.isAuthenticated(page, 0)
}

func (m *Manager) isAuthenticated(page browser.Page, wait time.Duration) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Login state inspection panicked", "panic", r)
			ok = false
		}
	}()

	if page == nil {
		return false
	}
	current, err := page.URL()
	if err != nil {
		logger.Debug("Cannot read page address", "error", err)
		return false
	}
	if Classify(current) != Authenticated {
		return false
	}
	if !m.opts.StrictProbe {
		return true
	}
	_, found := m.resolver.Resolve(page, selector.NavMarker, wait)
	return found
}

// Probe opens the feed and reports whether the session is signed in.
func (m *Manager) Probe(page browser.Page) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("Login probe panicked", "panic", r)
			ok = false
		}
	}()

	if page == nil {
		return false
	}
	if err := page.Navigate(m.opts.BaseURL+"/feed/", m.opts.NavigationTimeout); err != nil {
		logger.Debug("Login probe navigation failed", "error", err)
		return false
	}
	return m.isAuthenticated(page, markerWait)
}
