// Package connection sends connection requests from people-search results.
package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/search"
	"github.com/yourusername/linkedin-mcp/internal/selector"
	"github.com/yourusername/linkedin-mcp/internal/stealth"
	"github.com/yourusername/linkedin-mcp/internal/storage"
)

var (
	// ErrDailyLimit is returned when the ledger shows no requests left today.
	ErrDailyLimit = errors.New("daily connection request limit reached")
	// ErrHourlyLimit is returned when the last hour used up the hourly limit.
	ErrHourlyLimit = errors.New("hourly connection request limit reached")
)

// Outcome of one connection attempt.
type Outcome int

const (
	Sent Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Sent {
		return "success"
	}
	return "error"
}

// Attempt is the result of acting on one connect button.
type Attempt struct {
	Profile *search.ProfileCard
	Outcome Outcome
	// Reason is set only for failed attempts.
	Reason string
}

// MarshalJSON renders the attempt as {status, profile, error}.
func (a Attempt) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status  string              `json:"status"`
		Profile *search.ProfileCard `json:"profile"`
		Error   string              `json:"error,omitempty"`
	}{
		Status:  a.Outcome.String(),
		Profile: a.Profile,
		Error:   a.Reason,
	})
}

// Result is the ordered list of attempts plus how many were sent.
type Result struct {
	Attempts []Attempt
	Sent     int
}

// Ledger records sent requests and counts recent ones.
type Ledger interface {
	RecordAction(actionType string) error
	ActionsToday(actionType string) (int, error)
	ActionsInLastHour(actionType string) (int, error)
}

// Options configures an Engine.
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	// StepTimeout bounds every click and element wait inside an attempt.
	StepTimeout   time.Duration
	AttemptPause  time.Duration
	PagePause     time.Duration
	MaxPages      int
	DailyLimit    int
	HourlyLimit   int
	MaxNoteLength int
	TypingSpeed   time.Duration
}

// Engine walks search results and sends connection requests.
type Engine struct {
	opts     Options
	resolver *selector.Resolver
	pacer    *stealth.Pacer
	ledger   Ledger
}

// NewEngine returns an engine locating buttons through resolver.
func NewEngine(opts Options, resolver *selector.Resolver, pacer *stealth.Pacer) *Engine {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.MaxNoteLength <= 0 {
		opts.MaxNoteLength = DefaultMaxNoteLength
	}
	return &Engine{opts: opts, resolver: resolver, pacer: pacer}
}

// WithLedger enforces the daily and hourly limits from l and records sent requests.
func (e *Engine) WithLedger(l Ledger) *Engine {
	e.ledger = l
	return e
}

// Send searches for query and attempts up to maxConnections requests. A
// failed attempt is recorded and the batch moves on; only navigating to the
// results or an exhausted daily limit fails the whole call.
func (e *Engine) Send(page browser.Page, query string, maxConnections int, noteTemplate string) (Result, error) {
	result := Result{Attempts: []Attempt{}}

	quota, err := e.quota(maxConnections)
	if err != nil {
		return result, err
	}
	if quota <= 0 {
		return result, nil
	}

	logger.Info("Starting connection requests", "query", query, "quota", quota, "with_note", noteTemplate != "")

	searchURL := search.BuildSearchURL(e.opts.BaseURL, query)
	if err := page.Navigate(searchURL, e.opts.NavigationTimeout); err != nil {
		return result, fmt.Errorf("failed to navigate to search results: %w", err)
	}
	e.waitForResults(page)

	for pageNum := 1; pageNum <= e.opts.MaxPages; pageNum++ {
		buttons := e.resolver.ResolveAll(page, selector.ConnectButton)
		logger.Debug("Found connect buttons", "page", pageNum, "count", len(buttons))

		for _, button := range buttons {
			if len(result.Attempts) >= quota {
				break
			}

			attempt := e.attempt(page, button, noteTemplate)
			result.Attempts = append(result.Attempts, attempt)
			if attempt.Outcome == Sent {
				result.Sent++
				e.record()
				logger.Info("Connection request sent", "name", attempt.Profile.Name, "profile_id", attempt.Profile.ProfileID)
			} else {
				logger.Warn("Connection request failed", "name", attempt.Profile.Name, "reason", attempt.Reason)
			}

			e.pacer.Pause(e.opts.AttemptPause)
		}

		if len(result.Attempts) >= quota || pageNum == e.opts.MaxPages {
			break
		}

		moved, err := search.NextPage(e.resolver, page, e.opts.StepTimeout)
		if err != nil {
			logger.Warn("Failed to move to next results page", "error", err)
			break
		}
		if !moved {
			logger.Info("No more result pages")
			break
		}
		logger.Info("Navigating to the next page of search results", "page", pageNum+1)
		e.pacer.Pause(e.opts.PagePause)
		e.waitForResults(page)
	}

	logger.Info("Connection requests finished", "attempts", len(result.Attempts), "sent", result.Sent)
	return result, nil
}

// quota caps maxConnections by what is left of the daily and hourly limits.
// A zero limit is not enforced.
func (e *Engine) quota(maxConnections int) (int, error) {
	if e.ledger == nil {
		return maxConnections, nil
	}

	quota := maxConnections
	limits := []struct {
		name  string
		limit int
		count func(string) (int, error)
		err   error
	}{
		{"daily", e.opts.DailyLimit, e.ledger.ActionsToday, ErrDailyLimit},
		{"hourly", e.opts.HourlyLimit, e.ledger.ActionsInLastHour, ErrHourlyLimit},
	}
	for _, l := range limits {
		if l.limit <= 0 {
			continue
		}
		sent, err := l.count(storage.ActionConnectionRequest)
		if err != nil {
			return 0, fmt.Errorf("failed to check %s limit: %w", l.name, err)
		}
		remaining := l.limit - sent
		if remaining <= 0 {
			return 0, fmt.Errorf("%w: %d/%d", l.err, sent, l.limit)
		}
		if remaining < quota {
			logger.Info("Limit caps this batch", "limit", l.name, "remaining", remaining, "requested", maxConnections)
			quota = remaining
		}
	}
	return quota, nil
}

func (e *Engine) record() {
	if e.ledger == nil {
		return
	}
	if err := e.ledger.RecordAction(storage.ActionConnectionRequest); err != nil {
		logger.Warn("Failed to record connection request", "error", err)
	}
}

func (e *Engine) waitForResults(page browser.Page) {
	if _, ok := e.resolver.Resolve(page, selector.SearchResultsList, e.opts.NavigationTimeout); !ok {
		logger.Warn("Search results did not render")
	}
}

// attempt runs the connect sequence for one button. Any failure becomes a
// Failed attempt and the invitation dialog is dismissed.
func (e *Engine) attempt(page browser.Page, button browser.Element, noteTemplate string) (a Attempt) {
	card := search.ExtractCard(e.resolver, button)
	a.Profile = &card

	defer func() {
		if r := recover(); r != nil {
			a.Outcome = Failed
			a.Reason = fmt.Sprintf("panic: %v", r)
			e.dismiss(page)
		}
	}()

	note := ""
	if noteTemplate != "" {
		note = RenderNote(noteTemplate, card, e.opts.MaxNoteLength)
	}

	if err := e.sendInvite(page, button, note); err != nil {
		a.Outcome = Failed
		a.Reason = err.Error()
		e.dismiss(page)
		return a
	}
	a.Outcome = Sent
	return a
}

func (e *Engine) sendInvite(page browser.Page, button browser.Element, note string) error {
	e.pacer.Throttle()
	if err := button.Click(e.opts.StepTimeout); err != nil {
		return fmt.Errorf("failed to click connect button: %w", err)
	}

	if note == "" {
		return e.click(page, selector.SendNoNoteButton, "send without a note button")
	}

	if err := e.click(page, selector.AddNoteButton, "add a note button"); err != nil {
		return err
	}

	field, ok := e.resolver.Resolve(page, selector.NoteField, e.opts.StepTimeout)
	if !ok {
		return errors.New("note field not found")
	}
	if err := stealth.TypeText(e.pacer, field, note, e.opts.TypingSpeed, e.opts.StepTimeout); err != nil {
		return fmt.Errorf("failed to fill note: %w", err)
	}
	e.pacer.Pause(stealth.ShortDelay())

	return e.click(page, selector.SendNoteButton, "send button")
}

func (e *Engine) click(page browser.Page, t selector.Target, what string) error {
	el, ok := e.resolver.Resolve(page, t, e.opts.StepTimeout)
	if !ok {
		return fmt.Errorf("%s not found", what)
	}
	if err := el.Click(e.opts.StepTimeout); err != nil {
		return fmt.Errorf("failed to click %s: %w", what, err)
	}
	return nil
}

// dismiss closes a half-finished invitation dialog so the next attempt
// starts from the results list.
func (e *Engine) dismiss(page browser.Page) {
	el, ok := e.resolver.Resolve(page, selector.DismissButton, 0)
	if !ok {
		return
	}
	if err := el.Click(e.opts.StepTimeout); err != nil {
		logger.Debug("Failed to dismiss invitation dialog", "error", err)
	}
}
