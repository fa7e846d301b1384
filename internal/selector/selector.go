// Package selector maps logical UI targets to ordered lists of concrete
// locators. LinkedIn ships more than one markup for the same control (plain
// class names and obfuscated hashed classes), so every lookup walks the
// candidates in priority order and takes the first one that resolves.
package selector

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
)

// Target names a logical UI element.
type Target string

const (
	LoginEmail    Target = "login.email"
	LoginPassword Target = "login.password"
	LoginSubmit   Target = "login.submit"
	NavMarker     Target = "nav.authenticated"

	PostContainer Target = "activity.post"
	PostText      Target = "activity.post.text"
	PostTimestamp Target = "activity.post.timestamp"

	ConnectButton     Target = "search.connect"
	AddNoteButton     Target = "invite.add_note"
	NoteField         Target = "invite.note"
	SendNoteButton    Target = "invite.send_with_note"
	SendNoNoteButton  Target = "invite.send_without_note"
	DismissButton     Target = "invite.dismiss"
	NextPageButton    Target = "search.next"
	SearchResultsList Target = "search.results"

	CardContainer Target = "search.card"
	CardName      Target = "search.card.name"
	CardTitle     Target = "search.card.title"
	CardLocation  Target = "search.card.location"
)

// Candidate is one concrete way of locating a target. When Text is set,
// only elements whose trimmed text matches it qualify.
type Candidate struct {
	CSS  string
	Text *regexp.Regexp
}

// CSS returns a candidate matched by selector only.
func CSS(sel string) Candidate {
	return Candidate{CSS: sel}
}

// WithText returns a candidate matched by selector and text.
func WithText(sel, pattern string) Candidate {
	return Candidate{CSS: sel, Text: regexp.MustCompile(pattern)}
}

// Registry holds the candidates for each target in priority order.
type Registry map[Target][]Candidate

// Default returns the built-in locators.
func Default() Registry {
	return Registry{
		LoginEmail: {
			CSS(`input[id="username"]`),
			CSS(`input[name="session_key"]`),
			CSS(`input[autocomplete="username"]`),
		},
		LoginPassword: {
			CSS(`input[id="password"]`),
			CSS(`input[name="session_password"]`),
			CSS(`input[type="password"]`),
		},
		LoginSubmit: {
			CSS(`button[type="submit"]`),
			CSS(`button[data-litms-control-urn="login-submit"]`),
			WithText(`button`, `(?i)^sign in$`),
		},
		NavMarker: {
			CSS(`#global-nav`),
			CSS(`.global-nav__me`),
			CSS(`nav[aria-label="Primary Navigation"]`),
		},

		PostContainer: {
			CSS(`div.feed-shared-update-v2`),
			CSS(`div[class*="feed-shared-update-v2"]`),
		},
		PostText: {
			CSS(`div.update-components-text`),
			CSS(`div.feed-shared-update-v2__description`),
			CSS(`div.feed-shared-text`),
		},
		PostTimestamp: {
			CSS(`time.artdeco-entity-lockup__caption`),
			CSS(`span.update-components-actor__sub-description`),
			CSS(`time`),
		},

		ConnectButton: {
			CSS(`button[aria-label^="Invite"][aria-label$="to connect"]`),
			WithText(`button`, `^Connect$`),
		},
		AddNoteButton: {
			CSS(`button[aria-label="Add a note"]`),
			WithText(`button`, `^Add a note$`),
		},
		NoteField: {
			CSS(`#custom-message`),
			CSS(`textarea[name="message"]`),
			CSS(`textarea[id*="custom-message"]`),
		},
		SendNoteButton: {
			CSS(`button[aria-label="Send now"]`),
			CSS(`button[aria-label="Send invitation"]`),
			WithText(`button`, `^Send$`),
		},
		SendNoNoteButton: {
			CSS(`button[aria-label="Send without a note"]`),
			WithText(`button`, `^Send without a note$`),
			WithText(`button`, `^Send$`),
		},
		DismissButton: {
			CSS(`button[aria-label="Dismiss"]`),
			CSS(`button.artdeco-modal__dismiss`),
		},
		NextPageButton: {
			CSS(`button[aria-label="Next"]`),
			CSS(`button.artdeco-pagination__button--next`),
		},
		SearchResultsList: {
			CSS(`ul.reusable-search__entity-result-list`),
			CSS(`div.search-results-container`),
			CSS(`main`),
		},

		CardContainer: {
			CSS(`.entity-result__item`),
			CSS(`.iLNPXRzIPSRzJxVVZISWYouxrvwqQ`),
			CSS(`li.reusable-search__result-container`),
		},
		CardName: {
			CSS(`.entity-result__title-text a`),
			CSS(`.vjvKoXFFJtfnpBNnkgFTzWnDmsSASvTcGEESnk a`),
			CSS(`a[href*="/in/"] span[aria-hidden="true"]`),
		},
		CardTitle: {
			CSS(`.entity-result__primary-subtitle`),
			CSS(`.hnypMlQNtRKZTJxKVVHfxzWpjYbYocHvxY`),
		},
		CardLocation: {
			CSS(`.entity-result__secondary-subtitle`),
		},
	}
}

// Resolver looks targets up in a registry.
type Resolver struct {
	registry Registry
	poll     time.Duration
	sleep    func(time.Duration)
}

// NewResolver returns a resolver polling every poll while waiting.
func NewResolver(registry Registry, poll time.Duration) *Resolver {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Resolver{registry: registry, poll: poll, sleep: time.Sleep}
}

// WithSleep replaces the wait between polls, returning r.
func (r *Resolver) WithSleep(sleep func(time.Duration)) *Resolver {
	r.sleep = sleep
	return r
}

// Resolve returns the first element matching t within scope. It keeps
// retrying all candidates until timeout; a zero timeout tries once. A miss
// is reported as false: drifting markup is expected, not exceptional.
func (r *Resolver) Resolve(scope browser.Scope, t Target, timeout time.Duration) (browser.Element, bool) {
	deadline := time.Now().Add(timeout)
	for {
		if els := r.lookup(scope, t); len(els) > 0 {
			return els[0], true
		}
		if timeout <= 0 || !time.Now().Before(deadline) {
			logger.Debug("Selector target not found", "target", t)
			return nil, false
		}
		r.sleep(r.poll)
	}
}

// ResolveAll returns every element matched by the first candidate of t that
// matches anything.
func (r *Resolver) ResolveAll(scope browser.Scope, t Target) []browser.Element {
	return r.lookup(scope, t)
}

func (r *Resolver) lookup(scope browser.Scope, t Target) []browser.Element {
	for _, c := range r.registry[t] {
		els, err := scope.Elements(c.CSS)
		if err != nil {
			logger.Debug("Selector candidate failed", "target", t, "selector", c.CSS, "error", err)
			continue
		}
		if c.Text != nil {
			els = filterByText(els, c.Text)
		}
		if len(els) > 0 {
			return els
		}
	}
	return nil
}

func filterByText(els []browser.Element, re *regexp.Regexp) []browser.Element {
	var out []browser.Element
	for _, el := range els {
		text, err := el.Text()
		if err != nil {
			continue
		}
		if re.MatchString(strings.TrimSpace(text)) {
			out = append(out, el)
		}
	}
	return out
}

// CSSList returns the plain selectors of t in order, skipping text-filtered
// candidates. It feeds lookups that run inside the page.
func (r *Resolver) CSSList(t Target) []string {
	var out []string
	for _, c := range r.registry[t] {
		if c.Text == nil {
			out = append(out, c.CSS)
		}
	}
	return out
}

// Find applies the candidates of t to a parsed document and returns the
// first non-empty match.
func (r *Resolver) Find(sel *goquery.Selection, t Target) *goquery.Selection {
	for _, c := range r.registry[t] {
		found := sel.Find(c.CSS)
		if c.Text != nil {
			found = found.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return c.Text.MatchString(strings.TrimSpace(s.Text()))
			})
		}
		if found.Length() > 0 {
			return found
		}
	}
	return sel.Slice(0, 0)
}

// FindText returns the trimmed text of the first match of t, or "".
func (r *Resolver) FindText(sel *goquery.Selection, t Target) string {
	found := r.Find(sel, t)
	if found.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(found.First().Text())
}

// Matches reports whether sel itself matches any candidate of t.
func (r *Resolver) Matches(sel *goquery.Selection, t Target) bool {
	for _, c := range r.registry[t] {
		if !sel.Is(c.CSS) {
			continue
		}
		if c.Text == nil || c.Text.MatchString(strings.TrimSpace(sel.Text())) {
			return true
		}
	}
	return false
}
