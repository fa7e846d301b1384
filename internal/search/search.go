// Package search handles people-search result pages: building the query
// address, reading the profile card around a result, and paging.
package search

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/selector"
)

// PlaceholderName stands in for a name that could not be read.
const PlaceholderName = "Unknown Profile"

// ProfileCard is the metadata shown next to one search result.
type ProfileCard struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profileUrl"`
	Title      string `json:"title"`
	Location   string `json:"location"`
	ProfileID  string `json:"profileId"`
}

// Placeholder returns the card used when extraction fails.
func Placeholder() ProfileCard {
	return ProfileCard{Name: PlaceholderName}
}

// BuildSearchURL constructs a LinkedIn people search URL
func BuildSearchURL(base, query string) string {
	params := url.Values{}
	params.Add("keywords", strings.TrimSpace(query))
	params.Add("origin", "GLOBAL_SEARCH_HEADER")
	return base + "/search/results/people/?" + params.Encode()
}

// cardJS walks up from the connect button to its result item, then reads
// the first matching name, title and location in it. Each argument lists
// candidate selectors in priority order.
const cardJS = `(containers, names, titles, locations) => {
	let container = null;
	for (const sel of containers) {
		container = this.closest(sel);
		if (container) break;
	}
	if (!container) return null;

	const first = (sels) => {
		for (const sel of sels) {
			const el = container.querySelector(sel);
			if (el) return el;
		}
		return null;
	};
	const text = (el) => el ? (el.innerText || el.textContent || '').trim() : '';

	const nameEl = first(names);
	const link = nameEl ? (nameEl.closest('a') || nameEl.querySelector('a')) : null;
	return {
		name: text(nameEl),
		profileUrl: link ? link.href : '',
		title: text(first(titles)),
		location: text(first(locations)),
	};
}`

// ExtractCard reads the profile card of the result containing button. It
// never fails: anything unreadable yields the placeholder card.
func ExtractCard(r *selector.Resolver, button browser.Element) (card ProfileCard) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn("Profile card extraction panicked", "panic", rec)
			card = Placeholder()
		}
	}()

	res, err := button.Eval(cardJS,
		r.CSSList(selector.CardContainer),
		r.CSSList(selector.CardName),
		r.CSSList(selector.CardTitle),
		r.CSSList(selector.CardLocation),
	)
	if err != nil {
		logger.Debug("Failed to extract profile card", "error", err)
		return Placeholder()
	}
	if res.Nil() {
		logger.Debug("No result container around connect button")
		return Placeholder()
	}

	card = ProfileCard{
		Name:       strings.TrimSpace(res.Get("name").Str()),
		ProfileURL: CleanProfileURL(res.Get("profileUrl").Str()),
		Title:      strings.TrimSpace(res.Get("title").Str()),
		Location:   strings.TrimSpace(res.Get("location").Str()),
	}
	if card.Name == "" {
		card.Name = PlaceholderName
	}
	card.ProfileID = ProfileIDFromURL(card.ProfileURL)
	return card
}

// ProfileIDFromURL returns the public identifier in a /in/<id> address, or
// "" when there is none.
func ProfileIDFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	i := strings.Index(path, "/in/")
	if i == -1 {
		return ""
	}
	id := path[i+len("/in/"):]
	if j := strings.Index(id, "/"); j != -1 {
		id = id[:j]
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		id = unescaped
	}
	return id
}

// CleanProfileURL removes query parameters and normalizes profile URL
// LinkedIn appends garbage query params like miniProfileUrn that must be stripped
func CleanProfileURL(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i != -1 {
		rawURL = rawURL[:i]
	}
	return strings.TrimRight(strings.TrimSpace(rawURL), "/")
}

// NextPage clicks the next-page button. It reports false without error when
// the button is missing or disabled, meaning there are no more results.
func NextPage(r *selector.Resolver, page browser.Page, timeout time.Duration) (bool, error) {
	next, ok := r.Resolve(page, selector.NextPageButton, timeout)
	if !ok {
		logger.Debug("No next page button")
		return false, nil
	}

	disabled, err := next.Property("disabled")
	if err == nil && disabled.Bool() {
		logger.Debug("Next page button is disabled")
		return false, nil
	}

	if err := next.Click(timeout); err != nil {
		return false, fmt.Errorf("failed to click next button: %w", err)
	}
	return true, nil
}
