// Package activity scrapes posts from the recent-activity listing of
// profiles.
package activity

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/logger"
	"github.com/yourusername/linkedin-mcp/internal/selector"
	"github.com/yourusername/linkedin-mcp/internal/stealth"
	"github.com/yourusername/linkedin-mcp/internal/storage"
)

// PostRecord is one scraped post.
type PostRecord struct {
	ProfileID string `json:"profile_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

const (
	heightJS = `() => document.body.scrollHeight`
	scrollJS = `() => window.scrollTo(0, document.body.scrollHeight)`
)

// Ledger records performed actions.
type Ledger interface {
	RecordAction(actionType string) error
}

// Options configures a Scraper.
type Options struct {
	BaseURL           string
	NavigationTimeout time.Duration
	// WaitTimeout bounds the wait for the first post container.
	WaitTimeout  time.Duration
	Scrolls      int
	Settle       time.Duration
	ProfileDelay time.Duration
	// Dedupe drops repeated posts within one profile.
	Dedupe bool
}

// Scraper collects posts profile by profile. A fault on one profile never
// stops the others.
type Scraper struct {
	opts     Options
	resolver *selector.Resolver
	pacer    *stealth.Pacer
	ledger   Ledger
}

// NewScraper returns a scraper locating posts through resolver.
func NewScraper(opts Options, resolver *selector.Resolver, pacer *stealth.Pacer) *Scraper {
	return &Scraper{opts: opts, resolver: resolver, pacer: pacer}
}

// WithLedger records each visited profile in l.
func (s *Scraper) WithLedger(l Ledger) *Scraper {
	s.ledger = l
	return s
}

// ActivityURL returns the recent-activity listing of profileID.
func ActivityURL(base, profileID string) string {
	return fmt.Sprintf("%s/in/%s/recent-activity/all/", base, url.PathEscape(profileID))
}

// Scrape returns up to maxPosts posts per profile, in profile order then
// document order.
func (s *Scraper) Scrape(page browser.Page, profileIDs []string, maxPosts int) []PostRecord {
	all := []PostRecord{}
	if maxPosts <= 0 {
		return all
	}

	for _, raw := range profileIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			logger.Warn("Skipping blank profile id")
			continue
		}

		if len(all) > 0 {
			s.pacer.Pause(s.opts.ProfileDelay)
		}

		posts, err := s.scrapeProfile(page, id, maxPosts)
		if err != nil {
			logger.Error("Error scraping profile", "profile_id", id, "error", err)
			continue
		}
		all = append(all, posts...)
		logger.Info("Scraped profile posts", "profile_id", id, "count", len(posts), "total", len(all))
	}
	return all
}

func (s *Scraper) scrapeProfile(page browser.Page, id string, maxPosts int) (posts []PostRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scraping: %v", r)
		}
	}()

	logger.Info("Starting to scrape profile", "profile_id", id)
	s.pacer.Throttle()

	if err := page.Navigate(ActivityURL(s.opts.BaseURL, id), s.opts.NavigationTimeout); err != nil {
		return nil, fmt.Errorf("failed to navigate to activity page: %w", err)
	}
	if s.ledger != nil {
		if err := s.ledger.RecordAction(storage.ActionProfileVisit); err != nil {
			logger.Warn("Failed to record profile visit", "error", err)
		}
	}

	if _, ok := s.resolver.Resolve(page, selector.PostContainer, s.opts.WaitTimeout); !ok {
		logger.Info("No posts found for profile", "profile_id", id)
		return nil, nil
	}

	s.scroll(page)

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}

	posts, err = s.ParsePosts(id, html)
	if err != nil {
		return nil, err
	}
	if len(posts) > maxPosts {
		posts = posts[:maxPosts]
	}
	return posts, nil
}

// scroll pulls in lazily loaded posts, stopping early once the document
// stops growing.
func (s *Scraper) scroll(page browser.Page) {
	previous := 0
	for i := 0; i < s.opts.Scrolls; i++ {
		res, err := page.Eval(heightJS)
		if err != nil {
			logger.Warn("Error while scrolling", "error", err)
			return
		}
		height := res.Int()
		if height == previous {
			break
		}

		if _, err := page.Eval(scrollJS); err != nil {
			logger.Warn("Error while scrolling", "error", err)
			return
		}
		s.pacer.Pause(s.opts.Settle)
		previous = height
	}
	s.pacer.Pause(s.opts.Settle)
}

// ParsePosts extracts the non-empty posts of an activity listing document.
// A container qualifies only when it is a feed update tagged as an activity.
func (s *Scraper) ParsePosts(profileID, html string) ([]PostRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}

	posts := []PostRecord{}
	seen := map[string]bool{}
	doc.Find("[data-urn]").Each(func(_ int, container *goquery.Selection) {
		urn, _ := container.Attr("data-urn")
		if !strings.Contains(urn, "activity") || !s.resolver.Matches(container, selector.PostContainer) {
			return
		}

		content := s.resolver.FindText(container, selector.PostText)
		if content == "" {
			return
		}

		if s.opts.Dedupe {
			if seen[urn] {
				return
			}
			seen[urn] = true
		}

		posts = append(posts, PostRecord{
			ProfileID: profileID,
			Content:   content,
			Timestamp: s.resolver.FindText(container, selector.PostTimestamp),
		})
	})
	return posts, nil
}
