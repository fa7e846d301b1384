package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/yourusername/linkedin-mcp/internal/browser/browsertest"
	"github.com/yourusername/linkedin-mcp/internal/search"
	"github.com/yourusername/linkedin-mcp/internal/selector"
	"github.com/yourusername/linkedin-mcp/internal/stealth"
	"github.com/yourusername/linkedin-mcp/internal/storage"
)

const (
	base          = "https://www.linkedin.com"
	connectCSS    = `button[aria-label^="Invite"][aria-label$="to connect"]`
	sendNoNoteCSS = `button[aria-label="Send without a note"]`
	addNoteCSS    = `button[aria-label="Add a note"]`
	noteCSS       = `#custom-message`
	sendNoteCSS   = `button[aria-label="Send now"]`
	dismissCSS    = `button[aria-label="Dismiss"]`
	nextCSS       = `button[aria-label="Next"]`
)

type fakeLedger struct {
	today    int
	lastHour int
	recorded []string
}

func (l *fakeLedger) RecordAction(actionType string) error {
	l.recorded = append(l.recorded, actionType)
	return nil
}

func (l *fakeLedger) ActionsToday(string) (int, error) { return l.today, nil }

func (l *fakeLedger) ActionsInLastHour(string) (int, error) { return l.lastHour, nil }

func newEngine() *Engine {
	return NewEngine(Options{
		BaseURL:     base,
		StepTimeout: 5 * time.Millisecond,
	}, selector.NewResolver(selector.Default(), time.Millisecond), stealth.NewNoopPacer())
}

// connectButtons returns n buttons whose result card names are prefix-i.
func connectButtons(prefix string, n int) []*browsertest.Element {
	buttons := make([]*browsertest.Element, n)
	for i := range buttons {
		name := fmt.Sprintf("%s-%d", prefix, i)
		b := browsertest.NewElement("Connect")
		b.EvalFunc = func(string, ...interface{}) (gson.JSON, error) {
			return gson.New(map[string]interface{}{
				"name":       name,
				"profileUrl": base + "/in/" + name + "/",
				"title":      "Engineer",
				"location":   "Remote",
			}), nil
		}
		buttons[i] = b
	}
	return buttons
}

// resultsPage returns a page with a no-note send flow and the given buttons.
func resultsPage(buttons ...*browsertest.Element) (*browsertest.Page, *browsertest.Element) {
	page := browsertest.NewPage()
	send := browsertest.NewElement("Send")
	page.SetElements(connectCSS, buttons...)
	page.SetElements(sendNoNoteCSS, send)
	return page, send
}

func TestSendNeverExceedsQuota(t *testing.T) {
	buttons := connectButtons("p", 10)
	page, send := resultsPage(buttons...)

	result, err := newEngine().Send(page, "golang", 3, "")
	require.NoError(t, err)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, 3, result.Sent)
	assert.Equal(t, 3, send.ClickCount())

	for i, b := range buttons {
		if i < 3 {
			assert.Equal(t, 1, b.ClickCount(), "button %d", i)
			continue
		}
		assert.Zero(t, b.ClickCount(), "button %d must not be touched", i)
	}
	assert.Equal(t, "p-0", result.Attempts[0].Profile.Name)
	assert.Equal(t, "p-0", result.Attempts[0].Profile.ProfileID)
	assert.Equal(t, []string{search.BuildSearchURL(base, "golang")}, page.Navigations)
}

func TestSendNoteFallsBackToLiteralTemplate(t *testing.T) {
	buttons := connectButtons("p", 1)
	page := browsertest.NewPage()
	page.SetElements(connectCSS, buttons...)
	add := browsertest.NewElement("Add a note")
	field := browsertest.NewElement("")
	send := browsertest.NewElement("Send")
	page.SetElements(addNoteCSS, add)
	page.SetElements(noteCSS, field)
	page.SetElements(sendNoteCSS, send)

	template := "Hi {name}, re {unknown_field}"
	result, err := newEngine().Send(page, "golang", 1, template)
	require.NoError(t, err)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, Sent, result.Attempts[0].Outcome)
	assert.Equal(t, template, field.Value)
	assert.Equal(t, 1, add.ClickCount())
	assert.Equal(t, 1, send.ClickCount())
}

func TestSendRendersNote(t *testing.T) {
	page := browsertest.NewPage()
	page.SetElements(connectCSS, connectButtons("jane", 1)...)
	field := browsertest.NewElement("")
	page.SetElements(addNoteCSS, browsertest.NewElement(""))
	page.SetElements(noteCSS, field)
	page.SetElements(sendNoteCSS, browsertest.NewElement(""))

	result, err := newEngine().Send(page, "golang", 1, "Hi {name}, fellow {title} in {location}")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, "Hi jane-0, fellow Engineer in Remote", field.Value)
}

func TestSendIsolatesFailedAttempts(t *testing.T) {
	buttons := connectButtons("p", 3)
	buttons[1].ClickErr = errors.New("element is covered")
	page, _ := resultsPage(buttons...)
	dismiss := browsertest.NewElement("")
	page.SetElements(dismissCSS, dismiss)

	result, err := newEngine().Send(page, "golang", 5, "")
	require.NoError(t, err)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, 2, result.Sent)

	failed := result.Attempts[1]
	assert.Equal(t, Failed, failed.Outcome)
	assert.Contains(t, failed.Reason, "element is covered")
	assert.Equal(t, "p-1", failed.Profile.Name)
	assert.Equal(t, 1, dismiss.ClickCount())
}

func TestSendMissingDialogButtonFails(t *testing.T) {
	page := browsertest.NewPage()
	page.SetElements(connectCSS, connectButtons("p", 2)...)

	result, err := newEngine().Send(page, "golang", 2, "")
	require.NoError(t, err)
	require.Len(t, result.Attempts, 2)
	assert.Zero(t, result.Sent)
	for _, a := range result.Attempts {
		assert.Equal(t, Failed, a.Outcome)
		assert.Equal(t, "send without a note button not found", a.Reason)
	}
}

func TestSendPaginates(t *testing.T) {
	first := connectButtons("first", 2)
	second := connectButtons("second", 2)
	page, _ := resultsPage(first...)

	next := browsertest.NewElement("Next")
	next.OnClick = func(p *browsertest.Page) error {
		p.SetElements(connectCSS, second...)
		return nil
	}
	page.SetElements(nextCSS, next)

	result, err := newEngine().Send(page, "golang", 3, "")
	require.NoError(t, err)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, "second-0", result.Attempts[2].Profile.Name)
	assert.Equal(t, 1, next.ClickCount())
	assert.Zero(t, second[1].ClickCount())
}

func TestSendStopsWithoutNextPage(t *testing.T) {
	page, _ := resultsPage(connectButtons("p", 2)...)

	result, err := newEngine().Send(page, "golang", 10, "")
	require.NoError(t, err)
	assert.Len(t, result.Attempts, 2)
}

func TestSendStopsAtMaxPages(t *testing.T) {
	page, _ := resultsPage(connectButtons("p", 1)...)
	next := browsertest.NewElement("Next")
	var pages int
	next.OnClick = func(p *browsertest.Page) error {
		pages++
		p.SetElements(connectCSS, connectButtons(fmt.Sprintf("page%d", pages), 1)...)
		return nil
	}
	page.SetElements(nextCSS, next)

	result, err := newEngine().Send(page, "golang", 10, "")
	require.NoError(t, err)
	assert.Len(t, result.Attempts, 3)
	assert.Equal(t, 2, next.ClickCount())
}

func TestSendNavigationFault(t *testing.T) {
	page := browsertest.NewPage()
	page.NavigateFunc = func(*browsertest.Page, string) error { return errors.New("net::ERR_TIMED_OUT") }

	result, err := newEngine().Send(page, "golang", 3, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_TIMED_OUT")
	assert.Empty(t, result.Attempts)
}

func TestSendDailyLimit(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		page, _ := resultsPage(connectButtons("p", 3)...)
		e := newEngine()
		e.opts.DailyLimit = 20
		e.WithLedger(&fakeLedger{today: 20})

		_, err := e.Send(page, "golang", 3, "")
		assert.ErrorIs(t, err, ErrDailyLimit)
		assert.Empty(t, page.Navigations)
	})

	t.Run("caps batch", func(t *testing.T) {
		page, _ := resultsPage(connectButtons("p", 5)...)
		ledger := &fakeLedger{today: 18}
		e := newEngine()
		e.opts.DailyLimit = 20
		e.WithLedger(ledger)

		result, err := e.Send(page, "golang", 5, "")
		require.NoError(t, err)
		assert.Len(t, result.Attempts, 2)
		assert.Equal(t, []string{storage.ActionConnectionRequest, storage.ActionConnectionRequest}, ledger.recorded)
	})
}

func TestSendHourlyLimit(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		page, _ := resultsPage(connectButtons("p", 3)...)
		e := newEngine()
		e.opts.HourlyLimit = 5
		e.WithLedger(&fakeLedger{today: 5, lastHour: 5})

		_, err := e.Send(page, "golang", 3, "")
		assert.ErrorIs(t, err, ErrHourlyLimit)
		assert.Empty(t, page.Navigations)
	})

	t.Run("tighter than daily", func(t *testing.T) {
		page, _ := resultsPage(connectButtons("p", 5)...)
		ledger := &fakeLedger{today: 10, lastHour: 4}
		e := newEngine()
		e.opts.DailyLimit = 20
		e.opts.HourlyLimit = 5
		e.WithLedger(ledger)

		result, err := e.Send(page, "golang", 5, "")
		require.NoError(t, err)
		assert.Len(t, result.Attempts, 1)
		assert.Len(t, ledger.recorded, 1)
	})

	t.Run("daily still wins", func(t *testing.T) {
		page, _ := resultsPage(connectButtons("p", 3)...)
		e := newEngine()
		e.opts.DailyLimit = 20
		e.opts.HourlyLimit = 5
		e.WithLedger(&fakeLedger{today: 20})

		_, err := e.Send(page, "golang", 3, "")
		assert.ErrorIs(t, err, ErrDailyLimit)
	})
}

func TestAttemptJSON(t *testing.T) {
	card := search.ProfileCard{Name: "Jane", ProfileURL: base + "/in/jane", ProfileID: "jane"}

	sent, err := json.Marshal(Attempt{Profile: &card, Outcome: Sent})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","profile":{"name":"Jane","profileUrl":"https://www.linkedin.com/in/jane","title":"","location":"","profileId":"jane"}}`, string(sent))

	failed, err := json.Marshal(Attempt{Outcome: Failed, Reason: "send button not found"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","profile":null,"error":"send button not found"}`, string(failed))
}
