package search

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/yourusername/linkedin-mcp/internal/browser/browsertest"
	"github.com/yourusername/linkedin-mcp/internal/selector"
)

func resolver() *selector.Resolver {
	return selector.NewResolver(selector.Default(), time.Millisecond)
}

func TestBuildSearchURL(t *testing.T) {
	got := BuildSearchURL("https://www.linkedin.com", " golang engineer ")
	assert.Equal(t, "https://www.linkedin.com/search/results/people/?keywords=golang+engineer&origin=GLOBAL_SEARCH_HEADER", got)
}

func TestProfileIDFromURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.linkedin.com/in/jane-doe-123/", "jane-doe-123"},
		{"https://www.linkedin.com/in/jane-doe-123?miniProfileUrn=urn%3Ali", "jane-doe-123"},
		{"https://www.linkedin.com/in/j%C3%BCrgen/details", "jürgen"},
		{"/in/relative", "relative"},
		{"https://www.linkedin.com/company/acme/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProfileIDFromURL(tt.in), tt.in)
	}
}

func TestCleanProfileURL(t *testing.T) {
	assert.Equal(t, "https://www.linkedin.com/in/jane", CleanProfileURL("https://www.linkedin.com/in/jane/?miniProfileUrn=x"))
	assert.Equal(t, "https://www.linkedin.com/in/jane", CleanProfileURL("https://www.linkedin.com/in/jane#top"))
	assert.Equal(t, "", CleanProfileURL(""))
}

func TestExtractCard(t *testing.T) {
	button := browsertest.NewElement("Connect")
	var gotArgs []interface{}
	button.EvalFunc = func(js string, args ...interface{}) (gson.JSON, error) {
		gotArgs = args
		return gson.New(map[string]interface{}{
			"name":       " Jane Doe ",
			"profileUrl": "https://www.linkedin.com/in/jane-doe/?miniProfileUrn=abc",
			"title":      "Staff Engineer",
			"location":   "Berlin",
		}), nil
	}

	card := ExtractCard(resolver(), button)
	assert.Equal(t, ProfileCard{
		Name:       "Jane Doe",
		ProfileURL: "https://www.linkedin.com/in/jane-doe",
		Title:      "Staff Engineer",
		Location:   "Berlin",
		ProfileID:  "jane-doe",
	}, card)

	require.Len(t, gotArgs, 4)
	assert.Equal(t, resolver().CSSList(selector.CardContainer), gotArgs[0])
}

func TestExtractCardFallsBackToPlaceholder(t *testing.T) {
	tests := []struct {
		name string
		eval func(string, ...interface{}) (gson.JSON, error)
	}{
		{"no container", func(string, ...interface{}) (gson.JSON, error) { return gson.New(nil), nil }},
		{"eval fault", func(string, ...interface{}) (gson.JSON, error) { return gson.JSON{}, errors.New("detached") }},
		{"panic", func(string, ...interface{}) (gson.JSON, error) { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			button := browsertest.NewElement("Connect")
			button.EvalFunc = tt.eval
			assert.Equal(t, Placeholder(), ExtractCard(resolver(), button))
		})
	}
}

func TestExtractCardMissingName(t *testing.T) {
	button := browsertest.NewElement("Connect")
	button.EvalFunc = func(string, ...interface{}) (gson.JSON, error) {
		return gson.New(map[string]interface{}{"name": "", "profileUrl": "", "title": "CTO", "location": ""}), nil
	}

	card := ExtractCard(resolver(), button)
	assert.Equal(t, PlaceholderName, card.Name)
	assert.Equal(t, "CTO", card.Title)
	assert.Empty(t, card.ProfileID)
}

func TestNextPage(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		ok, err := NextPage(resolver(), browsertest.NewPage(), 0)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("disabled", func(t *testing.T) {
		page := browsertest.NewPage()
		next := browsertest.NewElement("Next")
		next.Props["disabled"] = true
		page.SetElements(`button[aria-label="Next"]`, next)

		ok, err := NextPage(resolver(), page, 0)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Zero(t, next.ClickCount())
	})

	t.Run("enabled", func(t *testing.T) {
		page := browsertest.NewPage()
		next := browsertest.NewElement("Next")
		page.SetElements(`button[aria-label="Next"]`, next)

		ok, err := NextPage(resolver(), page, 0)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, next.ClickCount())
	})

	t.Run("click fault", func(t *testing.T) {
		page := browsertest.NewPage()
		next := browsertest.NewElement("Next")
		next.ClickErr = errors.New("covered by overlay")
		page.SetElements(`button.artdeco-pagination__button--next`, next)

		ok, err := NextPage(resolver(), page, 0)
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
