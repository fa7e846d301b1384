package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/yourusername/linkedin-mcp/internal/browser"
	"github.com/yourusername/linkedin-mcp/internal/browser/browsertest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newController(e *browsertest.Engine) *Controller {
	return NewController(e, browser.LaunchOptions{Headless: true})
}

func TestAcquireBuildsAndReusesSession(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	s1, err := c.Acquire()
	require.NoError(t, err)
	assert.Equal(t, Open, s1.State)
	assert.NotEmpty(t, s1.ID)
	assert.True(t, c.IsHealthy())

	s2, err := c.Acquire()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, e.Launches)
}

func TestAcquireReplacesDetachedSession(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	s1, err := c.Acquire()
	require.NoError(t, err)
	e.Pages[0].Detached = true
	assert.False(t, c.IsHealthy())

	s2, err := c.Acquire()
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.Equal(t, 2, e.Launches)
	assert.Equal(t, 1, e.Shutdowns)
	assert.Equal(t, 1, e.Contexts[0].Closed)
	assert.Equal(t, 1, e.Browsers[0].Closed)
}

func TestAcquireUnwindsOnFailure(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(e *browsertest.Engine)
		step         string
		browserClose int
		contextClose int
	}{
		{
			name:  "launch",
			setup: func(e *browsertest.Engine) { e.LaunchErr = errors.New("no chrome") },
			step:  "launch",
		},
		{
			name:         "context",
			setup:        func(e *browsertest.Engine) { e.NewContextErr = errors.New("boom") },
			step:         "context",
			browserClose: 1,
		},
		{
			name:         "page",
			setup:        func(e *browsertest.Engine) { e.NewPageErr = errors.New("boom") },
			step:         "page",
			browserClose: 1,
			contextClose: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &browsertest.Engine{}
			tt.setup(e)
			c := newController(e)

			s, err := c.Acquire()
			assert.Nil(t, s)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSessionInit)

			var initErr *InitError
			require.ErrorAs(t, err, &initErr)
			assert.Equal(t, tt.step, initErr.Step)

			assert.Equal(t, 1, e.Shutdowns)
			if len(e.Browsers) > 0 {
				assert.Equal(t, tt.browserClose, e.Browsers[0].Closed)
			}
			if len(e.Contexts) > 0 {
				assert.Equal(t, tt.contextClose, e.Contexts[0].Closed)
			}
			assert.Equal(t, Closed, c.State())
			assert.False(t, c.IsHealthy())
		})
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	_, err := c.Acquire()
	require.NoError(t, err)

	c.Release()
	c.Release()

	assert.Equal(t, Closed, c.State())
	assert.Equal(t, 1, e.Shutdowns)
	assert.Equal(t, 1, e.Contexts[0].Closed)
	assert.Equal(t, 1, e.Browsers[0].Closed)
}

func TestReleaseOnNeverOpenedController(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	c.Release()
	assert.Equal(t, Closed, c.State())
	assert.Zero(t, e.Shutdowns)
}

func TestReleaseContinuesPastCloseErrors(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	_, err := c.Acquire()
	require.NoError(t, err)
	e.CloseErr = errors.New("already gone")

	c.Release()
	assert.Equal(t, 1, e.Contexts[0].Closed)
	assert.Equal(t, 1, e.Browsers[0].Closed)
	assert.Equal(t, 1, e.Shutdowns)
	assert.Equal(t, Closed, c.State())
}

func TestOnOpenRunsForFreshSessionsOnly(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	var calls int
	c.OnOpen(func(s *Session) error {
		calls++
		return errors.New("no cookies")
	})

	_, err := c.Acquire()
	require.NoError(t, err)
	_, err = c.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUseReleasesUnlessKeptAlive(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	require.NoError(t, c.Use(false, func(s *Session) error { return nil }))
	assert.Equal(t, Closed, c.State())
	assert.Equal(t, 1, e.Shutdowns)

	require.NoError(t, c.Use(true, func(s *Session) error { return nil }))
	assert.Equal(t, Open, c.State())

	failure := errors.New("scrape failed")
	err := c.Use(true, func(s *Session) error { return failure })
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, Closed, c.State(), "failed calls always release")
}

func TestUseRecoversPanics(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	err := c.Use(true, func(s *Session) error { panic("nil element") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil element")
	assert.Equal(t, Closed, c.State())
	assert.Equal(t, 1, e.Shutdowns)

	require.NoError(t, c.Use(false, func(s *Session) error { return nil }), "lease is returned after a panic")
}

func TestUseRejectsOverlappingCalls(t *testing.T) {
	e := &browsertest.Engine{}
	c := newController(e)

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.Use(false, func(s *Session) error {
			close(entered)
			<-proceed
			return nil
		})
	}()

	<-entered
	err := c.Use(false, func(s *Session) error { return nil })
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(proceed)
	wg.Wait()
	assert.Equal(t, 1, e.Launches)
}

func TestUsePropagatesInitFailure(t *testing.T) {
	e := &browsertest.Engine{LaunchErr: errors.New("no chrome")}
	c := newController(e)

	var ran bool
	err := c.Use(false, func(s *Session) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionInit)
	assert.False(t, ran)
}
