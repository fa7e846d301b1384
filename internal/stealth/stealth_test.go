package stealth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomDelayBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := RandomDelay(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
	assert.Equal(t, 5*time.Second, RandomDelay(5*time.Second, time.Second))
}

func TestJitter(t *testing.T) {
	assert.Equal(t, time.Second, Jitter(time.Second, 0))
	for i := 0; i < 50; i++ {
		d := Jitter(time.Second, 10)
		assert.GreaterOrEqual(t, d, 900*time.Millisecond)
		assert.Less(t, d, 1100*time.Millisecond)
	}
}

func TestRandomizeUserAgentAndViewport(t *testing.T) {
	assert.Contains(t, userAgents, RandomizeUserAgent())
	w, h := RandomViewport()
	assert.Positive(t, w)
	assert.Positive(t, h)
}

func TestPacerPause(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(0, 0).WithSleep(func(d time.Duration) { slept = append(slept, d) })

	p.Pause(2 * time.Second)
	p.Pause(0)
	p.Throttle()

	assert.Equal(t, []time.Duration{2 * time.Second}, slept)
}

func TestPacerThrottleSpacesActions(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(time.Hour, 0).WithSleep(func(d time.Duration) { slept = append(slept, d) })

	p.Throttle()
	require.Empty(t, slept, "first action passes immediately")

	p.Throttle()
	require.Len(t, slept, 1)
	assert.Greater(t, slept[0], 59*time.Minute)
}

type recordingTyper struct {
	filled []string
	typed  string
	failAt int
}

func (r *recordingTyper) Input(text string, _ time.Duration) error {
	r.filled = append(r.filled, text)
	return nil
}

func (r *recordingTyper) Type(text string) error {
	if r.failAt > 0 && len(r.typed) == r.failAt {
		return errors.New("detached")
	}
	r.typed += text
	return nil
}

func TestTypeTextFillsWhenSpeedZero(t *testing.T) {
	el := &recordingTyper{}
	require.NoError(t, TypeText(NewNoopPacer(), el, "hello", 0, time.Second))
	assert.Equal(t, []string{"hello"}, el.filled)
	assert.Empty(t, el.typed)
}

func TestTypeTextTypesEachCharacter(t *testing.T) {
	el := &recordingTyper{}
	require.NoError(t, TypeText(NewNoopPacer(), el, "héllo", 50*time.Millisecond, time.Second))
	assert.Equal(t, []string{""}, el.filled)
	assert.Equal(t, "héllo", el.typed)
}

func TestTypeTextStopsOnError(t *testing.T) {
	el := &recordingTyper{failAt: 2}
	err := TypeText(NewNoopPacer(), el, "hello", time.Millisecond, time.Second)
	require.Error(t, err)
	assert.Equal(t, "he", el.typed)
}
