package stealth

import (
	"time"

	"golang.org/x/time/rate"
)

// Pacer inserts the fixed pauses and minimum action spacing that keep the
// request pattern below the site's burst detection.
type Pacer struct {
	limiter       *rate.Limiter
	jitterPercent int
	sleep         func(time.Duration)
}

// NewPacer returns a pacer that lets at most one throttled action through per
// minSpacing. A zero minSpacing disables throttling.
func NewPacer(minSpacing time.Duration, jitterPercent int) *Pacer {
	limit := rate.Inf
	if minSpacing > 0 {
		limit = rate.Every(minSpacing)
	}
	return &Pacer{
		limiter:       rate.NewLimiter(limit, 1),
		jitterPercent: jitterPercent,
		sleep:         time.Sleep,
	}
}

// NewNoopPacer never waits. It records nothing and is meant for tests.
func NewNoopPacer() *Pacer {
	return &Pacer{
		limiter: rate.NewLimiter(rate.Inf, 1),
		sleep:   func(time.Duration) {},
	}
}

// WithSleep replaces the sleep function, returning p.
func (p *Pacer) WithSleep(sleep func(time.Duration)) *Pacer {
	p.sleep = sleep
	return p
}

// Pause blocks for d, spread by the configured jitter.
func (p *Pacer) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	p.sleep(Jitter(d, p.jitterPercent))
}

// Throttle blocks until the next action is allowed.
func (p *Pacer) Throttle() {
	r := p.limiter.Reserve()
	if !r.OK() {
		return
	}
	if delay := r.Delay(); delay > 0 {
		p.sleep(delay)
	}
}
