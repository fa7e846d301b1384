package stealth

import (
	"math/rand"
	"sync"
	"time"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func int63n(n int64) int64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Int63n(n)
}

func intn(n int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Intn(n)
}

func float64n() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Float64()
}

// ============================================================================
// Randomized timing
// ============================================================================

// RandomDelay returns a random duration between min and max
func RandomDelay(min, max time.Duration) time.Duration {
	if min >= max {
		return min
	}
	delta := max - min
	return min + time.Duration(int63n(int64(delta)))
}

// ShortDelay returns a short random delay
func ShortDelay() time.Duration {
	return RandomDelay(100*time.Millisecond, 500*time.Millisecond)
}

// Jitter spreads d by up to percent in either direction.
func Jitter(d time.Duration, percent int) time.Duration {
	if percent <= 0 || d <= 0 {
		return d
	}
	spread := time.Duration(int64(d) * int64(percent) / 100)
	return RandomDelay(d-spread, d+spread)
}

// ============================================================================
// Browser fingerprint masking
// ============================================================================

// AutomationMaskJS hides the remaining automation markers that the go-rod
// stealth script leaves alone. It runs on every new document.
const AutomationMaskJS = `() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => false });

	const originalQuery = window.navigator.permissions && window.navigator.permissions.query;
	if (originalQuery) {
		window.navigator.permissions.query = (parameters) => (
			parameters.name === 'notifications' ?
				Promise.resolve({ state: Notification.permission }) :
				originalQuery(parameters)
		);
	}

	window.chrome = window.chrome || { runtime: {} };
}`

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// RandomizeUserAgent returns a randomized but realistic user agent
func RandomizeUserAgent() string {
	return userAgents[intn(len(userAgents))]
}

var viewports = []struct{ Width, Height int }{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 720},
}

// RandomViewport returns a common desktop window size
func RandomViewport() (width, height int) {
	v := viewports[intn(len(viewports))]
	return v.Width, v.Height
}
