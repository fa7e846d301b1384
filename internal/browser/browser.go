// Package browser describes the browser-engine capabilities the rest of the
// server relies on, and provides a go-rod implementation of them.
package browser

import (
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
)

// LaunchOptions controls how the engine starts Chromium.
type LaunchOptions struct {
	Headless   bool
	Bin        string
	UserAgent  string
	SlowMotion time.Duration
	Width      int
	Height     int
	Stealth    bool
}

// Engine launches browsers and owns the underlying browser process.
type Engine interface {
	Launch(opts LaunchOptions) (Browser, error)
	// Shutdown stops the automation engine process started by Launch.
	Shutdown() error
}

// Browser is a connected browser instance.
type Browser interface {
	NewContext() (Context, error)
	Close() error
}

// Context is an isolated browsing context (incognito profile).
type Context interface {
	NewPage() (Page, error)
	Close() error
}

// Scope is anything elements can be looked up under: a page or an element.
// Elements never waits; it returns what is attached right now.
type Scope interface {
	Elements(selector string) ([]Element, error)
}

// Page is a single tab.
type Page interface {
	Scope
	Navigate(url string, timeout time.Duration) error
	URL() (string, error)
	HTML() (string, error)
	// Eval runs js, a function expression, in the page with args.
	Eval(js string, args ...interface{}) (gson.JSON, error)
	Cookies() ([]*proto.NetworkCookie, error)
	SetCookies(cookies []*proto.NetworkCookieParam) error
	// Alive reports whether the page is still attached to the browser.
	Alive() bool
	Close() error
}

// Element is a handle to a DOM node.
type Element interface {
	Scope
	Click(timeout time.Duration) error
	// Input replaces the element's current value with text.
	Input(text string, timeout time.Duration) error
	// Type appends text without clearing the element first.
	Type(text string) error
	Text() (string, error)
	// Eval runs js with `this` bound to the element.
	Eval(js string, args ...interface{}) (gson.JSON, error)
	Property(name string) (gson.JSON, error)
}
