// Package browsertest provides an in-memory browser engine for tests.
package browsertest

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/yourusername/linkedin-mcp/internal/browser"
)

// Engine is a scripted browser.Engine. Failure fields make the matching
// lifecycle step fail.
type Engine struct {
	mu sync.Mutex

	LaunchErr     error
	NewContextErr error
	NewPageErr    error
	CloseErr      error

	// NewPageFunc builds each page; a fresh empty Page is used when nil.
	NewPageFunc func() *Page

	Launches  int
	Shutdowns int
	Browsers  []*Browser
	Contexts  []*Context
	Pages     []*Page
}

func (e *Engine) Launch(browser.LaunchOptions) (browser.Browser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Launches++
	if e.LaunchErr != nil {
		return nil, e.LaunchErr
	}
	b := &Browser{engine: e}
	e.Browsers = append(e.Browsers, b)
	return b, nil
}

func (e *Engine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Shutdowns++
	return nil
}

// Browser is a fake browser.Browser.
type Browser struct {
	engine *Engine
	Closed int
}

func (b *Browser) NewContext() (browser.Context, error) {
	b.engine.mu.Lock()
	defer b.engine.mu.Unlock()
	if b.engine.NewContextErr != nil {
		return nil, b.engine.NewContextErr
	}
	c := &Context{engine: b.engine}
	b.engine.Contexts = append(b.engine.Contexts, c)
	return c, nil
}

func (b *Browser) Close() error {
	b.Closed++
	return b.engine.CloseErr
}

// Context is a fake browser.Context.
type Context struct {
	engine *Engine
	Closed int
}

func (c *Context) NewPage() (browser.Page, error) {
	c.engine.mu.Lock()
	defer c.engine.mu.Unlock()
	if c.engine.NewPageErr != nil {
		return nil, c.engine.NewPageErr
	}
	var p *Page
	if c.engine.NewPageFunc != nil {
		p = c.engine.NewPageFunc()
	} else {
		p = NewPage()
	}
	c.engine.Pages = append(c.engine.Pages, p)
	return p, nil
}

func (c *Context) Close() error {
	c.Closed++
	return c.engine.CloseErr
}

// Page is a fake browser.Page. Elements are registered per CSS selector and
// returned verbatim by Elements; no real selector matching happens.
type Page struct {
	mu sync.Mutex

	CurrentURL string
	Content    string
	Detached   bool

	URLErr  error
	HTMLErr error

	// NavigateFunc runs on each Navigate after the URL is recorded.
	NavigateFunc func(p *Page, url string) error
	// EvalFunc answers Eval; unset evaluations return null.
	EvalFunc func(js string, args ...interface{}) (gson.JSON, error)

	Navigations []string
	Evals       []string
	CookieJar   []*proto.NetworkCookieParam
	Closed      bool

	elements map[string][]*Element
}

// NewPage returns an empty page at about:blank.
func NewPage() *Page {
	return &Page{CurrentURL: "about:blank", elements: map[string][]*Element{}}
}

// SetElements registers els under selector, replacing earlier ones.
func (p *Page) SetElements(selector string, els ...*Element) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, el := range els {
		el.page = p
	}
	p.elements[selector] = els
	return p
}

// SetURL moves the page to url without recording a navigation.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentURL = url
}

func (p *Page) Elements(selector string) ([]browser.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return toElements(p.elements[selector]), nil
}

func (p *Page) Navigate(url string, _ time.Duration) error {
	p.mu.Lock()
	p.Navigations = append(p.Navigations, url)
	p.CurrentURL = url
	fn := p.NavigateFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(p, url)
	}
	return nil
}

func (p *Page) URL() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.URLErr != nil {
		return "", p.URLErr
	}
	return p.CurrentURL, nil
}

func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	return p.Content, nil
}

func (p *Page) Eval(js string, args ...interface{}) (gson.JSON, error) {
	p.mu.Lock()
	p.Evals = append(p.Evals, js)
	fn := p.EvalFunc
	p.mu.Unlock()

	if fn != nil {
		return fn(js, args...)
	}
	return gson.New(nil), nil
}

func (p *Page) Cookies() ([]*proto.NetworkCookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*proto.NetworkCookie, 0, len(p.CookieJar))
	for _, c := range p.CookieJar {
		out = append(out, &proto.NetworkCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: c.Domain,
			Path:   c.Path,
		})
	}
	return out, nil
}

func (p *Page) SetCookies(cookies []*proto.NetworkCookieParam) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CookieJar = append(p.CookieJar, cookies...)
	return nil
}

func (p *Page) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.Detached && !p.Closed
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Element is a fake browser.Element.
type Element struct {
	mu sync.Mutex

	TextValue string
	Props     map[string]interface{}
	ClickErr  error
	InputErr  error
	OnClick   func(page *Page) error
	EvalFunc  func(js string, args ...interface{}) (gson.JSON, error)
	Clicks    int
	Value     string

	page     *Page
	children map[string][]*Element
}

// NewElement returns an element whose Text is text.
func NewElement(text string) *Element {
	return &Element{TextValue: text, Props: map[string]interface{}{}, children: map[string][]*Element{}}
}

// SetChildren registers child elements under selector.
func (e *Element) SetChildren(selector string, els ...*Element) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, el := range els {
		el.page = e.page
	}
	e.children[selector] = els
	return e
}

func (e *Element) Elements(selector string) ([]browser.Element, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return toElements(e.children[selector]), nil
}

func (e *Element) Click(time.Duration) error {
	e.mu.Lock()
	e.Clicks++
	err := e.ClickErr
	fn := e.OnClick
	page := e.page
	e.mu.Unlock()

	if err != nil {
		return err
	}
	if fn != nil {
		return fn(page)
	}
	return nil
}

func (e *Element) Input(text string, _ time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InputErr != nil {
		return e.InputErr
	}
	e.Value = text
	return nil
}

func (e *Element) Type(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.InputErr != nil {
		return e.InputErr
	}
	e.Value += text
	return nil
}

func (e *Element) Text() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.TextValue, nil
}

func (e *Element) Eval(js string, args ...interface{}) (gson.JSON, error) {
	e.mu.Lock()
	fn := e.EvalFunc
	e.mu.Unlock()

	if fn != nil {
		return fn(js, args...)
	}
	return gson.New(nil), nil
}

func (e *Element) Property(name string) (gson.JSON, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.Props[name]
	if !ok {
		return gson.New(nil), nil
	}
	return gson.New(v), nil
}

// ClickCount returns how many times the element was clicked.
func (e *Element) ClickCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Clicks
}

func toElements(els []*Element) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, el)
	}
	return out
}

// ErrDetached is a convenient failure for scripted steps.
var ErrDetached = errors.New("browsertest: element detached")

// EvalSwitch dispatches evaluations by substring of the script, so tests can
// script several in-page calls on one page.
func EvalSwitch(cases map[string]func(args ...interface{}) (gson.JSON, error)) func(js string, args ...interface{}) (gson.JSON, error) {
	return func(js string, args ...interface{}) (gson.JSON, error) {
		for needle, fn := range cases {
			if strings.Contains(js, needle) {
				return fn(args...)
			}
		}
		return gson.JSON{}, fmt.Errorf("browsertest: unscripted evaluation %q", js)
	}
}
