package browser

import (
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/yourusername/linkedin-mcp/internal/logger"
	st "github.com/yourusername/linkedin-mcp/internal/stealth"
)

// RodEngine launches Chromium through rod's launcher.
type RodEngine struct {
	launcher *launcher.Launcher
}

// NewRodEngine returns an engine with nothing launched yet.
func NewRodEngine() *RodEngine {
	return &RodEngine{}
}

// Launch starts a browser process and connects to it
func (e *RodEngine) Launch(opts LaunchOptions) (Browser, error) {
	// Try to find local Chrome installation first (avoids leakless.exe issue)
	path := opts.Bin
	if path == "" {
		if found, ok := launcher.LookPath(); ok {
			path = found
		}
	}

	l := launcher.New()
	if path != "" {
		logger.Info("Using system Chrome browser", "path", path)
		l = l.Bin(path)
	} else {
		logger.Info("System Chrome not found, using downloaded browser")
	}

	userAgent := opts.UserAgent
	if userAgent == "" && opts.Stealth {
		userAgent = st.RandomizeUserAgent()
	}

	l = l.Headless(opts.Headless).
		Devtools(false).
		Leakless(false) // Disable leakless to avoid antivirus issues
	if userAgent != "" {
		l = l.Set("user-agent", userAgent)
	}
	e.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if opts.SlowMotion > 0 {
		b = b.SlowMotion(opts.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Info("Browser launched", "headless", opts.Headless, "user_agent", userAgent)
	return &rodBrowser{browser: b, opts: opts}, nil
}

// Shutdown kills the launched browser process and removes its profile dir
func (e *RodEngine) Shutdown() error {
	if e.launcher == nil {
		return nil
	}
	e.launcher.Kill()
	e.launcher.Cleanup()
	e.launcher = nil
	return nil
}

type rodBrowser struct {
	browser *rod.Browser
	opts    LaunchOptions
}

func (b *rodBrowser) NewContext() (Context, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}
	return &rodContext{browser: incognito, opts: b.opts}, nil
}

func (b *rodBrowser) Close() error {
	return b.browser.Close()
}

type rodContext struct {
	browser *rod.Browser
	opts    LaunchOptions
}

func (c *rodContext) NewPage() (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if c.opts.Stealth {
		// go-rod/stealth injects its evasion script before any document loads
		page, err = stealth.Page(c.browser)
	} else {
		page, err = c.browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	width, height := c.opts.Width, c.opts.Height
	if width == 0 || height == 0 {
		width, height = st.RandomViewport()
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  width,
		Height: height,
	}); err != nil {
		logger.Warn("Failed to set viewport", "error", err)
	}

	if c.opts.Stealth {
		if _, err := page.EvalOnNewDocument(st.AutomationMaskJS); err != nil {
			logger.Warn("Failed to install automation mask", "error", err)
		}
	}

	return &rodPage{page: page}, nil
}

func (c *rodContext) Close() error {
	return c.browser.Close()
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(url string, timeout time.Duration) error {
	tp := p.page.Timeout(timeout)
	defer tp.CancelTimeout()

	if err := tp.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	if err := tp.WaitLoad(); err != nil {
		return fmt.Errorf("failed to wait for page load: %w", err)
	}
	return nil
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) HTML() (string, error) {
	return p.page.HTML()
}

func (p *rodPage) Eval(js string, args ...interface{}) (gson.JSON, error) {
	res, err := p.page.Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (p *rodPage) Elements(selector string) ([]Element, error) {
	els, err := p.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (p *rodPage) Cookies() ([]*proto.NetworkCookie, error) {
	return p.page.Cookies([]string{})
}

func (p *rodPage) SetCookies(cookies []*proto.NetworkCookieParam) error {
	return p.page.SetCookies(cookies)
}

func (p *rodPage) Alive() bool {
	_, err := p.page.Info()
	return err == nil
}

func (p *rodPage) Close() error {
	return p.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func wrapElements(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out
}

func (e *rodElement) Elements(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (e *rodElement) Click(timeout time.Duration) error {
	te := e.el.Timeout(timeout)
	defer te.CancelTimeout()

	if err := te.ScrollIntoView(); err != nil {
		logger.Debug("Failed to scroll element into view", "error", err)
	}
	return te.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Input(text string, timeout time.Duration) error {
	te := e.el.Timeout(timeout)
	defer te.CancelTimeout()

	if err := te.SelectAllText(); err != nil {
		return fmt.Errorf("failed to select existing text: %w", err)
	}
	return te.Input(text)
}

func (e *rodElement) Type(text string) error {
	return e.el.Input(text)
}

func (e *rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e *rodElement) Eval(js string, args ...interface{}) (gson.JSON, error) {
	res, err := e.el.Eval(js, args...)
	if err != nil {
		return gson.JSON{}, err
	}
	return res.Value, nil
}

func (e *rodElement) Property(name string) (gson.JSON, error) {
	return e.el.Property(name)
}
