// Package pwdriver implements driver.Driver on top of playwright-go.
package pwdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mafredri/cdp/devtool"
	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/logging"
)

// Options configures the Playwright driver.
type Options struct {
	// SkipInstall assumes the driver and browsers are already installed.
	SkipInstall bool
	// CDPEndpoint is the DevTools HTTP endpoint used by the cdp kind,
	// e.g. http://127.0.0.1:9222.
	CDPEndpoint string
	// Verbose forwards Playwright's installer output to the logger.
	Verbose bool
}

// Driver launches browsers through a lazily started Playwright server.
type Driver struct {
	opts   Options
	logger *logging.Logger

	mu sync.Mutex
	pw *playwright.Playwright
}

var _ driver.Driver = (*Driver)(nil)

// New returns a driver. Playwright is installed and started on the first
// Launch.
func New(opts Options, logger *logging.Logger) *Driver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Driver{opts: opts, logger: logger}
}

// initialize installs and runs Playwright once.
func (d *Driver) initialize() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pw != nil {
		return d.pw, nil
	}

	// keep Playwright's own output off stdout, which may carry tool results
	var out io.Writer = io.Discard
	if d.opts.Verbose {
		out = d.logger.Writer()
	}
	runOpts := &playwright.RunOptions{
		Verbose: d.opts.Verbose,
		Stdout:  out,
		Stderr:  out,
	}

	if !d.opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	d.pw = pw
	d.logger.Infof("playwright started")
	return pw, nil
}

// Launch implements driver.Driver.
func (d *Driver) Launch(ctx context.Context, kind driver.Kind, headless bool) (driver.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.initialize()
	if err != nil {
		return nil, err
	}

	var b playwright.Browser
	switch kind {
	case driver.KindChromium:
		b, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(headless)})
	case driver.KindChrome, driver.KindMSEdge:
		b, err = pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(headless),
			Channel:  playwright.String(string(kind)),
		})
	case driver.KindFirefox:
		b, err = pw.Firefox.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(headless)})
	case driver.KindWebKit:
		b, err = pw.WebKit.Launch(playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(headless)})
	case driver.KindCDP:
		b, err = d.connectCDP(ctx, pw)
	default:
		return nil, fmt.Errorf("%w: %q", driver.ErrUnsupportedBrowserKind, kind)
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return &browser{b: b}, nil
}

// connectCDP attaches to an already running Chromium. The websocket URL is
// discovered from the DevTools HTTP endpoint.
func (d *Driver) connectCDP(ctx context.Context, pw *playwright.Playwright) (playwright.Browser, error) {
	if d.opts.CDPEndpoint == "" {
		return nil, errors.New("cdp endpoint is not configured")
	}
	endpoint := d.opts.CDPEndpoint
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		v, err := devtool.New(endpoint).Version(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query devtools endpoint %s: %w", endpoint, err)
		}
		d.logger.Infof("connecting to %s over CDP (%s)", v.Browser, v.WebSocketDebuggerURL)
		endpoint = v.WebSocketDebuggerURL
	}
	return pw.Chromium.ConnectOverCDP(endpoint)
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

// mapErr translates Playwright timeouts into driver.ErrTimeout.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%w: %v", driver.ErrTimeout, err)
	}
	return err
}

func ms(d time.Duration) *float64 {
	if d <= 0 {
		return nil
	}
	return playwright.Float(float64(d.Milliseconds()))
}

type browser struct {
	b playwright.Browser
}

func (b *browser) NewContext(opts driver.ContextOptions) (driver.Context, error) {
	pwOpts := playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(opts.AcceptDownloads),
	}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		pwOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	c, err := b.b.NewContext(pwOpts)
	if err != nil {
		return nil, mapErr(err)
	}
	return &browserContext{c: c}, nil
}

func (b *browser) Close() error {
	return b.b.Close()
}

type browserContext struct {
	c playwright.BrowserContext
}

func (c *browserContext) NewPage() (driver.Page, error) {
	p, err := c.c.NewPage()
	if err != nil {
		return nil, mapErr(err)
	}
	return &page{p: p}, nil
}

func (c *browserContext) OnConsole(fn func(driver.ConsoleMessage)) {
	c.c.OnConsole(func(m playwright.ConsoleMessage) {
		msg := driver.ConsoleMessage{Type: m.Type(), Text: m.Text()}
		if loc := m.Location(); loc != nil {
			msg.Location = driver.Location{URL: loc.URL, Line: loc.LineNumber, Column: loc.ColumnNumber}
		}
		for _, a := range m.Args() {
			msg.Args = append(msg.Args, a.String())
		}
		fn(msg)
	})
}

func (c *browserContext) OnRequest(fn func(driver.Request)) {
	c.c.OnRequest(func(r playwright.Request) {
		fn(toRequest(r))
	})
}

func (c *browserContext) OnResponse(fn func(driver.Response)) {
	c.c.OnResponse(func(r playwright.Response) {
		req := r.Request()
		resp := driver.Response{
			Request:    toRequest(req),
			URL:        r.URL(),
			Status:     r.Status(),
			StatusText: r.StatusText(),
			Headers:    r.Headers(),
			ReadBody:   r.Body,
		}
		if t := req.Timing(); t != nil && t.ResponseStart > 0 {
			resp.Duration = time.Duration(t.ResponseStart * float64(time.Millisecond))
		}
		fn(resp)
	})
}

func (c *browserContext) OnPageError(fn func(driver.PageError)) {
	c.c.OnWebError(func(e playwright.WebError) {
		perr := driver.PageError{}
		if err := e.Error(); err != nil {
			perr.Message = err.Error()
		}
		if p := e.Page(); p != nil {
			perr.PageURL = p.URL()
		}
		fn(perr)
	})
}

func (c *browserContext) Close() error {
	return c.c.Close()
}

func toRequest(r playwright.Request) driver.Request {
	req := driver.Request{
		Method:       r.Method(),
		URL:          r.URL(),
		Headers:      r.Headers(),
		ResourceType: r.ResourceType(),
	}
	if data, err := r.PostData(); err == nil {
		req.PostData = data
	}
	return req
}
