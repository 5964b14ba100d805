// Package drivertest provides an in-memory driver.Driver for tests.
//
// The fake keeps Playwright's observable semantics where the session core
// depends on them: context-level listeners see events from every page,
// route handlers run most-recently-registered first and chain through
// Fallback, and ExpectDownload races the triggered download against its
// timeout.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/entrhq/browserd/pkg/browser/driver"
)

// ErrClosed is returned by operations on a closed fake handle.
var ErrClosed = errors.New("target closed")

// Driver is a fake driver.Driver.
type Driver struct {
	mu         sync.Mutex
	browsers   []*Browser
	closeCount int

	// LaunchErr, when set, fails every Launch.
	LaunchErr error
	// CloseErr is returned from Close.
	CloseErr error
	// OnNewPage is invoked for every page any context opens.
	OnNewPage func(*Page)
	// OnLaunch is invoked for every launched browser before it is returned.
	OnLaunch func(*Browser)
}

var _ driver.Driver = (*Driver)(nil)

// New returns an empty fake driver.
func New() *Driver {
	return &Driver{}
}

// Launch implements driver.Driver.
func (d *Driver) Launch(ctx context.Context, kind driver.Kind, headless bool) (driver.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.LaunchErr != nil {
		err := d.LaunchErr
		d.mu.Unlock()
		return nil, err
	}
	b := &Browser{driver: d, Kind: kind, Headless: headless}
	d.browsers = append(d.browsers, b)
	hook := d.OnLaunch
	d.mu.Unlock()

	if hook != nil {
		hook(b)
	}
	return b, nil
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return d.CloseErr
}

// CloseCount reports how many times Close was called.
func (d *Driver) CloseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCount
}

// Browsers returns every browser launched so far.
func (d *Driver) Browsers() []*Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Browser(nil), d.browsers...)
}

// LastBrowser returns the most recently launched browser, or nil.
func (d *Driver) LastBrowser() *Browser {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.browsers) == 0 {
		return nil
	}
	return d.browsers[len(d.browsers)-1]
}

func (d *Driver) newPageHook() func(*Page) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.OnNewPage
}

// Browser is a fake driver.Browser.
type Browser struct {
	driver   *Driver
	Kind     driver.Kind
	Headless bool

	mu       sync.Mutex
	contexts []*Context
	closed   bool

	NewContextErr error
	CloseErr      error
}

// NewContext implements driver.Browser.
func (b *Browser) NewContext(opts driver.ContextOptions) (driver.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.NewContextErr != nil {
		return nil, b.NewContextErr
	}
	c := &Context{browser: b, Options: opts}
	b.contexts = append(b.contexts, c)
	return c, nil
}

// Close implements driver.Browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.CloseErr
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// LastContext returns the most recently opened context, or nil.
func (b *Browser) LastContext() *Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.contexts) == 0 {
		return nil
	}
	return b.contexts[len(b.contexts)-1]
}

// Context is a fake driver.Context.
type Context struct {
	browser *Browser
	Options driver.ContextOptions

	mu         sync.Mutex
	pages      []*Page
	console    []func(driver.ConsoleMessage)
	requests   []func(driver.Request)
	responses  []func(driver.Response)
	pageErrors []func(driver.PageError)
	closed     bool

	NewPageErr error
	CloseErr   error

	// BodyReadsAfterDelivery makes Response.ReadBody block until every
	// response listener has returned, the way Playwright serves body reads
	// on the goroutine that delivers events.
	BodyReadsAfterDelivery bool
}

// NewPage implements driver.Context.
func (c *Context) NewPage() (driver.Page, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.NewPageErr != nil {
		err := c.NewPageErr
		c.mu.Unlock()
		return nil, err
	}
	p := newPage(c)
	c.pages = append(c.pages, p)
	c.mu.Unlock()

	if hook := c.browser.driver.newPageHook(); hook != nil {
		hook(p)
	}
	return p, nil
}

// OnConsole implements driver.Context.
func (c *Context) OnConsole(fn func(driver.ConsoleMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.console = append(c.console, fn)
}

// OnRequest implements driver.Context.
func (c *Context) OnRequest(fn func(driver.Request)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, fn)
}

// OnResponse implements driver.Context.
func (c *Context) OnResponse(fn func(driver.Response)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, fn)
}

// OnPageError implements driver.Context.
func (c *Context) OnPageError(fn func(driver.PageError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageErrors = append(c.pageErrors, fn)
}

// Close implements driver.Context.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return c.CloseErr
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pages returns every page opened in this context.
func (c *Context) Pages() []*Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Page(nil), c.pages...)
}

// EmitConsole delivers msg to every console listener.
func (c *Context) EmitConsole(msg driver.ConsoleMessage) {
	c.mu.Lock()
	fns := slices.Clone(c.console)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(msg)
	}
}

// EmitRequest delivers req to every request listener.
func (c *Context) EmitRequest(req driver.Request) {
	c.mu.Lock()
	fns := slices.Clone(c.requests)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(req)
	}
}

// EmitResponse delivers resp to every response listener.
func (c *Context) EmitResponse(resp driver.Response) {
	c.mu.Lock()
	fns := slices.Clone(c.responses)
	gated := c.BodyReadsAfterDelivery
	c.mu.Unlock()

	if gated && resp.ReadBody != nil {
		delivered := make(chan struct{})
		defer close(delivered)
		read := resp.ReadBody
		resp.ReadBody = func() ([]byte, error) {
			<-delivered
			return read()
		}
	}
	for _, fn := range fns {
		fn(resp)
	}
}

// EmitPageError delivers perr to every page error listener.
func (c *Context) EmitPageError(perr driver.PageError) {
	c.mu.Lock()
	fns := slices.Clone(c.pageErrors)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(perr)
	}
}

// ListenerCount reports the number of registered listeners of all kinds.
func (c *Context) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.console) + len(c.requests) + len(c.responses) + len(c.pageErrors)
}

func closedErr(what string) error {
	return fmt.Errorf("%s: %w", what, ErrClosed)
}
