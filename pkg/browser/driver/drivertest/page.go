package drivertest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/entrhq/browserd/pkg/browser/driver"
)

// Outcome records how a request left the routing layer.
type Outcome struct {
	// Action is "continue", "abort" or "fulfill".
	Action      string
	Fulfillment driver.Fulfillment
	// Handlers is the number of route handlers that ran.
	Handlers int
}

// Aborted reports whether the request was aborted.
func (o Outcome) Aborted() bool { return o.Action == "abort" }

// DownloadPlan describes the download a click on a selector produces.
type DownloadPlan struct {
	Filename string
	URL      string
	Content  []byte
	Delay    time.Duration
	Failure  error
	SaveErr  error
}

type routeEntry struct {
	match   func(string) bool
	handler func(driver.Route)
}

// Page is a fake driver.Page.
type Page struct {
	ctx *Context

	mu           sync.Mutex
	url          string
	title        string
	content      string
	elements     map[string]bool
	downloads    map[string]DownloadPlan
	subresources map[string][]string
	routes       []routeEntry
	expect       chan *Download
	started      []*Download
	clicks       []string
	fills        map[string]string
	closed       bool

	// Upstream answers requests that reach the network. Nil answers 200 with
	// an empty HTML document.
	Upstream func(driver.Request) (*driver.FetchedResponse, error)
	// EvaluateFunc backs Evaluate. Nil returns nil.
	EvaluateFunc func(expression string) (any, error)
	CloseErr     error
}

var _ driver.Page = (*Page)(nil)

func newPage(c *Context) *Page {
	return &Page{
		ctx:          c,
		url:          "about:blank",
		elements:     make(map[string]bool),
		downloads:    make(map[string]DownloadPlan),
		subresources: make(map[string][]string),
		fills:        make(map[string]string),
	}
}

// Context returns the fake context that owns this page.
func (p *Page) Context() *Context { return p.ctx }

// SetElement marks selector as present or absent.
func (p *Page) SetElement(selector string, present bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = present
}

// SetContent sets the HTML returned by Content and the page title.
func (p *Page) SetContent(title, html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.title = title
	p.content = html
}

// AddDownload makes a click on selector start the planned download.
// The selector is marked present.
func (p *Page) AddDownload(selector string, plan DownloadPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.elements[selector] = true
	p.downloads[selector] = plan
}

// SetSubresources makes a navigation to pageURL issue GET requests for urls
// after the document loaded.
func (p *Page) SetSubresources(pageURL string, urls ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subresources[pageURL] = urls
}

// Clicks returns the selectors clicked so far.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Filled returns the last value filled into selector.
func (p *Page) Filled(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills[selector]
}

// RouteCount reports the number of installed route handlers.
func (p *Page) RouteCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.routes)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Goto implements driver.Page. The document request and any configured
// subresources go through routing and the context's listeners.
func (p *Page) Goto(url string, _ driver.NavigateOptions) error {
	if p.Closed() {
		return closedErr("goto")
	}
	out := p.Send(driver.Request{Method: "GET", URL: url, ResourceType: "document"})
	if out.Aborted() {
		return fmt.Errorf("net::ERR_FAILED at %s", url)
	}

	p.mu.Lock()
	p.url = url
	subs := append([]string(nil), p.subresources[url]...)
	p.mu.Unlock()

	for _, u := range subs {
		p.Send(driver.Request{Method: "GET", URL: u, ResourceType: "fetch"})
	}
	return nil
}

// Send issues req from the page: the request listeners fire, routing
// decides its fate and, unless aborted, the response listeners fire.
func (p *Page) Send(req driver.Request) Outcome {
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	p.ctx.EmitRequest(req)

	start := time.Now()
	out := p.Dispatch(req)

	var resp *driver.FetchedResponse
	switch out.Action {
	case "abort":
		return out
	case "fulfill":
		resp = &driver.FetchedResponse{
			Status:  out.Fulfillment.Status,
			Headers: out.Fulfillment.Headers,
			Body:    out.Fulfillment.Body,
		}
	default:
		var err error
		resp, err = p.upstream(req)
		if err != nil {
			return Outcome{Action: "abort", Handlers: out.Handlers}
		}
	}

	body := resp.Body
	p.ctx.EmitResponse(driver.Response{
		Request:  req,
		URL:      req.URL,
		Status:   resp.Status,
		Headers:  resp.Headers,
		Duration: time.Since(start),
		ReadBody: func() ([]byte, error) { return body, nil },
	})
	return out
}

// Dispatch runs the route handlers matching req, most recently registered
// first, following Fallback to the next match.
func (p *Page) Dispatch(req driver.Request) Outcome {
	p.mu.Lock()
	routes := append([]routeEntry(nil), p.routes...)
	p.mu.Unlock()

	ran := 0
	for i := len(routes) - 1; i >= 0; i-- {
		if !routes[i].match(req.URL) {
			continue
		}
		r := &Route{page: p, req: req}
		routes[i].handler(r)
		ran++

		action, f := r.result()
		switch action {
		case "fallback":
			continue
		case "":
			// unsettled handlers leave the request hanging in a real browser
			return Outcome{Action: "abort", Handlers: ran}
		default:
			return Outcome{Action: action, Fulfillment: f, Handlers: ran}
		}
	}
	return Outcome{Action: "continue", Handlers: ran}
}

func (p *Page) upstream(req driver.Request) (*driver.FetchedResponse, error) {
	if p.Upstream != nil {
		return p.Upstream(req)
	}
	return &driver.FetchedResponse{
		Status:  200,
		Headers: map[string]string{"content-type": "text/html"},
		Body:    []byte("<html><body></body></html>"),
	}, nil
}

// Click implements driver.Page.
func (p *Page) Click(selector string, _ driver.ClickOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return closedErr("click")
	}
	if !p.elements[selector] {
		return fmt.Errorf("%w: waiting for selector %q", driver.ErrTimeout, selector)
	}
	p.clicks = append(p.clicks, selector)

	plan, ok := p.downloads[selector]
	if !ok {
		return nil
	}
	go func() {
		time.Sleep(plan.Delay)
		p.mu.Lock()
		ch := p.expect
		p.expect = nil
		p.mu.Unlock()
		if ch != nil {
			d := &Download{plan: plan}
			p.mu.Lock()
			p.started = append(p.started, d)
			p.mu.Unlock()
			ch <- d
		}
	}()
	return nil
}

// Fill implements driver.Page.
func (p *Page) Fill(selector, value string, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.elements[selector] {
		return fmt.Errorf("%w: waiting for selector %q", driver.ErrTimeout, selector)
	}
	p.fills[selector] = value
	return nil
}

// SelectOption implements driver.Page.
func (p *Page) SelectOption(selector string, values []string, _ time.Duration) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.elements[selector] {
		return nil, fmt.Errorf("%w: waiting for selector %q", driver.ErrTimeout, selector)
	}
	p.fills[selector] = strings.Join(values, ",")
	return append([]string(nil), values...), nil
}

// Evaluate implements driver.Page.
func (p *Page) Evaluate(expression string, _ time.Duration) (any, error) {
	if p.EvaluateFunc == nil {
		return nil, nil
	}
	return p.EvaluateFunc(expression)
}

// WaitForSelector implements driver.Page without waiting: the current
// element state either satisfies state or the call times out.
func (p *Page) WaitForSelector(selector, state string, _ time.Duration) error {
	p.mu.Lock()
	present := p.elements[selector]
	p.mu.Unlock()

	want := state != "hidden" && state != "detached"
	if present != want {
		return fmt.Errorf("%w: waiting for selector %q to be %s", driver.ErrTimeout, selector, state)
	}
	return nil
}

// Content implements driver.Page.
func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.content, nil
}

// Title implements driver.Page.
func (p *Page) Title() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

// URL implements driver.Page.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// HasElement implements driver.Page.
func (p *Page) HasElement(selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false, closedErr("locator count")
	}
	return p.elements[selector], nil
}

// Route implements driver.Page.
func (p *Page) Route(match func(string) bool, handler func(driver.Route)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return closedErr("route")
	}
	p.routes = append(p.routes, routeEntry{match: match, handler: handler})
	return nil
}

// ExpectDownload implements driver.Page.
func (p *Page) ExpectDownload(trigger func() error, timeout time.Duration) (driver.Download, error) {
	ch := make(chan *Download, 1)
	p.mu.Lock()
	p.expect = ch
	p.mu.Unlock()

	reset := func() {
		p.mu.Lock()
		if p.expect == ch {
			p.expect = nil
		}
		p.mu.Unlock()
	}

	if err := trigger(); err != nil {
		reset()
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case d := <-ch:
		return d, nil
	case <-timer.C:
		reset()
		return nil, fmt.Errorf("%w: waiting for event \"download\"", driver.ErrTimeout)
	}
}

// Close implements driver.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.CloseErr
}

// Route is a fake driver.Route. It records how it was settled.
type Route struct {
	page *Page
	req  driver.Request

	mu      sync.Mutex
	action  string
	fulfill driver.Fulfillment
}

var _ driver.Route = (*Route)(nil)

// ErrAlreadyHandled is returned when a route is settled twice.
var ErrAlreadyHandled = errors.New("route is already handled")

func (r *Route) settle(action string, f driver.Fulfillment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.action != "" {
		return ErrAlreadyHandled
	}
	r.action = action
	r.fulfill = f
	return nil
}

func (r *Route) result() (string, driver.Fulfillment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.action, r.fulfill
}

// Request implements driver.Route.
func (r *Route) Request() driver.Request { return r.req }

// Continue implements driver.Route.
func (r *Route) Continue() error { return r.settle("continue", driver.Fulfillment{}) }

// Fallback implements driver.Route.
func (r *Route) Fallback() error { return r.settle("fallback", driver.Fulfillment{}) }

// Abort implements driver.Route.
func (r *Route) Abort() error { return r.settle("abort", driver.Fulfillment{}) }

// Fulfill implements driver.Route.
func (r *Route) Fulfill(f driver.Fulfillment) error { return r.settle("fulfill", f) }

// Fetch implements driver.Route.
func (r *Route) Fetch() (*driver.FetchedResponse, error) {
	return r.page.upstream(r.req)
}

// StartedDownloads returns every download handed to an ExpectDownload.
func (p *Page) StartedDownloads() []*Download {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.started)
}

// Download is a fake driver.Download.
type Download struct {
	plan DownloadPlan

	mu      sync.Mutex
	deleted bool
}

// Delete implements driver.Download.
func (d *Download) Delete() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = true
	return nil
}

// Deleted reports whether Delete was called.
func (d *Download) Deleted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deleted
}

// SuggestedFilename implements driver.Download.
func (d *Download) SuggestedFilename() string { return d.plan.Filename }

// URL implements driver.Download.
func (d *Download) URL() string { return d.plan.URL }

// Failure implements driver.Download.
func (d *Download) Failure() error { return d.plan.Failure }

// SaveAs implements driver.Download.
func (d *Download) SaveAs(path string) error {
	if d.plan.SaveErr != nil {
		return d.plan.SaveErr
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, d.plan.Content, 0600)
}
