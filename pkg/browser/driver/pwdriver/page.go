package pwdriver

import (
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/browserd/pkg/browser/driver"
)

type page struct {
	p playwright.Page
}

func (p *page) Goto(url string, opts driver.NavigateOptions) error {
	pwOpts := playwright.PageGotoOptions{Timeout: ms(opts.Timeout)}
	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		pwOpts.WaitUntil = &waitUntil
	}
	_, err := p.p.Goto(url, pwOpts)
	return mapErr(err)
}

func (p *page) Click(selector string, opts driver.ClickOptions) error {
	pwOpts := playwright.PageClickOptions{Timeout: ms(opts.Timeout)}
	if opts.Button != "" {
		button := playwright.MouseButton(opts.Button)
		pwOpts.Button = &button
	}
	if opts.ClickCount > 0 {
		pwOpts.ClickCount = playwright.Int(opts.ClickCount)
	}
	return mapErr(p.p.Click(selector, pwOpts))
}

func (p *page) Fill(selector, value string, timeout time.Duration) error {
	return mapErr(p.p.Fill(selector, value, playwright.PageFillOptions{Timeout: ms(timeout)}))
}

func (p *page) SelectOption(selector string, values []string, timeout time.Duration) ([]string, error) {
	selected, err := p.p.SelectOption(selector, playwright.SelectOptionValues{Values: &values},
		playwright.PageSelectOptionOptions{Timeout: ms(timeout)})
	return selected, mapErr(err)
}

// Evaluate runs expression in the page. Playwright applies no timeout to
// evaluation.
func (p *page) Evaluate(expression string, _ time.Duration) (any, error) {
	v, err := p.p.Evaluate(expression)
	return v, mapErr(err)
}

func (p *page) WaitForSelector(selector, state string, timeout time.Duration) error {
	opts := playwright.PageWaitForSelectorOptions{Timeout: ms(timeout)}
	if state != "" {
		s := playwright.WaitForSelectorState(state)
		opts.State = &s
	}
	_, err := p.p.WaitForSelector(selector, opts)
	return mapErr(err)
}

func (p *page) Content() (string, error) {
	s, err := p.p.Content()
	return s, mapErr(err)
}

func (p *page) Title() (string, error) {
	s, err := p.p.Title()
	return s, mapErr(err)
}

func (p *page) URL() string {
	return p.p.URL()
}

func (p *page) HasElement(selector string) (bool, error) {
	n, err := p.p.Locator(selector).Count()
	if err != nil {
		return false, mapErr(err)
	}
	return n > 0, nil
}

func (p *page) Route(match func(string) bool, handler func(driver.Route)) error {
	return p.p.Route(match, func(r playwright.Route) {
		handler(&route{r: r})
	})
}

func (p *page) ExpectDownload(trigger func() error, timeout time.Duration) (driver.Download, error) {
	d, err := p.p.ExpectDownload(trigger, playwright.PageExpectDownloadOptions{Timeout: ms(timeout)})
	if err != nil {
		return nil, mapErr(err)
	}
	return d, nil
}

func (p *page) Close() error {
	return p.p.Close()
}

type route struct {
	r playwright.Route
}

func (r *route) Request() driver.Request {
	return toRequest(r.r.Request())
}

func (r *route) Continue() error {
	return r.r.Continue()
}

func (r *route) Fallback() error {
	return r.r.Fallback()
}

func (r *route) Abort() error {
	return r.r.Abort()
}

func (r *route) Fulfill(f driver.Fulfillment) error {
	return r.r.Fulfill(playwright.RouteFulfillOptions{
		Status:  playwright.Int(f.Status),
		Headers: f.Headers,
		Body:    f.Body,
	})
}

func (r *route) Fetch() (*driver.FetchedResponse, error) {
	resp, err := r.r.Fetch()
	if err != nil {
		return nil, mapErr(err)
	}
	body, err := resp.Body()
	if err != nil {
		return nil, err
	}
	return &driver.FetchedResponse{
		Status:  resp.Status(),
		Headers: resp.Headers(),
		Body:    body,
	}, nil
}
