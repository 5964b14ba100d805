// Package driver defines the browser automation surface the session core
// consumes. It mirrors the subset of Playwright the core needs: launching
// browsers, opening isolated contexts and pages, context-level event
// subscription, request routing and download expectation.
//
// The real implementation lives in driver/pwdriver; driver/drivertest
// provides an in-memory implementation for tests.
package driver

import (
	"context"
	"time"
)

// Driver launches browsers. A single Driver is shared by every session of a
// registry and is released once, on shutdown.
type Driver interface {
	// Launch starts a browser of the given kind.
	Launch(ctx context.Context, kind Kind, headless bool) (Browser, error)

	// Close releases the driver-level handle (the Playwright server process).
	Close() error
}

// Browser is a launched (or connected) browser process.
type Browser interface {
	NewContext(opts ContextOptions) (Context, error)
	Close() error
}

// ContextOptions configures a new isolated browsing context.
type ContextOptions struct {
	Viewport        Viewport
	AcceptDownloads bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Context is an isolated browsing profile. Event listeners are attached at
// this level so pages opened later in the same context are covered too.
//
// Listener callbacks are invoked on the driver's own event-delivery
// goroutine and must not block.
type Context interface {
	NewPage() (Page, error)

	OnConsole(fn func(ConsoleMessage))
	OnRequest(fn func(Request))
	OnResponse(fn func(Response))
	OnPageError(fn func(PageError))

	Close() error
}

// Page is a single tab inside a context.
type Page interface {
	Goto(url string, opts NavigateOptions) error
	Click(selector string, opts ClickOptions) error
	Fill(selector, value string, timeout time.Duration) error
	SelectOption(selector string, values []string, timeout time.Duration) ([]string, error)
	Evaluate(expression string, timeout time.Duration) (any, error)
	WaitForSelector(selector, state string, timeout time.Duration) error
	Content() (string, error)
	Title() (string, error)
	URL() string

	// HasElement reports whether at least one element matches selector right now.
	HasElement(selector string) (bool, error)

	// Route installs a request-routing hook for every URL accepted by match.
	// The handler is invoked synchronously before the request proceeds and
	// must settle the route exactly once.
	Route(match func(url string) bool, handler func(Route)) error

	// ExpectDownload runs trigger and waits for the download it starts.
	// It returns an error wrapping ErrTimeout if none arrives within timeout.
	ExpectDownload(trigger func() error, timeout time.Duration) (Download, error)

	Close() error
}

// Route is a paused request awaiting a routing decision.
type Route interface {
	Request() Request

	// Continue sends the request to the network unmodified.
	Continue() error

	// Fallback hands the request to the next matching hook, or to the
	// network when no other hook matches. The request is not modified.
	Fallback() error

	// Abort fails the request without it reaching the network.
	Abort() error

	// Fulfill answers the request with the given response.
	Fulfill(f Fulfillment) error

	// Fetch performs the real request and returns its response without
	// settling the route.
	Fetch() (*FetchedResponse, error)
}

// Fulfillment is a fabricated response.
type Fulfillment struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// FetchedResponse is an upstream response obtained through Route.Fetch.
type FetchedResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// Download is a file download started by the page.
type Download interface {
	SuggestedFilename() string
	URL() string
	SaveAs(path string) error
	Failure() error
	// Delete removes the driver's temporary copy of the file.
	Delete() error
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful.
	// Valid values: "load", "domcontentloaded", "networkidle", "commit".
	WaitUntil string
	Timeout   time.Duration
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	Button     string
	ClickCount int
	Timeout    time.Duration
}
