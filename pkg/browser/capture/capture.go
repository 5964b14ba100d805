// Package capture records console and network activity of browser sessions.
//
// Listeners are attached once per browsing context. They close over the
// session id and a generation number only; every event resolves the
// session's current logs through a Resolver, so events arriving after the
// session was closed or replaced are dropped instead of landing in stale
// state.
package capture

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/logging"
)

const (
	// DefaultMaxHeaderValueLength caps every captured header value.
	DefaultMaxHeaderValueLength = 500
	// DefaultMaxBodyLength caps captured request and response bodies.
	DefaultMaxBodyLength = 10000

	// BodyNotCaptured replaces bodies that are not API or text traffic.
	BodyNotCaptured = "[Body not captured]"
)

// BodyReadTimeout bounds how long a response body read may hold up readers
// of the network log.
var BodyReadTimeout = 10 * time.Second

// Target is where a session's entries go.
type Target struct {
	Console *ConsoleLog
	Network *NetworkLog
}

// Resolver looks up the live logs of a session. It reports false when the
// session is gone or gen no longer identifies the registered session.
type Resolver interface {
	Resolve(sessionID string, gen uint64) (Target, bool)
}

// Options bounds what is captured.
type Options struct {
	MaxHeaderValueLength int
	MaxBodyLength        int
	CaptureBodies        bool
}

// DefaultOptions returns the capture limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxHeaderValueLength: DefaultMaxHeaderValueLength,
		MaxBodyLength:        DefaultMaxBodyLength,
		CaptureBodies:        true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxHeaderValueLength <= 0 {
		o.MaxHeaderValueLength = DefaultMaxHeaderValueLength
	}
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = DefaultMaxBodyLength
	}
	return o
}

type listener struct {
	sessionID string
	gen       uint64
	resolver  Resolver
	opts      Options
	logger    *logging.Logger
}

// Attach registers console, request, response and page error listeners on
// bc for the session identified by sessionID and gen.
func Attach(bc driver.Context, sessionID string, gen uint64, resolver Resolver, opts Options, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Nop()
	}
	l := &listener{
		sessionID: sessionID,
		gen:       gen,
		resolver:  resolver,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
	bc.OnConsole(l.onConsole)
	bc.OnRequest(l.onRequest)
	bc.OnResponse(l.onResponse)
	bc.OnPageError(l.onPageError)
}

// guard keeps listener panics out of the driver's event delivery.
func (l *listener) guard(event string) {
	if r := recover(); r != nil {
		l.logger.Errorf("session %s: %s listener panicked: %v", l.sessionID, event, r)
	}
}

func (l *listener) target() (Target, bool) {
	return l.resolver.Resolve(l.sessionID, l.gen)
}

func (l *listener) onConsole(msg driver.ConsoleMessage) {
	defer l.guard("console")

	t, ok := l.target()
	if !ok {
		return
	}
	t.Console.Append(ConsoleEntry{
		Type:      msg.Type,
		Text:      msg.Text,
		Timestamp: time.Now(),
		Location: Location{
			URL:    msg.Location.URL,
			Line:   msg.Location.Line,
			Column: msg.Location.Column,
		},
		Args: append([]string(nil), msg.Args...),
	})
}

func (l *listener) onPageError(perr driver.PageError) {
	defer l.guard("pageerror")

	t, ok := l.target()
	if !ok {
		return
	}
	t.Console.Append(ConsoleEntry{
		Type:      "error",
		Text:      perr.Message,
		Timestamp: time.Now(),
		Location:  Location{URL: perr.PageURL},
	})
}

func (l *listener) onRequest(req driver.Request) {
	defer l.guard("request")

	t, ok := l.target()
	if !ok {
		return
	}
	t.Network.Append(NetworkEntry{
		Direction:    DirectionRequest,
		Method:       req.Method,
		URL:          req.URL,
		Timestamp:    time.Now(),
		Headers:      CapHeaders(req.Headers, l.opts.MaxHeaderValueLength),
		Body:         truncate(req.PostData, l.opts.MaxBodyLength),
		ResourceType: req.ResourceType,
	})
}

func (l *listener) onResponse(resp driver.Response) {
	defer l.guard("response")

	t, ok := l.target()
	if !ok {
		return
	}
	entry := NetworkEntry{
		Direction:    DirectionResponse,
		Method:       resp.Request.Method,
		URL:          resp.URL,
		Status:       resp.Status,
		StatusText:   resp.StatusText,
		Timestamp:    time.Now(),
		Headers:      CapHeaders(resp.Headers, l.opts.MaxHeaderValueLength),
		ResourceType: resp.Request.ResourceType,
		Duration:     resp.Duration,
	}
	if !l.wantsBody(entry, resp.ReadBody) {
		entry.Body = BodyNotCaptured
		t.Network.Append(entry)
		return
	}

	// The driver answers body reads on the goroutine delivering this event,
	// so the read happens elsewhere while the entry holds its place.
	complete := t.Network.AppendDeferred(entry)
	go func() {
		body := l.readBody(resp.ReadBody)
		complete(func(e *NetworkEntry) { e.Body = body })
	}()
}

func (l *listener) wantsBody(entry NetworkEntry, read func() ([]byte, error)) bool {
	if !l.opts.CaptureBodies || read == nil {
		return false
	}
	return entry.IsAPICall() || IsTextContent(entry.Headers["content-type"])
}

// readBody reads a response body, giving up after BodyReadTimeout. Read
// failures become a placeholder.
func (l *listener) readBody(read func() ([]byte, error)) string {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%v", r)}
			}
		}()
		data, err := read()
		done <- result{data: data, err: err}
	}()

	timer := time.NewTimer(BodyReadTimeout)
	defer timer.Stop()

	var res result
	select {
	case res = <-done:
	case <-timer.C:
		l.logger.Warnf("session %s: response body not read within %s", l.sessionID, BodyReadTimeout)
		res.err = fmt.Errorf("timed out after %s", BodyReadTimeout)
	}
	if res.err != nil {
		return fmt.Sprintf("[Error reading response: %v]", res.err)
	}
	if !utf8.Valid(res.data) {
		return fmt.Sprintf("[Binary body: %d bytes]", len(res.data))
	}
	return truncate(string(res.data), l.opts.MaxBodyLength)
}

// IsTextContent reports whether a content type carries text.
func IsTextContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript") ||
		strings.Contains(ct, "x-www-form-urlencoded")
}

// CapHeaders returns a copy of headers with lower-cased keys and each value
// truncated to max bytes.
func CapHeaders(headers map[string]string, max int) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = truncate(v, max)
	}
	return out
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...[truncated]"
}
