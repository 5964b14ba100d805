// Package intercept implements per-session mock and intercept rules
// evaluated from the driver's route hook.
//
// Each rule installs its own route hook on every page of the session. When
// several rules cover the same URL the driver decides which hook runs
// first: Playwright runs the most recently registered handler first, and
// every hook that declines a request hands it on with Fallback, so the
// next matching rule (or the network) gets its turn. The engine only
// implements the per-hook decision.
package intercept

import (
	"bytes"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/logging"
)

// ConsoleRecorder receives the synthetic console entries of log rules.
type ConsoleRecorder func(capture.ConsoleEntry)

// Engine owns the rules of one session.
type Engine struct {
	sessionID string
	record    ConsoleRecorder
	logger    *logging.Logger
	now       func() time.Time
	sleep     func(time.Duration)

	mu         sync.RWMutex
	mocks      []*mockRule
	intercepts []*interceptRule
	pages      []driver.Page

	closed atomic.Bool
}

// New creates an empty engine for sessionID. record may be nil.
func New(sessionID string, record ConsoleRecorder, logger *logging.Logger) *Engine {
	if record == nil {
		record = func(capture.ConsoleEntry) {}
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Engine{
		sessionID: sessionID,
		record:    record,
		logger:    logger,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// Attach installs every existing rule on page and remembers the page so
// rules added later are installed on it too.
func (e *Engine) Attach(page driver.Page) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return fmt.Errorf("session %s: rule engine closed", e.sessionID)
	}
	e.pages = append(e.pages, page)

	type hook struct {
		created time.Time
		match   func(string) bool
		handler func(driver.Route)
	}
	hooks := make([]hook, 0, len(e.mocks)+len(e.intercepts))
	for _, r := range e.mocks {
		hooks = append(hooks, hook{r.spec.CreatedAt, r.match, e.mockHandler(r)})
	}
	for _, r := range e.intercepts {
		hooks = append(hooks, hook{r.spec.CreatedAt, r.match, e.interceptHandler(r)})
	}
	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].created.Before(hooks[j].created) })

	for _, h := range hooks {
		if err := page.Route(h.match, h.handler); err != nil {
			return driver.Wrap("route", err)
		}
	}
	return nil
}

// AddMockRule validates spec, registers the rule and installs its route
// hook on every attached page.
func (e *Engine) AddMockRule(spec MockSpec) (MockRule, error) {
	r, err := buildMockRule("mock_"+uuid.NewString(), spec, e.now())
	if err != nil {
		return MockRule{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return MockRule{}, fmt.Errorf("session %s: rule engine closed", e.sessionID)
	}
	if err := e.installLocked(r.match, e.mockHandler(r)); err != nil {
		r.active.Store(false)
		return MockRule{}, err
	}
	e.mocks = append(e.mocks, r)

	e.logger.Infof("session %s: mock rule %s added for %s %s", e.sessionID, r.spec.ID, r.spec.Method, r.spec.Pattern)
	return r.snapshot(), nil
}

// AddInterceptRule validates spec, registers the rule and installs its
// route hook on every attached page.
func (e *Engine) AddInterceptRule(spec InterceptSpec) (InterceptRule, error) {
	r, err := buildInterceptRule("intercept_"+uuid.NewString(), spec, e.now())
	if err != nil {
		return InterceptRule{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return InterceptRule{}, fmt.Errorf("session %s: rule engine closed", e.sessionID)
	}
	if err := e.installLocked(r.match, e.interceptHandler(r)); err != nil {
		r.active.Store(false)
		return InterceptRule{}, err
	}
	e.intercepts = append(e.intercepts, r)

	e.logger.Infof("session %s: intercept rule %s (%s) added for %s %s", e.sessionID, r.spec.ID, r.spec.Action, r.spec.Method, r.spec.Pattern)
	return r.snapshot(), nil
}

func (e *Engine) installLocked(match func(string) bool, handler func(driver.Route)) error {
	for _, p := range e.pages {
		if err := p.Route(match, handler); err != nil {
			return driver.Wrap("route", err)
		}
	}
	return nil
}

// ListMockRules returns snapshots of the mock rules in creation order.
func (e *Engine) ListMockRules() []MockRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]MockRule, 0, len(e.mocks))
	for _, r := range e.mocks {
		out = append(out, r.snapshot())
	}
	return out
}

// ListInterceptRules returns snapshots of the intercept rules in creation order.
func (e *Engine) ListInterceptRules() []InterceptRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]InterceptRule, 0, len(e.intercepts))
	for _, r := range e.intercepts {
		out = append(out, r.snapshot())
	}
	return out
}

// Deactivate turns off the rule with the given id. Its hook stays
// installed and passes every request through. It reports whether the rule
// exists.
func (e *Engine) Deactivate(ruleID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.mocks {
		if r.spec.ID == ruleID {
			r.active.Store(false)
			return true
		}
	}
	for _, r := range e.intercepts {
		if r.spec.ID == ruleID {
			r.active.Store(false)
			return true
		}
	}
	return false
}

// Counts returns the number of mock and intercept rules.
func (e *Engine) Counts() (mocks, intercepts int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.mocks), len(e.intercepts)
}

// Close deactivates every rule. Hooks still running pass requests through.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.mocks {
		r.active.Store(false)
	}
	for _, r := range e.intercepts {
		r.active.Store(false)
	}
	e.pages = nil
}

// pass hands the request to the next hook or the network.
func (e *Engine) pass(route driver.Route) {
	if err := route.Fallback(); err != nil {
		e.logger.Warnf("session %s: fallback for %s failed: %v", e.sessionID, route.Request().URL, err)
	}
}

func (e *Engine) mockHandler(r *mockRule) func(driver.Route) {
	return func(route driver.Route) {
		req := route.Request()
		if e.closed.Load() || !r.active.Load() || !methodMatches(r.spec.Method, req.Method) {
			e.pass(route)
			return
		}

		if r.spec.Delay > 0 {
			e.sleep(r.spec.Delay)
		}
		err := route.Fulfill(driver.Fulfillment{
			Status:  r.spec.Status,
			Headers: maps.Clone(r.spec.Headers),
			Body:    []byte(r.spec.Body),
		})
		if err != nil {
			e.logger.Warnf("session %s: mock %s could not fulfill %s, passing through: %v", e.sessionID, r.spec.ID, req.URL, err)
			e.pass(route)
			return
		}
		r.usage.Add(1)
	}
}

func (e *Engine) interceptHandler(r *interceptRule) func(driver.Route) {
	return func(route driver.Route) {
		req := route.Request()
		if e.closed.Load() || !r.active.Load() || !methodMatches(r.spec.Method, req.Method) {
			e.pass(route)
			return
		}

		var err error
		switch r.spec.Action {
		case ActionBlock:
			if err = route.Abort(); err != nil {
				e.logger.Warnf("session %s: intercept %s could not abort %s, passing through: %v", e.sessionID, r.spec.ID, req.URL, err)
				e.pass(route)
				return
			}
		case ActionModify:
			if !e.modify(route, r) {
				return
			}
		case ActionDelay:
			if r.spec.Delay > 0 {
				e.sleep(r.spec.Delay)
			}
			err = route.Fallback()
		case ActionLog:
			e.record(capture.ConsoleEntry{
				Type:      "info",
				Text:      fmt.Sprintf("[Intercepted] %s %s (rule %s)", req.Method, req.URL, r.spec.ID),
				Timestamp: e.now(),
				Location:  capture.Location{URL: req.URL},
			})
			err = route.Fallback()
		default:
			e.pass(route)
			return
		}

		if err != nil {
			e.logger.Warnf("session %s: intercept %s (%s) on %s failed: %v", e.sessionID, r.spec.ID, r.spec.Action, req.URL, err)
			return
		}
		r.triggers.Add(1)
	}
}

// modify fulfills the route with the upstream response overridden by the
// rule. An upstream failure degrades to pass-through. It reports whether
// the rule's action was applied.
func (e *Engine) modify(route driver.Route, r *interceptRule) bool {
	req := route.Request()
	upstream, err := route.Fetch()
	if err != nil {
		e.logger.Warnf("session %s: intercept %s could not fetch %s, passing through: %v", e.sessionID, r.spec.ID, req.URL, err)
		e.pass(route)
		return false
	}

	mod := r.spec.Modify
	resp := driver.Fulfillment{
		Status:  upstream.Status,
		Headers: make(map[string]string, len(upstream.Headers)+len(mod.Headers)),
		Body:    upstream.Body,
	}
	for k, v := range upstream.Headers {
		resp.Headers[strings.ToLower(k)] = v
	}

	if !mod.empty() {
		if mod.Status != nil {
			resp.Status = *mod.Status
		}
		for k, v := range mod.Headers {
			resp.Headers[k] = v
		}
		if mod.Body != nil {
			resp.Body = []byte(*mod.Body)
		}
		resp.Body = e.applyJSONSet(r, resp.Body)
		if !bytes.Equal(resp.Body, upstream.Body) {
			delete(resp.Headers, "content-length")
		}
	}

	if err := route.Fulfill(resp); err != nil {
		e.logger.Warnf("session %s: intercept %s could not fulfill %s, passing through: %v", e.sessionID, r.spec.ID, req.URL, err)
		e.pass(route)
		return false
	}
	return true
}

// applyJSONSet writes the rule's JSON path overrides into body in path
// order. Non-JSON bodies are returned unchanged.
func (e *Engine) applyJSONSet(r *interceptRule, body []byte) []byte {
	set := r.spec.Modify.JSONSet
	if len(set) == 0 {
		return body
	}
	if !gjson.ValidBytes(body) {
		e.logger.Warnf("session %s: intercept %s: body is not JSON, json_set skipped", e.sessionID, r.spec.ID)
		return body
	}

	body = bytes.Clone(body)
	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		updated, err := sjson.SetRawBytes(body, p, []byte(set[p]))
		if err != nil {
			e.logger.Warnf("session %s: intercept %s: json_set %q: %v", e.sessionID, r.spec.ID, p, err)
			continue
		}
		body = updated
	}
	return body
}
