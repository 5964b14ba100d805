package intercept

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/tidwall/gjson"
)

// ErrInvalidRulePayload is returned when a rule is rejected at creation.
var ErrInvalidRulePayload = errors.New("invalid rule payload")

// AnyMethod matches every HTTP method.
const AnyMethod = "*"

// Action is what an intercept rule does with a matching request.
type Action string

const (
	ActionBlock  Action = "block"
	ActionModify Action = "modify"
	ActionLog    Action = "log"
	ActionDelay  Action = "delay"
)

// MockSpec describes a mock rule to create.
type MockSpec struct {
	Pattern     string
	Method      string
	Status      int
	Headers     map[string]string
	ContentType string
	Body        string
	Delay       time.Duration
}

// MockRule is a snapshot of a registered mock rule.
type MockRule struct {
	ID         string            `json:"id"`
	Pattern    string            `json:"pattern"`
	Method     string            `json:"method"`
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Delay      time.Duration     `json:"delay,omitempty"`
	Active     bool              `json:"active"`
	CreatedAt  time.Time         `json:"created_at"`
	UsageCount int64             `json:"usage_count"`
}

// ModifySpec holds the overrides a modify rule applies to the upstream
// response. Nil or empty fields keep the upstream value.
type ModifySpec struct {
	Status  *int              `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    *string           `json:"body,omitempty"`
	// JSONSet maps JSON paths to raw JSON values written into the body.
	JSONSet map[string]string `json:"json_set,omitempty"`
}

func (m ModifySpec) empty() bool {
	return m.Status == nil && len(m.Headers) == 0 && m.Body == nil && len(m.JSONSet) == 0
}

// InterceptSpec describes an intercept rule to create.
type InterceptSpec struct {
	Pattern string
	Method  string
	Action  Action
	Modify  ModifySpec
	Delay   time.Duration
}

// InterceptRule is a snapshot of a registered intercept rule.
type InterceptRule struct {
	ID           string        `json:"id"`
	Pattern      string        `json:"pattern"`
	Method       string        `json:"method"`
	Action       Action        `json:"action"`
	Modify       ModifySpec    `json:"modify"`
	Delay        time.Duration `json:"delay,omitempty"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
	TriggerCount int64         `json:"trigger_count"`
}

// mockRule is the live form of a MockRule. Everything but active and usage
// is fixed at creation.
type mockRule struct {
	spec   MockRule
	match  func(string) bool
	active atomic.Bool
	usage  atomic.Int64
}

func (r *mockRule) snapshot() MockRule {
	s := r.spec
	s.Headers = maps.Clone(r.spec.Headers)
	s.Active = r.active.Load()
	s.UsageCount = r.usage.Load()
	return s
}

type interceptRule struct {
	spec     InterceptRule
	match    func(string) bool
	active   atomic.Bool
	triggers atomic.Int64
}

func (r *interceptRule) snapshot() InterceptRule {
	s := r.spec
	s.Modify.Headers = maps.Clone(r.spec.Modify.Headers)
	s.Modify.JSONSet = maps.Clone(r.spec.Modify.JSONSet)
	s.Active = r.active.Load()
	s.TriggerCount = r.triggers.Load()
	return s
}

// CompilePattern turns a URL pattern into a matcher. Patterns are globs
// where * spans any characters, slashes included; a pattern that does not
// compile as a glob matches the literal URL only.
func CompilePattern(pattern string) (func(string) bool, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%w: url pattern is required", ErrInvalidRulePayload)
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return func(u string) bool { return u == pattern }, nil
	}
	return func(u string) bool { return u == pattern || g.Match(u) }, nil
}

func methodMatches(ruleMethod, reqMethod string) bool {
	return ruleMethod == AnyMethod || strings.EqualFold(ruleMethod, reqMethod)
}

func normalizeMethod(m string) (string, error) {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" || m == AnyMethod {
		return AnyMethod, nil
	}
	for _, c := range m {
		if c < 'A' || c > 'Z' {
			return "", fmt.Errorf("%w: invalid method %q", ErrInvalidRulePayload, m)
		}
	}
	return m, nil
}

func validateStatus(status int) error {
	if status < 100 || status > 599 {
		return fmt.Errorf("%w: status %d out of range 100-599", ErrInvalidRulePayload, status)
	}
	return nil
}

// normalizeHeaders lower-cases header names and rejects names or values
// that would break the response framing.
func normalizeHeaders(headers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		name := strings.ToLower(strings.TrimSpace(k))
		if name == "" || strings.ContainsAny(name, "\r\n: ") {
			return nil, fmt.Errorf("%w: invalid header name %q", ErrInvalidRulePayload, k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("%w: header %q value contains a line break", ErrInvalidRulePayload, k)
		}
		out[name] = v
	}
	return out, nil
}

func isJSONContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "json")
}

func validateJSONBody(contentType, body string) error {
	if body != "" && isJSONContentType(contentType) && !gjson.Valid(body) {
		return fmt.Errorf("%w: body is not valid JSON for content type %q", ErrInvalidRulePayload, contentType)
	}
	return nil
}

// looksLikeJSON reports whether body is a JSON object or array.
func looksLikeJSON(body string) bool {
	t := strings.TrimSpace(body)
	return (strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[")) && gjson.Valid(t)
}

func validateDelay(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: negative delay %s", ErrInvalidRulePayload, d)
	}
	return nil
}

func buildMockRule(id string, spec MockSpec, now time.Time) (*mockRule, error) {
	match, err := CompilePattern(spec.Pattern)
	if err != nil {
		return nil, err
	}
	method, err := normalizeMethod(spec.Method)
	if err != nil {
		return nil, err
	}
	status := spec.Status
	if status == 0 {
		status = 200
	}
	if err := validateStatus(status); err != nil {
		return nil, err
	}
	if err := validateDelay(spec.Delay); err != nil {
		return nil, err
	}
	headers, err := normalizeHeaders(spec.Headers)
	if err != nil {
		return nil, err
	}

	if spec.ContentType != "" {
		if strings.ContainsAny(spec.ContentType, "\r\n") {
			return nil, fmt.Errorf("%w: invalid content type", ErrInvalidRulePayload)
		}
		headers["content-type"] = spec.ContentType
	}
	if _, ok := headers["content-type"]; !ok {
		if looksLikeJSON(spec.Body) {
			headers["content-type"] = "application/json"
		} else {
			headers["content-type"] = "text/plain"
		}
	}
	if err := validateJSONBody(headers["content-type"], spec.Body); err != nil {
		return nil, err
	}

	r := &mockRule{
		spec: MockRule{
			ID:        id,
			Pattern:   strings.TrimSpace(spec.Pattern),
			Method:    method,
			Status:    status,
			Headers:   headers,
			Body:      spec.Body,
			Delay:     spec.Delay,
			CreatedAt: now,
		},
		match: match,
	}
	r.active.Store(true)
	return r, nil
}

func buildInterceptRule(id string, spec InterceptSpec, now time.Time) (*interceptRule, error) {
	match, err := CompilePattern(spec.Pattern)
	if err != nil {
		return nil, err
	}
	method, err := normalizeMethod(spec.Method)
	if err != nil {
		return nil, err
	}
	action := Action(strings.ToLower(strings.TrimSpace(string(spec.Action))))
	if action == "" {
		return nil, fmt.Errorf("%w: action is required", ErrInvalidRulePayload)
	}
	if err := validateDelay(spec.Delay); err != nil {
		return nil, err
	}

	mod := spec.Modify
	if mod.Status != nil {
		if err := validateStatus(*mod.Status); err != nil {
			return nil, err
		}
		s := *mod.Status
		mod.Status = &s
	}
	if mod.Body != nil {
		b := *mod.Body
		mod.Body = &b
	}
	if mod.Headers, err = normalizeHeaders(mod.Headers); err != nil {
		return nil, err
	}
	if mod.Body != nil {
		if err := validateJSONBody(mod.Headers["content-type"], *mod.Body); err != nil {
			return nil, err
		}
	}
	jsonSet := make(map[string]string, len(mod.JSONSet))
	for path, raw := range mod.JSONSet {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: empty JSON path", ErrInvalidRulePayload)
		}
		if !gjson.Valid(raw) {
			return nil, fmt.Errorf("%w: value for %q is not valid JSON", ErrInvalidRulePayload, path)
		}
		jsonSet[path] = raw
	}
	mod.JSONSet = jsonSet

	r := &interceptRule{
		spec: InterceptRule{
			ID:        id,
			Pattern:   strings.TrimSpace(spec.Pattern),
			Method:    method,
			Action:    action,
			Modify:    mod,
			Delay:     spec.Delay,
			CreatedAt: now,
		},
		match: match,
	}
	r.active.Store(true)
	return r, nil
}
