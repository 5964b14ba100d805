package capture

import (
	"net/url"
	"strings"
	"time"
)

// Direction tells requests and responses apart in the network log.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// Location points at the source of a console message.
type Location struct {
	URL    string `json:"url,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// ConsoleEntry is one console message (or uncaught page error) observed in
// a session. Entries are never mutated after they are appended.
type ConsoleEntry struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Location  Location  `json:"location"`
	Args      []string  `json:"args,omitempty"`
}

// IsError reports whether the entry is an error message.
func (e ConsoleEntry) IsError() bool {
	return strings.EqualFold(e.Type, "error")
}

// IsWarning reports whether the entry is a warning.
func (e ConsoleEntry) IsWarning() bool {
	return strings.EqualFold(e.Type, "warning") || strings.EqualFold(e.Type, "warn")
}

// NetworkEntry is one request or response observed in a session.
//
// Responses carry the URL and method of the request they answer; there is
// no explicit pairing id, so callers correlate by URL and time order.
type NetworkEntry struct {
	Direction    Direction         `json:"direction"`
	Method       string            `json:"method"`
	URL          string            `json:"url"`
	Status       int               `json:"status,omitempty"`
	StatusText   string            `json:"status_text,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         string            `json:"body,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Duration     time.Duration     `json:"duration,omitempty"`
}

var apiPathMarkers = []string{"/api/", "/graphql", "/rest/", "/v1/", "/v2/", "/v3/", ".json"}

var authURLMarkers = []string{"auth", "login", "token", "oauth", "session", "signin"}

var authHeaders = []string{"authorization", "cookie", "set-cookie", "x-api-key", "x-auth-token"}

// IsAPICall reports whether the entry looks like API traffic: the URL path
// carries an API marker or the content type is JSON or plain text.
func (e NetworkEntry) IsAPICall() bool {
	path := strings.ToLower(e.URL)
	if u, err := url.Parse(e.URL); err == nil && u.Path != "" {
		path = strings.ToLower(u.Path)
	}
	for _, m := range apiPathMarkers {
		if strings.Contains(path, m) {
			return true
		}
	}
	ct := strings.ToLower(e.Headers["content-type"])
	return strings.Contains(ct, "json") || strings.HasPrefix(ct, "text/plain")
}

// IsAuthRelated reports whether the URL or headers carry auth markers.
func (e NetworkEntry) IsAuthRelated() bool {
	lower := strings.ToLower(e.URL)
	for _, m := range authURLMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	for _, h := range authHeaders {
		if _, ok := e.Headers[h]; ok {
			return true
		}
	}
	return false
}

// IsFailure reports whether a response carries a 4xx or 5xx status.
func (e NetworkEntry) IsFailure() bool {
	return e.Direction == DirectionResponse && e.Status >= 400
}
