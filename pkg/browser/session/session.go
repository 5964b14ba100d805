package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/download"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/intercept"
)

// Session is a caller-named bundle of one browser, one isolated context and
// one or more pages, together with the logs, rules and downloads that
// belong to it. The first page is the session's current page.
type Session struct {
	ID        string
	Kind      driver.Kind
	Headless  bool
	CreatedAt time.Time

	Console   *capture.ConsoleLog
	Network   *capture.NetworkLog
	Rules     *intercept.Engine
	Downloads *download.Tracker

	// gen distinguishes this session from earlier ones registered under
	// the same id.
	gen uint64

	browser driver.Browser
	context driver.Context

	mu     sync.RWMutex
	pages  []driver.Page
	closed bool
}

// IsActive reports whether the session still holds a browser, a context
// and a page and has not been closed.
func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.browser != nil && s.context != nil && len(s.pages) > 0
}

// Page returns the current page, or nil once the session is closed.
func (s *Session) Page() driver.Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || len(s.pages) == 0 {
		return nil
	}
	return s.pages[0]
}

// PageAt returns the page with the given index.
func (s *Session) PageAt(index int) (driver.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: %s (closed)", ErrSessionNotFound, s.ID)
	}
	if index < 0 || index >= len(s.pages) {
		return nil, fmt.Errorf("session %s has no page %d (%d open)", s.ID, index, len(s.pages))
	}
	return s.pages[index], nil
}

// PageCount returns the number of open pages.
func (s *Session) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Description summarizes a session for callers.
type Description struct {
	ID             string      `json:"id"`
	Kind           driver.Kind `json:"kind"`
	Headless       bool        `json:"headless"`
	IsActive       bool        `json:"is_active"`
	CreatedAt      time.Time   `json:"created_at"`
	URL            string      `json:"url"`
	Pages          int         `json:"pages"`
	ConsoleEntries int         `json:"console_entries"`
	NetworkEntries int         `json:"network_entries"`
	MockRules      int         `json:"mock_rules"`
	InterceptRules int         `json:"intercept_rules"`
	Downloads      int         `json:"downloads"`
	ActiveSessions int         `json:"active_sessions"`
}

func (s *Session) describe() Description {
	d := Description{
		ID:             s.ID,
		Kind:           s.Kind,
		Headless:       s.Headless,
		IsActive:       s.IsActive(),
		CreatedAt:      s.CreatedAt,
		Pages:          s.PageCount(),
		ConsoleEntries: s.Console.Len(),
		NetworkEntries: s.Network.Len(),
		Downloads:      s.Downloads.Len(),
	}
	d.MockRules, d.InterceptRules = s.Rules.Counts()
	if p := s.Page(); p != nil {
		d.URL = p.URL()
	}
	return d
}
