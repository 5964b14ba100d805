package browser

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

const (
	// DefaultTimeout is the default timeout for page actions in milliseconds.
	DefaultTimeout = 30000.0

	// MaxTimeout bounds caller supplied timeouts in milliseconds.
	MaxTimeout = 300000.0

	// DefaultMaxLength is the default maximum content length for extraction.
	DefaultMaxLength = 10000
)

var sessionProperty = map[string]interface{}{
	"type":        "string",
	"description": "Name of the browser session to use",
}

var pageProperty = map[string]interface{}{
	"type":        "integer",
	"description": "Index of the page within the session. Default: 0 (the session's first page)",
}

var timeoutProperty = map[string]interface{}{
	"type":        "number",
	"description": "Timeout in milliseconds. Default: 30000 (30 seconds)",
}

// parseArgs unmarshals the tool arguments and requires a session name.
func parseArgs(argsXML []byte, v interface{}, sessionName func() string) error {
	if err := tools.UnmarshalXMLWithFallback(argsXML, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	if sessionName != nil && strings.TrimSpace(sessionName()) == "" {
		return fmt.Errorf("session name is required")
	}
	return nil
}

// timeoutFrom converts a millisecond argument into a duration.
func timeoutFrom(ms *float64, def time.Duration) (time.Duration, error) {
	if ms == nil {
		return def, nil
	}
	if *ms < 0 || *ms > MaxTimeout {
		return 0, fmt.Errorf("timeout must be between 0 and %.0f milliseconds (5 minutes)", MaxTimeout)
	}
	if *ms == 0 {
		return def, nil
	}
	return time.Duration(*ms * float64(time.Millisecond)), nil
}

// sessionNotFound renders a missing session as a tool result.
func sessionNotFound(registry *session.Registry, name string) (string, map[string]interface{}, error) {
	active := registry.ListActiveIDs()
	list := "none"
	if len(active) > 0 {
		list = strings.Join(active, ", ")
	}
	result := fmt.Sprintf(`Browser session '%s' not found

Active sessions: %s

Use start_browser_session to create a session or list_browser_sessions to see the available ones.`,
		name, list)
	return result, map[string]interface{}{
		"session": name,
		"found":   false,
	}, nil
}

// isNotFound reports whether err means the session does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound)
}

// pageOf returns the page with the given index (default 0) of the session.
func pageOf(s *session.Session, index *int) (driver.Page, error) {
	i := 0
	if index != nil {
		i = *index
	}
	return s.PageAt(i)
}

// selectorMissing renders a missing element as a tool result.
func selectorMissing(name, selector string, err error) (string, map[string]interface{}, bool) {
	if !errors.Is(err, driver.ErrTimeout) && !errors.Is(err, driver.ErrElementNotFound) {
		return "", nil, false
	}
	result := fmt.Sprintf(`Element not found

- Session: %s
- Selector: %s

No element matched the selector before the timeout. Check the selector with browser_extract_content or wait for the page with browser_wait.`,
		name, selector)
	return result, map[string]interface{}{
		"session":  name,
		"selector": selector,
		"found":    false,
	}, true
}
