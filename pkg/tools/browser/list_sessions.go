package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// ListSessionsTool lists all active browser sessions.
type ListSessionsTool struct {
	registry *session.Registry
	now      func() time.Time
}

// NewListSessionsTool creates a new list sessions tool.
func NewListSessionsTool(registry *session.Registry) *ListSessionsTool {
	return &ListSessionsTool{
		registry: registry,
		now:      time.Now,
	}
}

// Name returns the tool name.
func (t *ListSessionsTool) Name() string {
	return "list_browser_sessions"
}

// Description returns the tool description.
func (t *ListSessionsTool) Description() string {
	return "List all active browser sessions with their current page, captured log sizes, rules and downloads."
}

// Schema returns the tool's JSON schema.
func (t *ListSessionsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(map[string]interface{}{}, nil)
}

// Execute lists all sessions.
func (t *ListSessionsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	sessions := t.registry.List()
	meta := map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	}

	if len(sessions) == 0 {
		return "No active browser sessions.\n\nUse start_browser_session to create a new session.", meta, nil
	}

	var result strings.Builder
	fmt.Fprintf(&result, "Active Browser Sessions: %d\n\n", len(sessions))

	for i, d := range sessions {
		mode := "headed"
		if d.Headless {
			mode = "headless"
		}
		url := d.URL
		if url == "" {
			url = "about:blank"
		}

		fmt.Fprintf(&result, `%d. %s (%s, %s)
   URL: %s
   Pages: %d
   Age: %s
   Console entries: %d, network entries: %d
   Mock rules: %d, intercept rules: %d, downloads: %d

`,
			i+1,
			d.ID,
			d.Kind,
			mode,
			url,
			d.Pages,
			formatDuration(t.now().Sub(d.CreatedAt)),
			d.ConsoleEntries,
			d.NetworkEntries,
			d.MockRules,
			d.InterceptRules,
			d.Downloads,
		)
	}

	result.WriteString("Use close_browser_session to close a session when finished.")

	return result.String(), meta, nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
