package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// NetworkLogsTool returns the captured network traffic of a session.
type NetworkLogsTool struct {
	registry *session.Registry
}

// NewNetworkLogsTool creates a new network logs tool.
func NewNetworkLogsTool(registry *session.Registry) *NetworkLogsTool {
	return &NetworkLogsTool{registry: registry}
}

// Name returns the tool name.
func (t *NetworkLogsTool) Name() string {
	return "browser_network_logs"
}

// Description returns the tool description.
func (t *NetworkLogsTool) Description() string {
	return "Get requests and responses captured in a browser session, oldest first. Response bodies are included for API and text traffic. Can be filtered to API calls, auth traffic, failures, a direction or a URL substring."
}

// Schema returns the tool's JSON schema.
func (t *NetworkLogsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"filter": map[string]interface{}{
				"type":        "string",
				"description": "Filter: 'all' (default), 'api', 'auth', or 'failed' (responses with status >= 400)",
			},
			"direction": map[string]interface{}{
				"type":        "string",
				"description": "Only 'request' or 'response' entries. Default: both",
			},
			"url_contains": map[string]interface{}{
				"type":        "string",
				"description": "Only entries whose URL contains this text",
			},
			"include_bodies": map[string]interface{}{
				"type":        "boolean",
				"description": "Include captured bodies in the output. Default: true",
			},
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of most recent entries to return. Default: 50",
			},
		},
		[]string{"session"},
	)
}

// NetworkLogsInput defines the input parameters.
type NetworkLogsInput struct {
	XMLName       xml.Name `xml:"arguments"`
	Session       string   `xml:"session"`
	Filter        string   `xml:"filter"`
	Direction     string   `xml:"direction"`
	URLContains   string   `xml:"url_contains"`
	IncludeBodies *bool    `xml:"include_bodies"`
	Limit         *int     `xml:"limit"`
}

// Execute queries the network log.
func (t *NetworkLogsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input NetworkLogsInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	limit, err := logLimit(input.Limit)
	if err != nil {
		return "", nil, err
	}
	keep, err := networkFilter(input)
	if err != nil {
		return "", nil, err
	}

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}

	entries := s.Network.Filter(keep, limit)
	total := s.Network.Len()
	meta := map[string]interface{}{
		"session":  input.Session,
		"total":    total,
		"returned": len(entries),
		"entries":  entries,
	}
	if len(entries) == 0 {
		return fmt.Sprintf("No matching network entries in session '%s' (%d captured).", input.Session, total), meta, nil
	}

	bodies := input.IncludeBodies == nil || *input.IncludeBodies
	var b strings.Builder
	fmt.Fprintf(&b, "Network entries for session '%s': %d of %d captured\n\n", input.Session, len(entries), total)
	for _, e := range entries {
		writeNetworkEntry(&b, e, bodies)
	}
	return strings.TrimRight(b.String(), "\n"), meta, nil
}

func networkFilter(input NetworkLogsInput) (func(capture.NetworkEntry) bool, error) {
	var byKind func(capture.NetworkEntry) bool
	switch strings.ToLower(strings.TrimSpace(input.Filter)) {
	case "", "all":
	case "api":
		byKind = capture.NetworkEntry.IsAPICall
	case "auth":
		byKind = capture.NetworkEntry.IsAuthRelated
	case "failed", "failures":
		byKind = capture.NetworkEntry.IsFailure
	default:
		return nil, fmt.Errorf("invalid filter: %s (must be 'all', 'api', 'auth', or 'failed')", input.Filter)
	}

	direction := capture.Direction(strings.ToLower(strings.TrimSpace(input.Direction)))
	switch direction {
	case "", capture.DirectionRequest, capture.DirectionResponse:
	default:
		return nil, fmt.Errorf("invalid direction: %s (must be 'request' or 'response')", input.Direction)
	}

	return func(e capture.NetworkEntry) bool {
		if byKind != nil && !byKind(e) {
			return false
		}
		if direction != "" && e.Direction != direction {
			return false
		}
		return input.URLContains == "" || strings.Contains(e.URL, input.URLContains)
	}, nil
}

func writeNetworkEntry(b *strings.Builder, e capture.NetworkEntry, bodies bool) {
	ts := e.Timestamp.Format("15:04:05.000")
	if e.Direction == capture.DirectionResponse {
		fmt.Fprintf(b, "[%s] <- %d %s %s %s", ts, e.Status, e.StatusText, e.Method, e.URL)
		if e.Duration > 0 {
			fmt.Fprintf(b, " (%s)", e.Duration.Round(time.Millisecond))
		}
	} else {
		fmt.Fprintf(b, "[%s] -> %s %s", ts, e.Method, e.URL)
		if e.ResourceType != "" {
			fmt.Fprintf(b, " [%s]", e.ResourceType)
		}
	}
	b.WriteString("\n")
	if bodies && e.Body != "" && e.Body != capture.BodyNotCaptured {
		fmt.Fprintf(b, "   body: %s\n", e.Body)
	}
}
