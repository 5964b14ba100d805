package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// ClearLogsTool empties the captured logs of a session.
type ClearLogsTool struct {
	registry *session.Registry
}

// NewClearLogsTool creates a new clear logs tool.
func NewClearLogsTool(registry *session.Registry) *ClearLogsTool {
	return &ClearLogsTool{registry: registry}
}

// Name returns the tool name.
func (t *ClearLogsTool) Name() string {
	return "browser_clear_logs"
}

// Description returns the tool description.
func (t *ClearLogsTool) Description() string {
	return "Clear the captured console and/or network logs of a browser session, e.g. before reproducing an issue."
}

// Schema returns the tool's JSON schema.
func (t *ClearLogsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"target": map[string]interface{}{
				"type":        "string",
				"description": "Which log to clear: 'all' (default), 'console', or 'network'",
			},
		},
		[]string{"session"},
	)
}

// ClearLogsInput defines the input parameters.
type ClearLogsInput struct {
	XMLName xml.Name `xml:"arguments"`
	Session string   `xml:"session"`
	Target  string   `xml:"target"`
}

// Execute clears the logs.
func (t *ClearLogsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input ClearLogsInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	target := strings.ToLower(strings.TrimSpace(input.Target))
	if target == "" {
		target = "all"
	}
	if target != "all" && target != "console" && target != "network" {
		return "", nil, fmt.Errorf("invalid target: %s (must be 'all', 'console', or 'network')", input.Target)
	}

	s, err := t.registry.Session(input.Session)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}

	var console, network int
	if target != "network" {
		console = s.Console.Clear()
	}
	if target != "console" {
		network = s.Network.Clear()
	}

	return fmt.Sprintf("Cleared %d console and %d network entries from session '%s'.", console, network, input.Session),
		map[string]interface{}{
			"session":         input.Session,
			"console_cleared": console,
			"network_cleared": network,
		}, nil
}
