package browser

import (
	"time"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// Options configures the browser tools.
type Options struct {
	// Session holds the defaults for start_browser_session.
	Session SessionDefaults
	// DownloadTimeout is the default wait for browser_download.
	DownloadTimeout time.Duration
}

// ToolRegistry builds the browser tools over one session registry.
type ToolRegistry struct {
	registry *session.Registry
	opts     Options
	tools    []tools.Tool
}

// NewToolRegistry creates a new browser tool registry.
func NewToolRegistry(registry *session.Registry, opts Options) *ToolRegistry {
	return &ToolRegistry{
		registry: registry,
		opts:     opts,
	}
}

// RegisterTools creates and returns all browser tools.
func (r *ToolRegistry) RegisterTools() []tools.Tool {
	if len(r.tools) > 0 {
		return r.tools
	}

	// Session management
	r.tools = append(r.tools,
		NewStartSessionTool(r.registry, r.opts.Session),
		NewListSessionsTool(r.registry),
		NewCloseSessionTool(r.registry),
		NewNewPageTool(r.registry),
	)

	// Page interaction
	r.tools = append(r.tools,
		NewNavigateTool(r.registry),
		NewClickTool(r.registry),
		NewFillTool(r.registry),
		NewSelectOptionTool(r.registry),
		NewEvaluateTool(r.registry),
		NewWaitTool(r.registry),
		NewExtractContentTool(r.registry),
		NewSearchTool(r.registry),
	)

	// Capture, interception and downloads
	r.tools = append(r.tools,
		NewConsoleLogsTool(r.registry),
		NewNetworkLogsTool(r.registry),
		NewClearLogsTool(r.registry),
		NewMockResponseTool(r.registry),
		NewInterceptRequestTool(r.registry),
		NewListRulesTool(r.registry),
		NewDeactivateRuleTool(r.registry),
		NewDownloadTool(r.registry, r.opts.DownloadTimeout),
		NewCleanupDownloadsTool(r.registry),
	)

	return r.tools
}

// GetTools returns the current set of registered tools.
func (r *ToolRegistry) GetTools() []tools.Tool {
	return r.tools
}

// SessionRegistry returns the underlying session registry.
func (r *ToolRegistry) SessionRegistry() *session.Registry {
	return r.registry
}
