package browser

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/browserd/pkg/browser/download"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// DownloadTool clicks an element and waits for the download it starts.
type DownloadTool struct {
	registry *session.Registry
	timeout  time.Duration
}

// NewDownloadTool creates a new download tool. timeout is used when the
// call does not give one.
func NewDownloadTool(registry *session.Registry, timeout time.Duration) *DownloadTool {
	if timeout <= 0 {
		timeout = download.DefaultTimeout
	}
	return &DownloadTool{registry: registry, timeout: timeout}
}

// Name returns the tool name.
func (t *DownloadTool) Name() string {
	return "browser_download"
}

// Description returns the tool description.
func (t *DownloadTool) Description() string {
	return "Click an element that starts a file download and wait for the file. The download is saved in the session's download directory and recorded whether it succeeds, times out, or fails."
}

// Schema returns the tool's JSON schema.
func (t *DownloadTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"selector": map[string]interface{}{
				"type":        "string",
				"description": "CSS selector for the element that triggers the download",
			},
			"expected_filename": map[string]interface{}{
				"type":        "string",
				"description": "Optional glob (e.g., 'report-*.csv') or substring the downloaded filename should match",
			},
			"timeout": map[string]interface{}{
				"type":        "number",
				"description": "Time to wait for the download to start in milliseconds. Default: 30000 (30 seconds)",
			},
		},
		[]string{"session", "selector"},
	)
}

// DownloadInput defines the input parameters.
type DownloadInput struct {
	XMLName          xml.Name `xml:"arguments"`
	Session          string   `xml:"session"`
	Selector         string   `xml:"selector"`
	ExpectedFilename string   `xml:"expected_filename"`
	Timeout          *float64 `xml:"timeout"`
}

// Execute triggers the download and reports its record.
func (t *DownloadTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input DownloadInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	if input.Selector == "" {
		return "", nil, fmt.Errorf("selector is required")
	}
	timeout, err := timeoutFrom(input.Timeout, t.timeout)
	if err != nil {
		return "", nil, err
	}

	info, err := t.registry.AwaitTriggeredDownload(ctx, input.Session, download.Request{
		Selector:     input.Selector,
		Timeout:      timeout,
		ExpectedName: input.ExpectedFilename,
	})
	switch {
	case isNotFound(err):
		return sessionNotFound(t.registry, input.Session)
	case errors.Is(err, driver.ErrElementNotFound):
		result, meta, _ := selectorMissing(input.Session, input.Selector, err)
		return result, meta, nil
	case err != nil:
		return "", nil, fmt.Errorf("download failed: %w", err)
	}

	meta := map[string]interface{}{"session": input.Session, "download": info}
	switch info.Status {
	case download.StatusCompleted, download.StatusWarning:
		result := fmt.Sprintf(`Download completed

Download Details:
- ID: %s
- Session: %s
- Filename: %s
- Path: %s
- Size: %d bytes
- Source URL: %s
- Status: %s`,
			info.ID,
			input.Session,
			info.Filename,
			info.Path,
			info.Size,
			info.URL,
			info.Status,
		)
		if info.Error != "" {
			result += "\n- Warning: " + info.Error
		}
		return result, meta, nil
	default:
		return fmt.Sprintf(`Download failed

- ID: %s
- Session: %s
- Selector: %s
- Error: %s

The attempt is recorded; use browser_cleanup_downloads to remove it.`,
			info.ID, input.Session, input.Selector, info.Error), meta, nil
	}
}
