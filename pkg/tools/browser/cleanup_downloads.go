package browser

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/entrhq/browserd/pkg/browser/session"
	"github.com/entrhq/browserd/pkg/tools"
)

// CleanupDownloadsTool removes download records and files of a session.
type CleanupDownloadsTool struct {
	registry *session.Registry
}

// NewCleanupDownloadsTool creates a new cleanup downloads tool.
func NewCleanupDownloadsTool(registry *session.Registry) *CleanupDownloadsTool {
	return &CleanupDownloadsTool{registry: registry}
}

// Name returns the tool name.
func (t *CleanupDownloadsTool) Name() string {
	return "browser_cleanup_downloads"
}

// Description returns the tool description.
func (t *CleanupDownloadsTool) Description() string {
	return "Remove download records of a session, one by ID or all of them, and optionally delete the downloaded files."
}

// Schema returns the tool's JSON schema.
func (t *CleanupDownloadsTool) Schema() map[string]interface{} {
	return tools.BaseToolSchema(
		map[string]interface{}{
			"session": sessionProperty,
			"download_id": map[string]interface{}{
				"type":        "string",
				"description": "ID of the download to remove. Default: all downloads of the session",
			},
			"delete_files": map[string]interface{}{
				"type":        "boolean",
				"description": "Also delete the files from disk. Default: true",
			},
		},
		[]string{"session"},
	)
}

// CleanupDownloadsInput defines the input parameters.
type CleanupDownloadsInput struct {
	XMLName     xml.Name `xml:"arguments"`
	Session     string   `xml:"session"`
	DownloadID  string   `xml:"download_id"`
	DeleteFiles *bool    `xml:"delete_files"`
}

// Execute removes the records. Per-item failures are reported in the result.
func (t *CleanupDownloadsTool) Execute(ctx context.Context, argsXML []byte) (string, map[string]interface{}, error) {
	var input CleanupDownloadsInput
	if err := parseArgs(argsXML, &input, func() string { return input.Session }); err != nil {
		return "", nil, err
	}
	deleteFiles := input.DeleteFiles == nil || *input.DeleteFiles

	res, err := t.registry.CleanupDownloads(input.Session, strings.TrimSpace(input.DownloadID), deleteFiles)
	if err != nil {
		return sessionNotFound(t.registry, input.Session)
	}

	meta := map[string]interface{}{
		"session": input.Session,
		"cleaned": res.Cleaned,
		"failed":  res.Failed,
		"items":   res.Items,
	}
	if len(res.Items) == 0 {
		return fmt.Sprintf("No downloads to clean up in session '%s'.", input.Session), meta, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Download cleanup for session '%s': %d cleaned, %d failed\n\n", input.Session, res.Cleaned, res.Failed)
	for _, it := range res.Items {
		switch {
		case it.Error != "":
			fmt.Fprintf(&b, "- %s %s: failed: %s\n", it.ID, it.Filename, it.Error)
		case it.FileDeleted:
			fmt.Fprintf(&b, "- %s %s: removed, file deleted\n", it.ID, it.Filename)
		default:
			fmt.Fprintf(&b, "- %s %s: removed\n", it.ID, it.Filename)
		}
	}
	if err := res.Err(); err != nil {
		fmt.Fprintf(&b, "\n%v", err)
	}
	return strings.TrimRight(b.String(), "\n"), meta, nil
}
