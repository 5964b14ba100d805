package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ItemResult is the outcome of cleaning one record.
type ItemResult struct {
	ID          string `json:"id"`
	Filename    string `json:"filename,omitempty"`
	Path        string `json:"path,omitempty"`
	Removed     bool   `json:"removed"`
	FileDeleted bool   `json:"file_deleted"`
	Error       string `json:"error,omitempty"`
}

// CleanupResult aggregates per-item cleanup outcomes.
type CleanupResult struct {
	Items   []ItemResult `json:"items"`
	Cleaned int          `json:"cleaned"`
	Failed  int          `json:"failed"`
}

// Err returns a *CleanupPartialFailure when any item failed.
func (r CleanupResult) Err() error {
	if r.Failed == 0 {
		return nil
	}
	f := &CleanupPartialFailure{Total: len(r.Items)}
	for _, it := range r.Items {
		if it.Error != "" {
			f.Items = append(f.Items, it)
		}
	}
	return f
}

// CleanupPartialFailure lists the items a cleanup batch could not clean.
type CleanupPartialFailure struct {
	Items []ItemResult
	Total int
}

func (e *CleanupPartialFailure) Error() string {
	return fmt.Sprintf("cleanup failed for %d of %d downloads", len(e.Items), e.Total)
}

// CleanupDownloads removes the record with the given id, or every record
// when id is empty, optionally deleting the saved files. Missing files are
// not an error. A record whose file cannot be deleted is kept and reported
// as failed; the rest of the batch still runs.
func (t *Tracker) CleanupDownloads(id string, deleteFiles bool) CleanupResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	var res CleanupResult
	if id != "" {
		found := false
		for _, it := range t.items {
			if it.ID == id {
				found = true
				break
			}
		}
		if !found {
			res.Items = append(res.Items, ItemResult{ID: id, Error: fmt.Sprintf("download %s not found", id)})
			res.Failed = 1
			return res
		}
	}

	kept := t.items[:0]
	for _, it := range t.items {
		if id != "" && it.ID != id {
			kept = append(kept, it)
			continue
		}

		item := ItemResult{ID: it.ID, Filename: it.Filename, Path: it.Path}
		if deleteFiles && it.Path != "" {
			err := os.Remove(it.Path)
			switch {
			case err == nil:
				item.FileDeleted = true
			case errors.Is(err, fs.ErrNotExist):
				// already gone
			default:
				item.Error = fmt.Sprintf("failed to delete file: %v", err)
			}
		}

		if item.Error != "" {
			kept = append(kept, it)
			res.Failed++
			t.logger.Warnf("session %s: cleanup of download %s failed: %s", t.sessionID, it.ID, item.Error)
		} else {
			item.Removed = true
			res.Cleaned++
		}
		res.Items = append(res.Items, item)
	}
	clear(t.items[len(kept):])
	t.items = kept

	if deleteFiles && len(t.items) == 0 {
		// only succeeds once the directory is empty
		_ = os.Remove(t.dir)
	}
	return res
}
