// Package download tracks file downloads triggered in a browser session.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/logging"
)

// DefaultTimeout bounds a download wait when the caller gives none.
const DefaultTimeout = 30 * time.Second

// ErrDownloadTimeout is recorded on downloads that did not start in time.
var ErrDownloadTimeout = errors.New("download timeout")

// Status is the state of a tracked download.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	// StatusWarning marks a saved download whose filename did not match the
	// expected pattern.
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

// Info is one tracked download.
type Info struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename,omitempty"`
	Path        string     `json:"path,omitempty"`
	Size        int64      `json:"size"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Selector    string     `json:"selector"`
	URL         string     `json:"url,omitempty"`
}

// Request describes a download to trigger and wait for.
type Request struct {
	Selector string
	Timeout  time.Duration
	// ExpectedName is a glob (or plain substring) the filename should match.
	ExpectedName string
}

// Tracker owns the download records of one session. Files are saved under
// <baseDir>/<sessionID>.
type Tracker struct {
	sessionID string
	dir       string
	logger    *logging.Logger

	mu    sync.Mutex
	items []Info
}

// NewTracker creates a tracker saving files below baseDir.
func NewTracker(sessionID, baseDir string, logger *logging.Logger) *Tracker {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tracker{
		sessionID: sessionID,
		dir:       filepath.Join(baseDir, sessionID),
		logger:    logger,
	}
}

// Dir returns the directory downloads are saved to.
func (t *Tracker) Dir() string {
	return t.dir
}

type expectResult struct {
	download driver.Download
	err      error
}

// AwaitTriggeredDownload clicks req.Selector on page and waits for the
// download it starts.
//
// A missing trigger element fails with driver.ErrElementNotFound before any
// record is created. Every other outcome is recorded and returned without
// error: a download that does not start within the timeout is marked
// failed, and one whose filename misses req.ExpectedName is marked warning.
// Only cancellation of ctx is returned as an error, next to the failed
// record.
func (t *Tracker) AwaitTriggeredDownload(ctx context.Context, page driver.Page, req Request) (Info, error) {
	if strings.TrimSpace(req.Selector) == "" {
		return Info{}, fmt.Errorf("%w: empty selector", driver.ErrElementNotFound)
	}
	found, err := page.HasElement(req.Selector)
	if err != nil {
		return Info{}, driver.Wrap("locate", err)
	}
	if !found {
		return Info{}, fmt.Errorf("%w: %s", driver.ErrElementNotFound, req.Selector)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	info := Info{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Status:    StatusPending,
		Selector:  req.Selector,
	}
	t.mu.Lock()
	t.items = append(t.items, info)
	t.mu.Unlock()

	done := make(chan expectResult, 1)
	go func() {
		d, err := page.ExpectDownload(func() error {
			return page.Click(req.Selector, driver.ClickOptions{Timeout: timeout})
		}, timeout)
		done <- expectResult{download: d, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, driver.ErrTimeout) {
				return t.fail(info.ID, timeoutMessage(timeout)), nil
			}
			return t.fail(info.ID, fmt.Sprintf("download trigger failed: %v", res.err)), nil
		}
		return t.save(info.ID, res.download, req.ExpectedName), nil
	case <-timer.C:
		go t.discardLate(info.ID, done)
		return t.fail(info.ID, timeoutMessage(timeout)), nil
	case <-ctx.Done():
		go t.discardLate(info.ID, done)
		return t.fail(info.ID, ctx.Err().Error()), ctx.Err()
	}
}

// discardLate deletes a download that starts after its wait was abandoned.
func (t *Tracker) discardLate(id string, done <-chan expectResult) {
	res := <-done
	if res.err != nil || res.download == nil {
		return
	}
	if err := res.download.Delete(); err != nil {
		t.logger.Warnf("session %s: failed to discard late download for %s: %v", t.sessionID, id, err)
		return
	}
	t.logger.Infof("session %s: discarded late download %q for %s", t.sessionID, res.download.SuggestedFilename(), id)
}

func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("%v: no download started within %s", ErrDownloadTimeout, timeout)
}

// save persists d and completes the record.
func (t *Tracker) save(id string, d driver.Download, expected string) Info {
	if failure := d.Failure(); failure != nil {
		return t.fail(id, fmt.Sprintf("download failed: %v", failure))
	}

	name := filepath.Base(d.SuggestedFilename())
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "download"
	}
	path := filepath.Join(t.dir, id[:8]+"_"+name)

	if err := os.MkdirAll(t.dir, 0750); err != nil {
		return t.fail(id, fmt.Sprintf("failed to create download directory: %v", err))
	}
	if err := d.SaveAs(path); err != nil {
		return t.fail(id, fmt.Sprintf("failed to save download: %v", err))
	}

	var size int64
	if st, err := os.Stat(path); err == nil {
		size = st.Size()
	} else {
		t.logger.Warnf("session %s: stat %s: %v", t.sessionID, path, err)
	}

	status := StatusCompleted
	var msg string
	if expected != "" && !MatchName(expected, name) {
		status = StatusWarning
		msg = fmt.Sprintf("filename %q does not match expected pattern %q", name, expected)
	}

	now := time.Now()
	info, _ := t.update(id, func(i *Info) {
		i.Filename = name
		i.Path = path
		i.Size = size
		i.URL = d.URL()
		i.Status = status
		i.Error = msg
		i.CompletedAt = &now
	})
	t.logger.Infof("session %s: download %s %s (%s, %d bytes)", t.sessionID, id, status, name, size)
	return info
}

func (t *Tracker) fail(id, msg string) Info {
	info, _ := t.update(id, func(i *Info) {
		i.Status = StatusFailed
		i.Error = msg
	})
	t.logger.Warnf("session %s: download %s failed: %s", t.sessionID, id, msg)
	return info
}

// update applies fn to a pending record. Records leave pending exactly
// once; later updates and updates to removed records are ignored.
func (t *Tracker) update(id string, fn func(*Info)) (Info, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.items {
		if t.items[i].ID != id {
			continue
		}
		if t.items[i].Status == StatusPending {
			fn(&t.items[i])
		}
		return t.items[i], true
	}
	return Info{ID: id, Status: StatusFailed}, false
}

// MatchName reports whether filename matches pattern, first as a glob and
// then as a case-insensitive substring.
func MatchName(pattern, filename string) bool {
	if g, err := glob.Compile(pattern); err == nil && g.Match(filename) {
		return true
	}
	return strings.Contains(strings.ToLower(filename), strings.ToLower(pattern))
}

// List returns the records in creation order.
func (t *Tracker) List() []Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Info, len(t.items))
	copy(out, t.items)
	return out
}

// Len returns the number of records.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
