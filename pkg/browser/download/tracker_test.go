package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/driver/drivertest"
)

func newPage(t *testing.T) *drivertest.Page {
	t.Helper()
	b, err := drivertest.New().Launch(context.Background(), driver.KindChromium, true)
	require.NoError(t, err)
	bc, err := b.NewContext(driver.ContextOptions{AcceptDownloads: true})
	require.NoError(t, err)
	p, err := bc.NewPage()
	require.NoError(t, err)
	return p.(*drivertest.Page)
}

func newTracker(t *testing.T) (*Tracker, *drivertest.Page) {
	t.Helper()
	return NewTracker("s1", t.TempDir(), nil), newPage(t)
}

func TestAwaitTriggeredDownloadCompletes(t *testing.T) {
	tr, page := newTracker(t)
	page.AddDownload("#export", drivertest.DownloadPlan{
		Filename: "report.csv",
		URL:      "https://app.example.com/export",
		Content:  []byte("a,b\n"),
	})

	info, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{Selector: "#export", Timeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, info.Status)
	assert.Equal(t, "report.csv", info.Filename)
	assert.Equal(t, int64(4), info.Size)
	assert.Equal(t, "#export", info.Selector)
	assert.Equal(t, "https://app.example.com/export", info.URL)
	assert.Empty(t, info.Error)
	require.NotNil(t, info.CompletedAt)
	assert.Equal(t, tr.Dir(), filepath.Dir(info.Path))

	data, err := os.ReadFile(info.Path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	assert.Equal(t, []string{"#export"}, page.Clicks())
	assert.Equal(t, []Info{info}, tr.List())
}

func TestAwaitTriggeredDownloadElementNotFound(t *testing.T) {
	tr, page := newTracker(t)

	_, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{Selector: "#missing"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrElementNotFound))
	assert.Equal(t, 0, tr.Len())
}

func TestAwaitTriggeredDownloadTimeout(t *testing.T) {
	tr, page := newTracker(t)
	page.AddDownload("#slow", drivertest.DownloadPlan{Filename: "big.zip", Delay: 300 * time.Millisecond})

	start := time.Now()
	info, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{Selector: "#slow", Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 250*time.Millisecond)
	assert.Equal(t, StatusFailed, info.Status)
	assert.Contains(t, info.Error, ErrDownloadTimeout.Error())
	assert.Nil(t, info.CompletedAt)
	assert.Equal(t, 1, tr.Len())
}

func TestAwaitTriggeredDownloadExpectedName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		want     Status
	}{
		{"glob match", "*.csv", StatusCompleted},
		{"substring match", "Report", StatusCompleted},
		{"mismatch", "*.pdf", StatusWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, page := newTracker(t)
			page.AddDownload("#dl", drivertest.DownloadPlan{Filename: "report-2024.csv", Content: []byte("x")})

			info, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{
				Selector:     "#dl",
				Timeout:      time.Second,
				ExpectedName: tt.expected,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, info.Status)
			require.NotNil(t, info.CompletedAt)
			if tt.want == StatusWarning {
				assert.Contains(t, info.Error, "does not match")
			}
			_, statErr := os.Stat(info.Path)
			assert.NoError(t, statErr)
		})
	}
}

func TestAwaitTriggeredDownloadFailures(t *testing.T) {
	tests := []struct {
		name string
		plan drivertest.DownloadPlan
		want string
	}{
		{"download failed", drivertest.DownloadPlan{Filename: "a.txt", Failure: errors.New("canceled")}, "download failed: canceled"},
		{"save failed", drivertest.DownloadPlan{Filename: "a.txt", SaveErr: errors.New("disk full")}, "failed to save download: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, page := newTracker(t)
			page.AddDownload("#dl", tt.plan)

			info, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{Selector: "#dl", Timeout: time.Second})
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, info.Status)
			assert.Equal(t, tt.want, info.Error)
		})
	}
}

func TestAwaitTriggeredDownloadContextCanceled(t *testing.T) {
	tr, page := newTracker(t)
	page.AddDownload("#dl", drivertest.DownloadPlan{Filename: "a.txt", Delay: 200 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	info, err := tr.AwaitTriggeredDownload(ctx, page, Request{Selector: "#dl", Timeout: 100 * time.Millisecond})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, info.Status)
}

func TestUnsafeSuggestedFilenameStaysInDir(t *testing.T) {
	tr, page := newTracker(t)
	page.AddDownload("#dl", drivertest.DownloadPlan{Filename: "../../etc/passwd", Content: []byte("x")})

	info, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{Selector: "#dl", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "passwd", info.Filename)
	assert.Equal(t, tr.Dir(), filepath.Dir(info.Path))
}

func download(t *testing.T, tr *Tracker, page *drivertest.Page, name string) Info {
	t.Helper()
	sel := "#" + name
	page.AddDownload(sel, drivertest.DownloadPlan{Filename: name, Content: []byte(name)})
	info, err := tr.AwaitTriggeredDownload(context.Background(), page, Request{Selector: sel, Timeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, info.Status)
	return info
}

func TestCleanupEmptyIsIdempotent(t *testing.T) {
	tr, _ := newTracker(t)

	for i := 0; i < 2; i++ {
		res := tr.CleanupDownloads("", true)
		assert.Empty(t, res.Items)
		assert.Equal(t, 0, res.Cleaned)
		assert.Equal(t, 0, res.Failed)
		assert.NoError(t, res.Err())
	}
}

func TestCleanupSingleAndAll(t *testing.T) {
	tr, page := newTracker(t)
	a := download(t, tr, page, "a.txt")
	b := download(t, tr, page, "b.txt")
	c := download(t, tr, page, "c.txt")

	res := tr.CleanupDownloads(b.ID, true)
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].Removed)
	assert.True(t, res.Items[0].FileDeleted)
	assert.NoFileExists(t, b.Path)
	assert.Equal(t, []string{a.ID, c.ID}, ids(tr.List()))

	res = tr.CleanupDownloads("", false)
	assert.Equal(t, 2, res.Cleaned)
	assert.Equal(t, 0, tr.Len())
	assert.FileExists(t, a.Path)
	assert.FileExists(t, c.Path)
}

func TestCleanupToleratesMissingFile(t *testing.T) {
	tr, page := newTracker(t)
	a := download(t, tr, page, "a.txt")
	require.NoError(t, os.Remove(a.Path))

	res := tr.CleanupDownloads(a.ID, true)
	require.NoError(t, res.Err())
	require.Len(t, res.Items, 1)
	assert.True(t, res.Items[0].Removed)
	assert.False(t, res.Items[0].FileDeleted)
}

func TestCleanupUnknownID(t *testing.T) {
	tr, _ := newTracker(t)

	res := tr.CleanupDownloads("nope", true)
	assert.Equal(t, 1, res.Failed)

	var pf *CleanupPartialFailure
	require.True(t, errors.As(res.Err(), &pf))
	assert.Equal(t, "nope", pf.Items[0].ID)
}

func TestCleanupPartialFailure(t *testing.T) {
	tr, page := newTracker(t)
	good := download(t, tr, page, "good.txt")

	// a non-empty directory cannot be removed with os.Remove
	stuck := filepath.Join(tr.Dir(), "stuck")
	require.NoError(t, os.MkdirAll(filepath.Join(stuck, "child"), 0750))
	tr.mu.Lock()
	tr.items = append(tr.items, Info{ID: "stuck", Filename: "stuck", Path: stuck, Status: StatusCompleted})
	tr.mu.Unlock()

	res := tr.CleanupDownloads("", true)
	assert.Equal(t, 1, res.Cleaned)
	assert.Equal(t, 1, res.Failed)
	assert.NoFileExists(t, good.Path)

	var pf *CleanupPartialFailure
	require.True(t, errors.As(res.Err(), &pf))
	assert.Equal(t, 2, pf.Total)
	assert.Equal(t, []string{"stuck"}, ids(tr.List()))
}

func ids(infos []Info) []string {
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.ID)
	}
	return out
}

func TestDownloadAfterAbandonedWaitIsDiscarded(t *testing.T) {
	tr, page := newTracker(t)
	page.AddDownload("#slow", drivertest.DownloadPlan{
		Filename: "late.zip",
		Content:  []byte("zip"),
		Delay:    50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	info, err := tr.AwaitTriggeredDownload(ctx, page, Request{Selector: "#slow", Timeout: 2 * time.Second})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusFailed, info.Status)

	assert.Eventually(t, func() bool {
		started := page.StartedDownloads()
		return len(started) == 1 && started[0].Deleted()
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := os.ReadDir(tr.Dir())
	if err == nil {
		assert.Empty(t, entries)
	}
}
