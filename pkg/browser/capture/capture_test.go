package capture

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/driver/drivertest"
)

type fakeResolver struct {
	mu     sync.Mutex
	target Target
	gen    uint64
	gone   bool
}

func (r *fakeResolver) Resolve(_ string, gen uint64) (Target, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone || gen != r.gen {
		return Target{}, false
	}
	return r.target, true
}

func newContext(t *testing.T) *drivertest.Context {
	t.Helper()
	b, err := drivertest.New().Launch(context.Background(), driver.KindChromium, true)
	require.NoError(t, err)
	bc, err := b.NewContext(driver.ContextOptions{})
	require.NoError(t, err)
	return bc.(*drivertest.Context)
}

func attach(t *testing.T, opts Options) (*drivertest.Context, *fakeResolver) {
	t.Helper()
	bc := newContext(t)
	r := &fakeResolver{gen: 1, target: Target{Console: &ConsoleLog{}, Network: &NetworkLog{}}}
	Attach(bc, "s1", 1, r, opts, nil)
	return bc, r
}

func TestAttachRegistersFourListeners(t *testing.T) {
	bc, _ := attach(t, DefaultOptions())
	assert.Equal(t, 4, bc.ListenerCount())
}

func TestConsoleCapture(t *testing.T) {
	bc, r := attach(t, DefaultOptions())

	bc.EmitConsole(driver.ConsoleMessage{
		Type:     "log",
		Text:     "hello",
		Location: driver.Location{URL: "https://example.com/app.js", Line: 3, Column: 7},
		Args:     []string{"hello"},
	})
	bc.EmitConsole(driver.ConsoleMessage{Type: "warning", Text: "careful"})
	bc.EmitPageError(driver.PageError{Message: "boom", PageURL: "https://example.com/"})

	entries := r.target.Console.Snapshot()
	require.Len(t, entries, 3)

	assert.Equal(t, "hello", entries[0].Text)
	assert.Equal(t, 3, entries[0].Location.Line)
	assert.Equal(t, []string{"hello"}, entries[0].Args)
	assert.False(t, entries[0].IsError())

	assert.True(t, entries[1].IsWarning())

	assert.Equal(t, "error", entries[2].Type)
	assert.Equal(t, "boom", entries[2].Text)
	assert.True(t, entries[2].IsError())
	assert.Equal(t, "https://example.com/", entries[2].Location.URL)
}

func TestRequestHeadersAreCapped(t *testing.T) {
	bc, r := attach(t, DefaultOptions())

	long := strings.Repeat("a", 2000)
	bc.EmitRequest(driver.Request{
		Method:  "POST",
		URL:     "https://example.com/api/items",
		Headers: map[string]string{"X-Long": long, "Content-Type": "application/json"},
	})

	entries := r.target.Network.Snapshot()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, DirectionRequest, e.Direction)
	assert.Equal(t, "application/json", e.Headers["content-type"])
	assert.True(t, strings.HasPrefix(e.Headers["x-long"], strings.Repeat("a", DefaultMaxHeaderValueLength)))
	assert.Less(t, len(e.Headers["x-long"]), len(long))
}

func TestResponseBodyCapture(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		headers  map[string]string
		read     func() ([]byte, error)
		opts     Options
		wantBody string
	}{
		{
			name:     "api json body captured",
			url:      "https://example.com/api/users",
			headers:  map[string]string{"Content-Type": "application/json"},
			read:     func() ([]byte, error) { return []byte(`{"ok":true}`), nil },
			opts:     DefaultOptions(),
			wantBody: `{"ok":true}`,
		},
		{
			name:     "image not captured",
			url:      "https://example.com/logo.png",
			headers:  map[string]string{"content-type": "image/png"},
			read:     func() ([]byte, error) { t.Fatal("body must not be read"); return nil, nil },
			opts:     DefaultOptions(),
			wantBody: BodyNotCaptured,
		},
		{
			name:     "read failure becomes placeholder",
			url:      "https://example.com/api/broken",
			headers:  map[string]string{"content-type": "application/json"},
			read:     func() ([]byte, error) { return nil, errors.New("connection reset") },
			opts:     DefaultOptions(),
			wantBody: "[Error reading response: connection reset]",
		},
		{
			name:     "read panic becomes placeholder",
			url:      "https://example.com/api/panics",
			headers:  map[string]string{"content-type": "application/json"},
			read:     func() ([]byte, error) { panic("target closed") },
			opts:     DefaultOptions(),
			wantBody: "[Error reading response: target closed]",
		},
		{
			name:     "capture disabled",
			url:      "https://example.com/api/users",
			headers:  map[string]string{"content-type": "application/json"},
			read:     func() ([]byte, error) { return []byte("{}"), nil },
			opts:     Options{CaptureBodies: false},
			wantBody: BodyNotCaptured,
		},
		{
			name:     "long body truncated",
			url:      "https://example.com/page",
			headers:  map[string]string{"content-type": "text/plain"},
			read:     func() ([]byte, error) { return []byte(strings.Repeat("x", 50)), nil },
			opts:     Options{CaptureBodies: true, MaxBodyLength: 10},
			wantBody: strings.Repeat("x", 10) + "...[truncated]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc, r := attach(t, tt.opts)
			bc.EmitResponse(driver.Response{
				Request:  driver.Request{Method: "GET", URL: tt.url},
				URL:      tt.url,
				Status:   200,
				Headers:  tt.headers,
				ReadBody: tt.read,
			})

			entries := r.target.Network.Snapshot()
			require.Len(t, entries, 1)
			assert.Equal(t, DirectionResponse, entries[0].Direction)
			assert.Equal(t, "GET", entries[0].Method)
			assert.Equal(t, tt.wantBody, entries[0].Body)
		})
	}
}

func TestEventsForStaleSessionAreDropped(t *testing.T) {
	bc, r := attach(t, DefaultOptions())

	bc.EmitConsole(driver.ConsoleMessage{Type: "log", Text: "kept"})

	r.mu.Lock()
	r.gen = 2 // session replaced under the same id
	r.mu.Unlock()
	bc.EmitConsole(driver.ConsoleMessage{Type: "log", Text: "dropped"})

	r.mu.Lock()
	r.gone = true
	r.mu.Unlock()
	bc.EmitRequest(driver.Request{Method: "GET", URL: "https://example.com"})

	assert.Equal(t, 1, r.target.Console.Len())
	assert.Equal(t, 0, r.target.Network.Len())
}

func TestConcurrentDeliveryKeepsEveryEntry(t *testing.T) {
	bc, r := attach(t, DefaultOptions())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bc.EmitConsole(driver.ConsoleMessage{Type: "log", Text: "x"})
				_ = r.target.Console.Snapshot()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, r.target.Console.Len())
}

func TestResponseBodyIsReadAfterDelivery(t *testing.T) {
	bc, r := attach(t, DefaultOptions())
	bc.BodyReadsAfterDelivery = true

	bc.EmitRequest(driver.Request{Method: "POST", URL: "https://example.com/api/login"})
	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		bc.EmitResponse(driver.Response{
			Request:  driver.Request{Method: "POST", URL: "https://example.com/api/login"},
			URL:      "https://example.com/api/login",
			Status:   200,
			Headers:  map[string]string{"content-type": "application/json"},
			ReadBody: func() ([]byte, error) { return []byte(`{"token":"t"}`), nil },
		})
		bc.EmitRequest(driver.Request{Method: "GET", URL: "https://example.com/next"})
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("response listener blocked event delivery")
	}

	entries := r.target.Network.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, DirectionRequest, entries[0].Direction)
	assert.Equal(t, DirectionResponse, entries[1].Direction)
	assert.Equal(t, `{"token":"t"}`, entries[1].Body)
	assert.Equal(t, "https://example.com/next", entries[2].URL)
}

func TestResponseBodyReadTimeout(t *testing.T) {
	prev := BodyReadTimeout
	BodyReadTimeout = 20 * time.Millisecond
	t.Cleanup(func() { BodyReadTimeout = prev })

	bc, r := attach(t, DefaultOptions())
	release := make(chan struct{})
	defer close(release)

	bc.EmitResponse(driver.Response{
		Request: driver.Request{Method: "GET", URL: "https://example.com/api/slow"},
		URL:     "https://example.com/api/slow",
		Status:  200,
		ReadBody: func() ([]byte, error) {
			<-release
			return nil, nil
		},
	})

	entries := r.target.Network.Snapshot()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Body, "[Error reading response: timed out")
}
