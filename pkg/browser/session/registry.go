// Package session owns the browser sessions of a process.
//
// The Registry creates sessions, wires event capture and the rule engine to
// them, hands them out by id and tears them down. Logs, rules and downloads
// are owned by their session and disappear with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/entrhq/browserd/pkg/browser/capture"
	"github.com/entrhq/browserd/pkg/browser/download"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/intercept"
	"github.com/entrhq/browserd/pkg/logging"
)

var (
	// ErrSessionNotFound is returned for ids with no live session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRegistryClosed is returned once CloseAll ran.
	ErrRegistryClosed = errors.New("session registry closed")

	// ErrTooManySessions is returned when MaxSessions live sessions exist.
	ErrTooManySessions = errors.New("maximum number of sessions reached")
)

const (
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 10
	DefaultActionTimeout  = 30 * time.Second
)

// Options configures a Registry.
type Options struct {
	Viewport driver.Viewport
	// DownloadDir is the parent of the per-session download directories.
	DownloadDir string
	Capture     capture.Options
	// MaxSessions bounds live sessions; zero or less means no bound.
	MaxSessions int
	// ActionTimeout is the default timeout for page actions.
	ActionTimeout time.Duration
}

// DefaultOptions returns the options used for unset fields.
func DefaultOptions() Options {
	return Options{
		Viewport:      driver.Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		DownloadDir:   filepath.Join(os.TempDir(), "browserd", "downloads"),
		Capture:       capture.DefaultOptions(),
		MaxSessions:   DefaultMaxSessions,
		ActionTimeout: DefaultActionTimeout,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = d.Viewport
	}
	if o.DownloadDir == "" {
		o.DownloadDir = d.DownloadDir
	}
	if o.Capture == (capture.Options{}) {
		o.Capture = d.Capture
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = d.ActionTimeout
	}
	return o
}

// Registry owns every live session and the shared driver.
type Registry struct {
	driver driver.Driver
	opts   Options
	logger *logging.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	// opening counts creations that passed the MaxSessions check but are
	// not registered yet.
	opening int
	closed  bool

	gen       atomic.Uint64
	closeOnce sync.Once
}

var _ capture.Resolver = (*Registry)(nil)

// NewRegistry creates an empty registry launching browsers through d.
func NewRegistry(d driver.Driver, opts Options, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		driver:   d,
		opts:     opts.withDefaults(),
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Options returns the effective registry options.
func (r *Registry) Options() Options {
	return r.opts
}

// CreateSession launches a browser of the given kind and registers a new
// session under id. A live session with the same id is torn down first;
// failures of that teardown are logged and never fail the creation.
func (r *Registry) CreateSession(ctx context.Context, id, kind string, headless bool) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	k, err := driver.ParseKind(kind)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	old := r.sessions[id]
	delete(r.sessions, id)
	full := r.opts.MaxSessions > 0 && len(r.sessions)+r.opening >= r.opts.MaxSessions
	if !full {
		r.opening++
	}
	r.mu.Unlock()

	if old != nil {
		r.logger.Infof("replacing session %s", id)
		r.logReport(teardown(old))
	}
	if full {
		return nil, fmt.Errorf("%w (%d)", ErrTooManySessions, r.opts.MaxSessions)
	}

	s, err := r.open(ctx, id, k, headless)

	r.mu.Lock()
	r.opening--
	r.mu.Unlock()

	if err != nil {
		r.logger.Errorf("failed to create session %s (%s): %v", id, k, err)
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logReport(teardown(s))
		return nil, ErrRegistryClosed
	}
	// a concurrent create for the same id may have registered first
	prev := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()

	if prev != nil {
		r.logReport(teardown(prev))
	}
	r.logger.Infof("session %s created (%s, headless=%t)", id, k, headless)
	return s, nil
}

// open launches the browser, context and first page of a new session and
// wires capture and rules to them. Partially acquired resources are
// released on failure.
func (r *Registry) open(ctx context.Context, id string, kind driver.Kind, headless bool) (*Session, error) {
	browser, err := r.driver.Launch(ctx, kind, headless)
	if err != nil {
		return nil, driver.Wrap("launch", err)
	}

	bc, err := browser.NewContext(driver.ContextOptions{Viewport: r.opts.Viewport, AcceptDownloads: true})
	if err != nil {
		_ = browser.Close()
		return nil, driver.Wrap("new context", err)
	}

	gen := r.gen.Add(1)
	logger := r.logger.With(id)
	s := &Session{
		ID:        id,
		Kind:      kind,
		Headless:  headless,
		CreatedAt: time.Now(),
		Console:   &capture.ConsoleLog{},
		Network:   &capture.NetworkLog{},
		Downloads: download.NewTracker(id, r.opts.DownloadDir, logger),
		gen:       gen,
		browser:   browser,
		context:   bc,
	}
	s.Rules = intercept.New(id, r.consoleRecorder(id, gen), logger)

	capture.Attach(bc, id, gen, r, r.opts.Capture, logger)

	page, err := bc.NewPage()
	if err != nil {
		r.logReport(teardown(s))
		return nil, driver.Wrap("new page", err)
	}
	s.pages = []driver.Page{page}

	if err := s.Rules.Attach(page); err != nil {
		r.logReport(teardown(s))
		return nil, err
	}
	return s, nil
}

// consoleRecorder appends synthetic entries to the console log of the
// session currently registered under id, if it is still generation gen.
func (r *Registry) consoleRecorder(id string, gen uint64) intercept.ConsoleRecorder {
	return func(e capture.ConsoleEntry) {
		if t, ok := r.Resolve(id, gen); ok {
			t.Console.Append(e)
		}
	}
}

// Resolve implements capture.Resolver.
func (r *Registry) Resolve(id string, gen uint64) (capture.Target, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.gen != gen || s.isClosed() {
		return capture.Target{}, false
	}
	return capture.Target{Console: s.Console, Network: s.Network}, true
}

// GetSession returns the live session registered under id.
func (r *Registry) GetSession(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Session is GetSession returning ErrSessionNotFound for unknown ids.
func (r *Registry) Session(id string) (*Session, error) {
	s, ok := r.GetSession(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s, nil
}

// Describe summarizes s, including the current number of live sessions.
func (r *Registry) Describe(s *Session) Description {
	d := s.describe()
	d.ActiveSessions = r.Count()
	return d
}

// List describes every live session, ordered by id.
func (r *Registry) List() []Description {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	count := len(r.sessions)
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	out := make([]Description, 0, len(sessions))
	for _, s := range sessions {
		d := s.describe()
		d.ActiveSessions = count
		out = append(out, d)
	}
	return out
}

// CloseSession tears down the session registered under id and removes it.
// Release failures are logged, not returned. It reports whether a session
// was registered under id.
func (r *Registry) CloseSession(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.logReport(teardown(s))
	return true
}

// CloseAll tears down every session concurrently, then releases the shared
// driver. Calls after the first are no-ops.
func (r *Registry) CloseAll() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		sessions := make([]*Session, 0, len(r.sessions))
		for _, s := range r.sessions {
			sessions = append(sessions, s)
		}
		r.sessions = make(map[string]*Session)
		r.mu.Unlock()

		var g errgroup.Group
		g.SetLimit(8)
		for _, s := range sessions {
			g.Go(func() error {
				r.logReport(teardown(s))
				return nil
			})
		}
		_ = g.Wait()

		if cerr := r.driver.Close(); cerr != nil {
			err = driver.Wrap("close", cerr)
			r.logger.Errorf("failed to release driver: %v", cerr)
		}
		r.logger.Infof("closed %d sessions", len(sessions))
	})
	return err
}

// ListActiveIDs returns the ids of the live sessions in order.
func (r *Registry) ListActiveIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) logReport(rep TeardownReport) {
	if rep.OK() {
		r.logger.Debugf("%s", rep)
		return
	}
	r.logger.Warnf("%s", rep)
}
