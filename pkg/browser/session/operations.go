package session

import (
	"context"

	"github.com/entrhq/browserd/pkg/browser/download"
	"github.com/entrhq/browserd/pkg/browser/driver"
	"github.com/entrhq/browserd/pkg/browser/intercept"
)

// NewPage opens another page in the session's context. Capture already
// covers it through the context; the session's rules are installed on it.
// It returns the page and its index.
func (r *Registry) NewPage(id string) (driver.Page, int, error) {
	s, err := r.Session(id)
	if err != nil {
		return nil, 0, err
	}

	// no session lock is held across driver calls
	if s.isClosed() {
		return nil, 0, ErrSessionNotFound
	}
	page, err := s.context.NewPage()
	if err != nil {
		return nil, 0, driver.Wrap("new page", err)
	}
	if err := s.Rules.Attach(page); err != nil {
		_ = page.Close()
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = page.Close()
		return nil, 0, ErrSessionNotFound
	}
	s.pages = append(s.pages, page)
	return page, len(s.pages) - 1, nil
}

// AddMockRule registers a mock rule on the session's pages.
func (r *Registry) AddMockRule(id string, spec intercept.MockSpec) (intercept.MockRule, error) {
	s, err := r.Session(id)
	if err != nil {
		return intercept.MockRule{}, err
	}
	return s.Rules.AddMockRule(spec)
}

// AddInterceptRule registers an intercept rule on the session's pages.
func (r *Registry) AddInterceptRule(id string, spec intercept.InterceptSpec) (intercept.InterceptRule, error) {
	s, err := r.Session(id)
	if err != nil {
		return intercept.InterceptRule{}, err
	}
	return s.Rules.AddInterceptRule(spec)
}

// ListMockRules returns the session's mock rules.
func (r *Registry) ListMockRules(id string) ([]intercept.MockRule, error) {
	s, err := r.Session(id)
	if err != nil {
		return nil, err
	}
	return s.Rules.ListMockRules(), nil
}

// ListInterceptRules returns the session's intercept rules.
func (r *Registry) ListInterceptRules(id string) ([]intercept.InterceptRule, error) {
	s, err := r.Session(id)
	if err != nil {
		return nil, err
	}
	return s.Rules.ListInterceptRules(), nil
}

// DeactivateRule turns off a mock or intercept rule of the session.
func (r *Registry) DeactivateRule(id, ruleID string) (bool, error) {
	s, err := r.Session(id)
	if err != nil {
		return false, err
	}
	return s.Rules.Deactivate(ruleID), nil
}

// AwaitTriggeredDownload clicks a download trigger on the session's current
// page and waits for the download.
func (r *Registry) AwaitTriggeredDownload(ctx context.Context, id string, req download.Request) (download.Info, error) {
	s, err := r.Session(id)
	if err != nil {
		return download.Info{}, err
	}
	page := s.Page()
	if page == nil {
		return download.Info{}, ErrSessionNotFound
	}
	return s.Downloads.AwaitTriggeredDownload(ctx, page, req)
}

// CleanupDownloads removes one download record (or all when downloadID is
// empty) from the session, optionally deleting files.
func (r *Registry) CleanupDownloads(id, downloadID string, deleteFiles bool) (download.CleanupResult, error) {
	s, err := r.Session(id)
	if err != nil {
		return download.CleanupResult{}, err
	}
	return s.Downloads.CleanupDownloads(downloadID, deleteFiles), nil
}
