package session

import (
	"fmt"
	"strings"
)

// StepResult is the outcome of releasing one resource.
type StepResult struct {
	Step string
	Err  error
}

// TeardownReport aggregates the steps of a best-effort session teardown.
// A failed step never stops the steps after it.
type TeardownReport struct {
	SessionID string
	Steps     []StepResult
}

// OK reports whether every step succeeded.
func (r TeardownReport) OK() bool {
	return len(r.Failed()) == 0
}

// Failed returns the steps that returned an error.
func (r TeardownReport) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

func (r TeardownReport) String() string {
	failed := r.Failed()
	if len(failed) == 0 {
		return fmt.Sprintf("session %s: %d resources released", r.SessionID, len(r.Steps))
	}
	parts := make([]string, 0, len(failed))
	for _, s := range failed {
		parts = append(parts, fmt.Sprintf("%s: %v", s.Step, s.Err))
	}
	return fmt.Sprintf("session %s: %d of %d release steps failed (%s)",
		r.SessionID, len(failed), len(r.Steps), strings.Join(parts, "; "))
}

// run executes one release step, recording its error or panic.
func (r *TeardownReport) run(step string, fn func() error) {
	var err error
	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		err = fn()
	}()
	r.Steps = append(r.Steps, StepResult{Step: step, Err: err})
}

// teardown releases the pages, then the context, then the browser of s.
func teardown(s *Session) TeardownReport {
	report := TeardownReport{SessionID: s.ID}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return report
	}
	s.closed = true
	pages := s.pages
	s.pages = nil
	s.mu.Unlock()

	if s.Rules != nil {
		s.Rules.Close()
	}
	for i, p := range pages {
		report.run(fmt.Sprintf("page[%d]", i), p.Close)
	}
	if s.context != nil {
		report.run("context", s.context.Close)
	}
	if s.browser != nil {
		report.run("browser", s.browser.Close)
	}
	return report
}
