package capture

import (
	"slices"
	"sync"
)

// Log is an append-ordered, concurrency-safe entry list. Appends come from
// the driver's event goroutine while callers read snapshots.
//
// An entry appended with AppendDeferred keeps its position but is completed
// later, off the event goroutine. Reads wait until every deferred entry is
// complete, so callers never observe a half-filled entry.
type Log[T any] struct {
	mu      sync.Mutex
	entries []T
	// epoch changes on Clear so late completions of dropped entries are
	// discarded.
	epoch   uint64
	pending int
	settled *sync.Cond
}

// ConsoleLog holds a session's console entries.
type ConsoleLog = Log[ConsoleEntry]

// NetworkLog holds a session's network entries.
type NetworkLog = Log[NetworkEntry]

// Append adds e at the end of the log.
func (l *Log[T]) Append(e T) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// AppendDeferred adds e at the end of the log and returns the function that
// completes it. complete must be called exactly once; update may be nil.
func (l *Log[T]) AppendDeferred(e T) (complete func(update func(*T))) {
	l.mu.Lock()
	idx := len(l.entries)
	epoch := l.epoch
	l.entries = append(l.entries, e)
	l.pending++
	l.mu.Unlock()

	var once sync.Once
	return func(update func(*T)) {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if update != nil && epoch == l.epoch && idx < len(l.entries) {
				update(&l.entries[idx])
			}
			l.pending--
			if l.settled != nil {
				l.settled.Broadcast()
			}
		})
	}
}

// waitLocked blocks until no deferred entry is outstanding. l.mu is held.
func (l *Log[T]) waitLocked() {
	for l.pending > 0 {
		if l.settled == nil {
			l.settled = sync.NewCond(&l.mu)
		}
		l.settled.Wait()
	}
}

// Snapshot returns a copy of the entries in append order.
func (l *Log[T]) Snapshot() []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitLocked()
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear drops every entry and returns how many there were.
func (l *Log[T]) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	l.entries = nil
	l.epoch++
	return n
}

// Filter returns the last limit entries accepted by keep, in append order.
// A nil keep accepts everything; limit <= 0 means no limit.
func (l *Log[T]) Filter(keep func(T) bool, limit int) []T {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waitLocked()

	var out []T
	for i := len(l.entries) - 1; i >= 0; i-- {
		if keep != nil && !keep(l.entries[i]) {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	slices.Reverse(out)
	return out
}
