// Package scheduler rate-limits how often each live query is actually
// re-executed: at most once per MinInterval, with at most one pending timer
// per query at any time.
//
// Two invalidation policies are supported:
//   - coalesce-silently: an invalidation arriving while a query is already
//     queued is absorbed into the pending flush; no extra work happens.
//   - checkConditionWhenQueued: an invalidation arriving while queued still
//     re-evaluates the trigger predicate immediately (the caller does this
//     before calling Notify), and the flush still only happens once.
//
// The queued/flushing state itself is policy-agnostic: both policies feed
// Notify calls, Scheduler only decides whether a call becomes an immediate
// flush or waits for a pending timer. The policy distinction lives in what
// the caller does with the predicate result before calling Notify; this
// type only implements the queue/timer mechanics.
package scheduler

import (
	"sync"
	"time"
)

// FlushFunc is invoked, at most once per scheduled flush, to actually
// re-execute and re-diff a query. It is called either on the goroutine that
// called Notify (immediate flush) or on a time.AfterFunc timer goroutine
// (deferred flush), so it must be safe to call from either.
type FlushFunc func(queryID string)

// queryState tracks one query's rate-limit window.
type queryState struct {
	lastFlush time.Time
	queued    bool
	timer     *time.Timer
}

// Scheduler owns one rate-limit window per query ID.
type Scheduler struct {
	mu          sync.Mutex
	minInterval time.Duration
	flush       FlushFunc
	states      map[string]*queryState
}

// New returns a Scheduler that enforces minInterval between flushes of any
// one query, invoking flush (at most once per queue-drain) when a query's
// turn comes.
func New(minInterval time.Duration, flush FlushFunc) *Scheduler {
	return &Scheduler{
		minInterval: minInterval,
		flush:       flush,
		states:      make(map[string]*queryState),
	}
}

// Notify records that queryID has been invalidated and should be
// re-executed, subject to the minimum-interval policy. If no flush is
// currently queued or pending for this query and the minimum interval has
// elapsed since the last flush, the flush runs immediately (synchronously,
// on the caller's goroutine: the executor calls Notify from its own single
// goroutine, so this preserves the cooperative single-threaded model).
// Otherwise a timer is armed (or already pending) for
// last-flush-time + minInterval, and any invalidation that arrives while
// that timer is pending is coalesced into the one eventual flush.
func (s *Scheduler) Notify(queryID string) {
	s.mu.Lock()
	st, ok := s.states[queryID]
	if !ok {
		st = &queryState{}
		s.states[queryID] = st
	}

	if st.timer != nil {
		// A flush is already scheduled; this invalidation is coalesced into
		// it. The pending flush runs after this call, so it already covers
		// the latest state.
		s.mu.Unlock()
		return
	}

	elapsed := time.Since(st.lastFlush)
	if st.lastFlush.IsZero() || elapsed >= s.minInterval {
		st.lastFlush = timeNow()
		s.mu.Unlock()
		s.flush(queryID)
		return
	}

	wait := s.minInterval - elapsed
	st.timer = time.AfterFunc(wait, func() { s.fire(queryID) })
	s.mu.Unlock()
}

// fire runs when a pending timer elapses: it clears the pending state
// before invoking flush, implementing the "atomic queue-clear-before-flush
// with re-queue-on-concurrent-invalidation" rule, so that any invalidation
// arriving during the flush itself (re-entrant Notify) schedules a fresh
// timer rather than being silently dropped.
func (s *Scheduler) fire(queryID string) {
	s.mu.Lock()
	st, ok := s.states[queryID]
	if !ok {
		s.mu.Unlock()
		return
	}
	st.timer = nil
	st.lastFlush = timeNow()
	s.mu.Unlock()

	s.flush(queryID)
}

// Pending reports whether queryID currently has a flush waiting on an armed
// timer; an immediate flush run inline by Notify is never reported as
// pending. dbhandle uses this to
// implement the checkConditionWhenQueued=false default: a query already
// known to be queued skips re-evaluating its trigger predicates against
// further invalidations in the same window, since Notify already coalesces
// the eventual flush regardless of predicate outcome.
func (s *Scheduler) Pending(queryID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[queryID]
	return ok && st.timer != nil
}

// Cancel removes any pending timer for queryID, used when a query is
// stopped while a flush is still scheduled.
func (s *Scheduler) Cancel(queryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[queryID]
	if !ok {
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	delete(s.states, queryID)
}

// timeNow is a seam so tests can stub wall-clock time; production code
// always uses time.Now.
var timeNow = time.Now
