package requery

import (
	"sync"
	"time"
)

// entry is the cached state machine for one Key. All fields are guarded by
// mu. Snapshots are broadcast through a pending queue drained outside the
// lock, so per-entry delivery order matches mutation order and subscriber
// callbacks may safely re-enter the client.
type entry struct {
	key Key

	mu              sync.Mutex
	status          Status
	data            any
	hasData         bool
	err             error
	dataUpdatedAt   time.Time
	errorUpdatedAt  time.Time
	dataUpdateCount int
	failureCount    int
	isFetching      bool
	invalidated     bool

	staleTime time.Duration
	cacheTime time.Duration

	// Latest fetch function and options; invalidation- and interval-triggered
	// refetches use these.
	fetchFn FetchFunc
	opts    QueryOptions

	subscribers        map[*Observer]struct{}
	lastUnsubscribedAt time.Time

	intervalStop chan struct{}

	pending    []notification
	delivering bool

	clock   func() time.Time
	metrics *MetricsCollector
}

type notification struct {
	snap    Snapshot
	targets []*Observer
}

func newEntry(key Key, opts QueryOptions, staleTime, cacheTime time.Duration, clock func() time.Time, metrics *MetricsCollector) *entry {
	now := clock()
	e := &entry{
		key:         key,
		status:      StatusIdle,
		staleTime:   staleTime,
		cacheTime:   cacheTime,
		opts:        opts,
		subscribers: make(map[*Observer]struct{}),
		// Entries created without a subscriber (priming, hydration) become
		// GC-eligible from birth.
		lastUnsubscribedAt: now,
		clock:              clock,
		metrics:            metrics,
	}
	if opts.InitialData != nil {
		e.status = StatusSuccess
		e.data = opts.InitialData
		e.hasData = true
		e.dataUpdatedAt = now
		if !opts.InitialUpdatedAt.IsZero() {
			e.dataUpdatedAt = opts.InitialUpdatedAt
		}
	}
	return e
}

func (e *entry) snapshotLocked(now time.Time) Snapshot {
	return Snapshot{
		Key:             e.key,
		Status:          e.status,
		Data:            e.data,
		Error:           e.err,
		DataUpdatedAt:   e.dataUpdatedAt,
		ErrorUpdatedAt:  e.errorUpdatedAt,
		DataUpdateCount: e.dataUpdateCount,
		FailureCount:    e.failureCount,
		IsFetching:      e.isFetching,
		IsLoading:       e.status == StatusLoading && !e.hasData,
		IsSuccess:       e.status == StatusSuccess,
		IsError:         e.status == StatusError,
		IsStale:         e.isStaleLocked(now),
		IsRefetching:    e.isFetching && e.dataUpdateCount > 0,
	}
}

// Snapshot returns the entry's current state.
func (e *entry) snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(e.clock())
}

func (e *entry) isStaleLocked(now time.Time) bool {
	if e.invalidated {
		return true
	}
	if e.dataUpdatedAt.IsZero() {
		return true
	}
	if e.staleTime == StaleForever {
		return false
	}
	return now.Sub(e.dataUpdatedAt) > e.staleTime
}

func (e *entry) isStale() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isStaleLocked(e.clock())
}

// broadcastLocked queues the current snapshot for all subscribers and drains
// the queue. e.mu must be held; it is released and reacquired during
// delivery and is held again on return.
func (e *entry) broadcastLocked(now time.Time) {
	if len(e.subscribers) > 0 {
		targets := make([]*Observer, 0, len(e.subscribers))
		for o := range e.subscribers {
			targets = append(targets, o)
		}
		e.pending = append(e.pending, notification{snap: e.snapshotLocked(now), targets: targets})
	}
	e.drainLocked()
}

// notifyOneLocked delivers the current snapshot to a single observer,
// preserving queue order relative to concurrent broadcasts.
func (e *entry) notifyOneLocked(o *Observer, now time.Time) {
	e.pending = append(e.pending, notification{snap: e.snapshotLocked(now), targets: []*Observer{o}})
	e.drainLocked()
}

// drainLocked delivers queued notifications in order. Reentrant mutations
// from callbacks append to the queue and are delivered by the outermost
// draining frame.
func (e *entry) drainLocked() {
	if e.delivering {
		return
	}
	e.delivering = true
	for len(e.pending) > 0 {
		n := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()
		for _, o := range n.targets {
			if o.active() {
				o.callback(n.snap)
				e.metrics.RecordSnapshot()
			}
		}
		e.mu.Lock()
	}
	e.delivering = false
}

// beginFetch flips the entry into the loading state. Called by the
// coordinator exactly once per flight.
func (e *entry) beginFetch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isFetching = true
	e.status = StatusLoading
	e.broadcastLocked(e.clock())
}

// recordFailure bumps the failure counter for a retried attempt. isFetching
// stays true so background-refresh indicators survive retries.
func (e *entry) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	e.failureCount++
	e.errorUpdatedAt = now
	e.broadcastLocked(now)
}

func (e *entry) completeSuccess(data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	e.data = data
	e.hasData = true
	e.status = StatusSuccess
	e.err = nil
	e.failureCount = 0
	e.dataUpdateCount++
	e.dataUpdatedAt = now
	e.isFetching = false
	e.invalidated = false
	e.broadcastLocked(now)
}

func (e *entry) completeError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	e.status = StatusError
	e.err = err
	e.errorUpdatedAt = now
	e.isFetching = false
	e.broadcastLocked(now)
}

// fetchAborted unwinds the loading state when a flight ends without a result
// (client shutdown). The previous data, if any, remains visible.
func (e *entry) fetchAborted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isFetching = false
	if e.hasData {
		e.status = StatusSuccess
	} else if e.status == StatusLoading {
		e.status = StatusIdle
	}
	e.broadcastLocked(e.clock())
}

// setData applies an explicit cache write (optimistic update, priming).
func (e *entry) setData(value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	e.data = value
	e.hasData = true
	e.status = StatusSuccess
	e.err = nil
	e.dataUpdateCount++
	e.dataUpdatedAt = now
	e.invalidated = false
	e.broadcastLocked(now)
}

// invalidate marks the entry stale without clearing its data.
func (e *entry) invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invalidated = true
	e.broadcastLocked(e.clock())
}

// register adds an observer to the subscriber set without notifying it.
// Callers deliver the initial snapshot separately via notifySubscriber, so
// register stays safe to call under the cache map lock.
func (e *entry) register(o *Observer, fetchFn FetchFunc, opts QueryOptions, staleTime time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers[o] = struct{}{}
	e.lastUnsubscribedAt = time.Time{}
	// Latest subscription wins for refetch plumbing and freshness windows.
	e.fetchFn = fetchFn
	e.opts = opts
	e.staleTime = staleTime
}

// notifySubscriber synchronously delivers the current snapshot to one
// observer.
func (e *entry) notifySubscriber(o *Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifyOneLocked(o, e.clock())
}

// removeSubscriber detaches an observer. Returns the remaining count; at zero
// the entry starts its garbage-collection window.
func (e *entry) removeSubscriber(o *Observer) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subscribers, o)
	n := len(e.subscribers)
	if n == 0 {
		e.lastUnsubscribedAt = e.clock()
	}
	return n
}

func (e *entry) subscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subscribers)
}

// gcEligibleLocked reports whether the entry has been unsubscribed for longer
// than its cache time.
func (e *entry) gcEligible(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.subscribers) > 0 || e.lastUnsubscribedAt.IsZero() {
		return false
	}
	if e.cacheTime == CacheForever {
		return false
	}
	return now.Sub(e.lastUnsubscribedAt) > e.cacheTime
}

// refetchTarget returns what an invalidation- or interval-triggered refetch
// needs: the latest fetch function and options, and whether automatic
// fetching is currently allowed.
func (e *entry) refetchTarget() (FetchFunc, QueryOptions, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.fetchFn != nil && !e.opts.Disabled && len(e.subscribers) > 0
	return e.fetchFn, e.opts, ok
}
