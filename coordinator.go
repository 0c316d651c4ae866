package requery

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// flight is one in-flight fetch for a Key. At most one exists per key at any
// time; concurrent requesters attach as waiters and share its outcome.
type flight struct {
	key   Key
	entry *entry

	done       chan struct{}
	cancel     chan struct{}
	cancelOnce sync.Once

	// Set before done is closed.
	data any
	err  error
}

// wait blocks until the flight completes or ctx is cancelled.
func (f *flight) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *flight) abort() {
	f.cancelOnce.Do(func() {
		close(f.cancel)
	})
}

// fetchCoordinator owns fetch deduplication and retry scheduling. Entry data
// fields are mutated only through flights, so no two fetches ever touch the
// same entry concurrently.
type fetchCoordinator struct {
	client *Client

	mu      sync.Mutex
	flights map[Key]*flight
}

func newFetchCoordinator(c *Client) *fetchCoordinator {
	return &fetchCoordinator{
		client:  c,
		flights: make(map[Key]*flight),
	}
}

// claim returns the running flight for the entry, or registers a fresh one.
// started reports whether the caller now owns a new flight and must launch
// it. A leftover flight for a removed entry at the same key is superseded.
func (fc *fetchCoordinator) claim(e *entry) (f *flight, started bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if f, ok := fc.flights[e.key]; ok && f.entry == e {
		return f, false
	}
	f = &flight{
		key:    e.key,
		entry:  e,
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
	fc.flights[e.key] = f
	return f, true
}

func (fc *fetchCoordinator) launch(f *flight, fetchFn FetchFunc, opts QueryOptions) {
	c := fc.client
	f.entry.beginFetch()
	c.metrics.RecordFetchStart()
	if c.debug != nil && c.debug.Enabled && c.debug.LogFetches && c.logger != nil {
		c.logger.Debug("Starting fetch", "key", f.key.String())
	}
	go fc.run(f, fetchFn, opts)
}

// ensureFetch starts a fetch for the entry unless one is already in flight,
// in which case the existing flight is returned (single-flight). Idempotent
// and fire-and-forget for callers that do not wait.
func (fc *fetchCoordinator) ensureFetch(e *entry, fetchFn FetchFunc, opts QueryOptions) *flight {
	c := fc.client
	f, started := fc.claim(e)
	if !started {
		c.metrics.RecordDedupHit()
		if c.debug != nil && c.debug.Enabled && c.debug.LogFetches && c.logger != nil {
			c.logger.Debug("Attached to in-flight fetch", "key", e.key.String())
		}
		return f
	}
	fc.launch(f, fetchFn, opts)
	return f
}

// refetch always runs a fetch for the entry regardless of freshness, joining
// a currently-running flight if one exists, and returns that flight's
// outcome.
func (fc *fetchCoordinator) refetch(ctx context.Context, e *entry, fetchFn FetchFunc, opts QueryOptions) (any, error) {
	f := fc.ensureFetch(e, fetchFn, opts)
	return f.wait(ctx)
}

// tryFetch starts a fetch only if none is running for the entry. The bool
// reports whether a new flight was started.
func (fc *fetchCoordinator) tryFetch(e *entry, fetchFn FetchFunc, opts QueryOptions) (*flight, bool) {
	f, started := fc.claim(e)
	if started {
		fc.launch(f, fetchFn, opts)
	}
	return f, started
}

func (fc *fetchCoordinator) run(f *flight, fetchFn FetchFunc, opts QueryOptions) {
	c := fc.client
	start := time.Now()
	failures := 0

	for {
		data, err := fetchFn(c.baseCtx, f.key)
		if err == nil {
			fc.finish(f, data, nil, start)
			return
		}
		if c.baseCtx.Err() != nil {
			fc.abandon(f)
			return
		}

		failures++
		f.entry.recordFailure()
		c.metrics.RecordError(ErrorTypeFetch)

		delay, retry := c.retryDecision(opts, err, failures)
		if !retry {
			qerr := &QueryError{
				Type:       ErrorTypeFetch,
				Message:    "fetch failed",
				Key:        f.key,
				Attempt:    failures,
				MaxRetries: c.effectiveRetries(opts),
				Timestamp:  time.Now(),
				Duration:   time.Since(start),
				Cause:      fmt.Errorf("%w: %w", ErrRetriesExhausted, err),
			}
			fc.finish(f, nil, qerr, start)
			return
		}

		c.metrics.RecordRetry(failures)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "key", f.key.String(), "failures", failures, "backoff", delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-f.cancel:
			timer.Stop()
			fc.abandon(f)
			return
		case <-c.baseCtx.Done():
			timer.Stop()
			fc.abandon(f)
			return
		}
	}
}

// finish applies the flight's outcome to its entry, unless the entry has been
// removed or replaced in the meantime, and releases waiters. A result against
// a missing entry is silently discarded; waiters see a cancellation error.
func (fc *fetchCoordinator) finish(f *flight, data any, err error, start time.Time) {
	c := fc.client

	fc.mu.Lock()
	if fc.flights[f.key] == f {
		delete(fc.flights, f.key)
	}
	fc.mu.Unlock()

	applied := c.cache.holds(f.key, f.entry)
	if applied {
		if err == nil {
			f.entry.completeSuccess(data)
		} else {
			f.entry.completeError(err)
			c.metrics.RecordError(ErrorTypeFetch)
		}
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	c.metrics.RecordFetch(result, time.Since(start))

	if applied {
		f.data, f.err = data, err
	} else {
		f.data = nil
		f.err = &QueryError{
			Type:      ErrorTypeCancelled,
			Message:   "entry removed before fetch completed",
			Key:       f.key,
			Timestamp: time.Now(),
			Cause:     ErrEntryRemoved,
		}
	}
	close(f.done)
}

// abandon ends a flight without a result (entry removed mid-retry or client
// shutdown). Retry timers are already stopped by the caller's select.
func (fc *fetchCoordinator) abandon(f *flight) {
	c := fc.client

	fc.mu.Lock()
	if fc.flights[f.key] == f {
		delete(fc.flights, f.key)
	}
	fc.mu.Unlock()

	if c.cache.holds(f.key, f.entry) {
		f.entry.fetchAborted()
	}
	c.metrics.RecordFetch("cancelled", 0)

	f.data = nil
	f.err = &QueryError{
		Type:      ErrorTypeCancelled,
		Message:   "fetch cancelled",
		Key:       f.key,
		Timestamp: time.Now(),
		Cause:     ErrEntryRemoved,
	}
	close(f.done)
}

// cancelFor aborts the flight tied to this entry, if any. In-flight fetch
// functions run to completion but their result application becomes a no-op;
// pending retry timers stop immediately.
func (fc *fetchCoordinator) cancelFor(e *entry) {
	fc.mu.Lock()
	f := fc.flights[e.key]
	fc.mu.Unlock()
	if f != nil && f.entry == e {
		f.abort()
	}
}
