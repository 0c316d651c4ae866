package requery

import (
	"sync"
	"time"
)

// queryCache maps canonical keys to entries. A single mutex serializes map
// mutations; entry state has its own lock.
type queryCache struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

func newQueryCache() *queryCache {
	return &queryCache{
		entries: make(map[Key]*entry),
	}
}

// getOrCreate returns the entry for key, creating and seeding it if absent.
// created reports whether a new entry was made.
func (qc *queryCache) getOrCreate(key Key, opts QueryOptions, staleTime, cacheTime time.Duration, clock func() time.Time, metrics *MetricsCollector) (e *entry, created bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if e, ok := qc.entries[key]; ok {
		return e, false
	}
	e = newEntry(key, opts, staleTime, cacheTime, clock, metrics)
	qc.entries[key] = e
	return e, true
}

func (qc *queryCache) get(key Key) (*entry, bool) {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e, ok := qc.entries[key]
	return e, ok
}

// remove deletes the entry for key and returns it, or nil if absent. The
// caller is responsible for cancelling any flight or interval timers tied to
// the returned entry.
func (qc *queryCache) remove(key Key) *entry {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	e := qc.entries[key]
	delete(qc.entries, key)
	return e
}

// attach registers the observer on the entry while the map lock guarantees
// the entry is still the live one for key. Returns false if the entry was
// evicted or replaced since the caller obtained it; the caller must look the
// entry up again. Lock order (map, then entry) matches the sweeper's
// re-check, so a successful attach can never race an eviction.
func (qc *queryCache) attach(key Key, e *entry, o *Observer, fetchFn FetchFunc, opts QueryOptions, staleTime time.Duration) bool {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	if qc.entries[key] != e {
		return false
	}
	e.register(o, fetchFn, opts, staleTime)
	return true
}

// holds reports whether key still maps to exactly this entry. Used by the
// coordinator so a finished flight never writes into a removed or recreated
// entry.
func (qc *queryCache) holds(key Key, e *entry) bool {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return qc.entries[key] == e
}

// sweep removes entries whose garbage-collection window has elapsed and
// returns them for teardown.
func (qc *queryCache) sweep(now time.Time) []*entry {
	qc.mu.Lock()
	candidates := make([]*entry, 0, len(qc.entries))
	for _, e := range qc.entries {
		candidates = append(candidates, e)
	}
	qc.mu.Unlock()

	var evicted []*entry
	for _, e := range candidates {
		if !e.gcEligible(now) {
			continue
		}
		qc.mu.Lock()
		// Re-check under the map lock; a subscriber may have raced in.
		if qc.entries[e.key] == e && e.gcEligible(now) {
			delete(qc.entries, e.key)
			evicted = append(evicted, e)
		}
		qc.mu.Unlock()
	}
	return evicted
}

// all returns the current entries.
func (qc *queryCache) all() []*entry {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	out := make([]*entry, 0, len(qc.entries))
	for _, e := range qc.entries {
		out = append(out, e)
	}
	return out
}

// drain empties the cache and returns every entry for teardown.
func (qc *queryCache) drain() []*entry {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	out := make([]*entry, 0, len(qc.entries))
	for _, e := range qc.entries {
		out = append(out, e)
	}
	qc.entries = make(map[Key]*entry)
	return out
}

func (qc *queryCache) len() int {
	qc.mu.Lock()
	defer qc.mu.Unlock()
	return len(qc.entries)
}
