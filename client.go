package requery

import (
	"context"
	"sync/atomic"
	"time"

	internalbackoff "github.com/requery-go/requery/internal/backoff"
)

// Client is the process-wide query cache façade. It owns the entry map, the
// fetch coordinator and the garbage collector, and is safe for concurrent
// use. Construct one at startup and Close it at shutdown; there is no
// ambient global instance.
type Client struct {
	cache       *queryCache
	coordinator *fetchCoordinator

	defaultStaleTime time.Duration
	defaultCacheTime time.Duration

	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoffStrategy   internalbackoff.Strategy
	retryPolicy       RetryPolicy

	gcInterval time.Duration

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger
	clock   func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	gcStop     chan struct{}
	gcDone     chan struct{}
	closed     atomic.Bool

	validationError error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		cache:             newQueryCache(),
		defaultStaleTime:  0,
		defaultCacheTime:  5 * time.Minute,
		maxRetries:        3,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        10 * time.Second,
		backoffMultiplier: 2.0,
		jitter:            0.1,
		backoffStrategy:   internalbackoff.ExponentialJitterStrategy{},
		gcInterval:        30 * time.Second,
		debug:             DefaultDebugConfig(),
		clock:             time.Now,
	}

	for _, option := range options {
		option(client)
	}

	client.coordinator = newFetchCoordinator(client)
	client.baseCtx, client.baseCancel = context.WithCancel(context.Background())

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	client.gcStop = make(chan struct{})
	client.gcDone = make(chan struct{})
	if client.gcInterval > 0 {
		go client.gcLoop()
	} else {
		close(client.gcDone)
	}

	return client
}

// Observer binds one subscriber to one query entry. Obtain via Subscribe.
type Observer struct {
	client   *Client
	key      Key
	fetchFn  FetchFunc
	opts     QueryOptions
	callback SubscriberFunc
	done     atomic.Bool
}

func (o *Observer) active() bool {
	return !o.done.Load()
}

// Key returns the observer's query key.
func (o *Observer) Key() Key {
	return o.key
}

// Snapshot returns the current state of the observed entry. The zero
// Snapshot is returned after the entry has been removed.
func (o *Observer) Snapshot() Snapshot {
	if e, ok := o.client.cache.get(o.key); ok {
		return e.snapshot()
	}
	return Snapshot{Key: o.key}
}

// Refetch forces a new fetch for the observed key regardless of freshness,
// deduplicating against a currently-running one, and returns that fetch's
// outcome. Works even when the query is Disabled.
func (o *Observer) Refetch(ctx context.Context) (any, error) {
	return o.client.Refetch(ctx, o.key, o.fetchFn, o.opts)
}

// Unsubscribe detaches the observer. The last unsubscribe starts the entry's
// garbage-collection window; an in-flight fetch is not cancelled.
func (o *Observer) Unsubscribe() {
	if o.done.Swap(true) {
		return
	}
	c := o.client
	c.metrics.RecordSubscribers(-1)
	e, ok := c.cache.get(o.key)
	if !ok {
		return
	}
	remaining := e.removeSubscriber(o)
	if c.debug != nil && c.debug.Enabled && c.debug.LogSubscriptions && c.logger != nil {
		c.logger.Debug("Unsubscribed", "key", o.key.String(), "remaining", remaining)
	}
	if remaining == 0 {
		c.stopInterval(e)
	}
}

// Subscribe attaches a subscriber to the entry for key, creating it if
// needed. The callback synchronously receives the entry's current snapshot,
// then every subsequent update in mutation order. If the entry is stale or
// empty and the query is enabled, a deduplicated background fetch starts.
func (c *Client) Subscribe(key Key, fetchFn FetchFunc, opts QueryOptions, callback SubscriberFunc) (*Observer, error) {
	if c.closed.Load() {
		return nil, &QueryError{Type: ErrorTypeClosed, Message: "subscribe on closed client", Key: key, Cause: ErrClosed}
	}
	if err := c.validationError; err != nil {
		return nil, err
	}
	if key.IsZero() {
		return nil, newConfigurationError("zero key", nil)
	}
	if callback == nil {
		return nil, newConfigurationError("nil subscriber callback", nil)
	}
	if err := validateQueryOptions(opts); err != nil {
		return nil, err
	}

	obs := &Observer{
		client:   c,
		key:      key,
		fetchFn:  fetchFn,
		opts:     opts,
		callback: callback,
	}

	// The sweeper may evict a zero-subscriber entry between lookup and
	// attach; attach re-checks identity under the map lock, so on failure
	// the lookup simply runs again.
	var e *entry
	for {
		var created bool
		e, created = c.cache.getOrCreate(key, opts, c.resolveStaleTime(opts), c.resolveCacheTime(opts), c.clock, c.metrics)
		if created {
			c.metrics.RecordCacheSize(c.cache.len())
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Entry created", "key", key.String(), "seeded", opts.InitialData != nil)
			}
		}
		if c.cache.attach(key, e, obs, fetchFn, opts, c.resolveStaleTime(opts)) {
			break
		}
	}
	e.notifySubscriber(obs)
	c.metrics.RecordSubscribers(1)
	if c.debug != nil && c.debug.Enabled && c.debug.LogSubscriptions && c.logger != nil {
		c.logger.Debug("Subscribed", "key", key.String())
	}

	if opts.RefetchInterval > 0 {
		c.startInterval(e, opts.RefetchInterval)
	}

	if !opts.Disabled && fetchFn != nil && e.isStale() {
		c.coordinator.ensureFetch(e, fetchFn, opts)
	}

	return obs, nil
}

// Refetch forces a fetch for key, creating the entry if absent. See
// Observer.Refetch.
func (c *Client) Refetch(ctx context.Context, key Key, fetchFn FetchFunc, opts QueryOptions) (any, error) {
	if c.closed.Load() {
		return nil, &QueryError{Type: ErrorTypeClosed, Message: "refetch on closed client", Key: key, Cause: ErrClosed}
	}
	if err := c.validationError; err != nil {
		return nil, err
	}
	if fetchFn == nil {
		return nil, newConfigurationError("nil fetch function", nil)
	}
	e, created := c.cache.getOrCreate(key, opts, c.resolveStaleTime(opts), c.resolveCacheTime(opts), c.clock, c.metrics)
	if created {
		c.metrics.RecordCacheSize(c.cache.len())
	}
	return c.coordinator.refetch(ctx, e, fetchFn, opts)
}

// TryRefetch is a non-blocking variant of Refetch: it starts a fetch only if
// none is running for key, and fails fast with ErrFetchInProgress otherwise.
func (c *Client) TryRefetch(ctx context.Context, key Key, fetchFn FetchFunc, opts QueryOptions) (any, error) {
	if c.closed.Load() {
		return nil, &QueryError{Type: ErrorTypeClosed, Message: "refetch on closed client", Key: key, Cause: ErrClosed}
	}
	if err := c.validationError; err != nil {
		return nil, err
	}
	if fetchFn == nil {
		return nil, newConfigurationError("nil fetch function", nil)
	}
	e, created := c.cache.getOrCreate(key, opts, c.resolveStaleTime(opts), c.resolveCacheTime(opts), c.clock, c.metrics)
	if created {
		c.metrics.RecordCacheSize(c.cache.len())
	}
	f, started := c.coordinator.tryFetch(e, fetchFn, opts)
	if !started {
		return nil, &QueryError{
			Type:      ErrorTypeFetch,
			Message:   "fetch already in progress",
			Key:       key,
			Timestamp: time.Now(),
			Cause:     ErrFetchInProgress,
		}
	}
	return f.wait(ctx)
}

// SetData writes value directly into the cache for key, creating the entry
// if absent. Intended for optimistic updates and cache priming; subscribers
// are notified synchronously.
func (c *Client) SetData(key Key, value any) {
	if c.closed.Load() || key.IsZero() {
		return
	}
	e, created := c.cache.getOrCreate(key, QueryOptions{}, c.defaultStaleTime, c.defaultCacheTime, c.clock, c.metrics)
	if created {
		c.metrics.RecordCacheSize(c.cache.len())
	}
	e.setData(value)
}

// GetData returns the cached data for key, if any successful value exists.
func (c *Client) GetData(key Key) (any, bool) {
	e, ok := c.cache.get(key)
	if !ok {
		return nil, false
	}
	snap := e.snapshot()
	if !snap.IsSuccess {
		return nil, false
	}
	return snap.Data, true
}

// GetSnapshot returns the current snapshot for key.
func (c *Client) GetSnapshot(key Key) (Snapshot, bool) {
	e, ok := c.cache.get(key)
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Invalidate marks the entry for key stale without clearing its data and
// triggers a background refetch if the entry has active subscribers and is
// enabled.
func (c *Client) Invalidate(key Key) {
	e, ok := c.cache.get(key)
	if !ok {
		return
	}
	c.invalidateEntry(e)
}

// InvalidateMatches invalidates every entry whose key satisfies the
// predicate.
func (c *Client) InvalidateMatches(pred InvalidatePredicate) {
	for _, e := range c.cache.all() {
		if pred(e.key) {
			c.invalidateEntry(e)
		}
	}
}

func (c *Client) invalidateEntry(e *entry) {
	e.invalidate()
	if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
		c.logger.Debug("Invalidated", "key", e.key.String())
	}
	if fetchFn, opts, ok := e.refetchTarget(); ok && !c.closed.Load() {
		c.coordinator.ensureFetch(e, fetchFn, opts)
	}
}

// Remove deletes the entry for key. Safe while a fetch is in flight: the
// fetch completes but its result is discarded. Removal is silent if the key
// is absent.
func (c *Client) Remove(key Key) {
	e := c.cache.remove(key)
	if e == nil {
		return
	}
	c.teardownEntry(e)
	c.metrics.RecordCacheSize(c.cache.len())
}

// Size returns the number of cached entries.
func (c *Client) Size() int {
	return c.cache.len()
}

// CollectGarbage removes entries that have had zero subscribers for longer
// than their cache time and returns how many were evicted. The periodic
// sweeper calls this; tests with an injected clock may call it directly.
func (c *Client) CollectGarbage() int {
	evicted := c.cache.sweep(c.clock())
	for _, e := range evicted {
		c.teardownEntry(e)
		c.metrics.RecordGCEviction()
		if c.debug != nil && c.debug.Enabled && c.debug.LogGC && c.logger != nil {
			c.logger.Debug("Entry collected", "key", e.key.String())
		}
	}
	if len(evicted) > 0 {
		c.metrics.RecordCacheSize(c.cache.len())
	}
	return len(evicted)
}

// Close tears down the client: the garbage collector stops, in-flight
// fetches are cancelled cooperatively and all entries are dropped.
// Subsequent Subscribe and Refetch calls fail with ErrClosed.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.gcStop)
	<-c.gcDone
	c.baseCancel()
	for _, e := range c.cache.drain() {
		c.teardownEntry(e)
	}
	c.metrics.RecordCacheSize(0)
}

// teardownEntry cancels the timers and flight tied to an entry that left the
// cache.
func (c *Client) teardownEntry(e *entry) {
	c.stopInterval(e)
	c.coordinator.cancelFor(e)
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func (c *Client) gcLoop() {
	defer close(c.gcDone)
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.CollectGarbage()
		case <-c.gcStop:
			return
		}
	}
}

// startInterval begins periodic background refetching for an entry. A single
// ticker per entry; subsequent subscribers reuse it.
func (c *Client) startInterval(e *entry, interval time.Duration) {
	e.mu.Lock()
	if e.intervalStop != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.intervalStop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if c.closed.Load() {
					return
				}
				if fetchFn, opts, ok := e.refetchTarget(); ok {
					c.coordinator.ensureFetch(e, fetchFn, opts)
				}
			case <-stop:
				return
			case <-c.baseCtx.Done():
				return
			}
		}
	}()
}

func (c *Client) stopInterval(e *entry) {
	e.mu.Lock()
	stop := e.intervalStop
	e.intervalStop = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (c *Client) resolveCacheTime(opts QueryOptions) time.Duration {
	if opts.CacheTime != 0 {
		return opts.CacheTime
	}
	return c.defaultCacheTime
}

func (c *Client) resolveStaleTime(opts QueryOptions) time.Duration {
	if opts.StaleTime != 0 {
		return opts.StaleTime
	}
	return c.defaultStaleTime
}

// effectiveRetries resolves the per-query retry count against the client
// default.
func (c *Client) effectiveRetries(opts QueryOptions) int {
	switch {
	case opts.Retry == RetryNever:
		return 0
	case opts.Retry > 0:
		return opts.Retry
	default:
		return c.maxRetries
	}
}

// retryDecision decides whether a failed attempt is retried and after what
// delay, honoring per-query overrides before the client-level policy.
func (c *Client) retryDecision(opts QueryOptions, err error, failures int) (time.Duration, bool) {
	if opts.RetryIf != nil || opts.RetryDelay != nil || opts.Retry != 0 {
		var retry bool
		if opts.RetryIf != nil {
			retry = opts.RetryIf(failures, err)
		} else {
			retry = failures <= c.effectiveRetries(opts)
		}
		if !retry {
			return 0, false
		}
		if opts.RetryDelay != nil {
			return opts.RetryDelay(failures), true
		}
		return c.backoffDelay(failures), true
	}
	if c.retryPolicy != nil {
		return c.retryPolicy.ShouldRetry(err, failures)
	}
	if failures > c.maxRetries {
		return 0, false
	}
	return c.backoffDelay(failures), true
}

func (c *Client) backoffDelay(failures int) time.Duration {
	return c.backoffStrategy.Calculate(failures-1, c.initialBackoff, c.maxBackoff, c.backoffMultiplier, c.jitter)
}
