package requery

import (
	"context"
	"math"
	"time"
)

// Status represents the lifecycle state of a query entry.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchFunc is the injected data source for a query. It is treated as opaque;
// failures are retried according to the configured retry policy.
type FetchFunc func(ctx context.Context, key Key) (any, error)

// SubscriberFunc receives entry snapshots. It must tolerate being called
// synchronously and repeatedly, including immediately upon subscribe.
type SubscriberFunc func(Snapshot)

// RetryIfFunc decides whether a failed attempt should be retried.
// failures is the number of failures so far (1 for the first failure).
type RetryIfFunc func(failures int, err error) bool

// RetryDelayFunc computes the delay before the given retry attempt.
type RetryDelayFunc func(failures int) time.Duration

// InvalidatePredicate selects keys for bulk invalidation.
type InvalidatePredicate func(Key) bool

// Snapshot is an immutable view of a query entry, pushed to subscribers on
// every mutation. Data is shared read-only; subscribers must not modify it.
type Snapshot struct {
	Key             Key
	Status          Status
	Data            any
	Error           error
	DataUpdatedAt   time.Time
	ErrorUpdatedAt  time.Time
	DataUpdateCount int
	FailureCount    int
	IsFetching      bool

	// Derived fields, computed at emission time.
	IsLoading    bool
	IsSuccess    bool
	IsError      bool
	IsStale      bool
	IsRefetching bool
}

const (
	// StaleForever marks data as never going stale on its own.
	StaleForever time.Duration = math.MaxInt64

	// CacheForever exempts an entry from garbage collection.
	CacheForever time.Duration = math.MaxInt64

	// RetryNever disables retries for a query.
	RetryNever = -1
)

// QueryOptions configures a single query. The zero value is valid: data is
// considered immediately stale, the client-level cache time and retry count
// apply, and automatic fetching is enabled.
type QueryOptions struct {
	// StaleTime is how long data stays fresh after a successful fetch.
	// Zero inherits the client default, which is itself zero (immediately
	// stale) unless set via WithDefaultStaleTime. Use StaleForever to opt
	// out of staleness entirely.
	StaleTime time.Duration

	// CacheTime is how long an entry survives with zero subscribers before
	// garbage collection. Zero inherits the client default; use CacheForever
	// to pin the entry.
	CacheTime time.Duration

	// Disabled suppresses automatic fetches on subscribe and invalidation.
	// Explicit Refetch calls still work.
	Disabled bool

	// InitialData seeds the entry on creation with status success, bypassing
	// the loading state. Ignored if the entry already exists.
	InitialData any

	// InitialUpdatedAt backdates InitialData for staleness purposes.
	// Zero means "now".
	InitialUpdatedAt time.Time

	// Retry is the maximum number of retries after the first failed attempt.
	// Zero inherits the client default; RetryNever disables retries.
	Retry int

	// RetryIf overrides count-based retry decisions when set.
	RetryIf RetryIfFunc

	// RetryDelay overrides the backoff strategy when set.
	RetryDelay RetryDelayFunc

	// RefetchInterval triggers a background refetch on a fixed period while
	// the entry has at least one subscriber. Zero disables polling.
	RefetchInterval time.Duration
}

// Option represents a client configuration option.
type Option func(*Client)

// BackoffStrategy selects the backoff curve used between retries.
type BackoffStrategy int

const (
	// ExponentialJitter grows the delay exponentially and adds uniform jitter.
	ExponentialJitter BackoffStrategy = iota
	// DecorrelatedJitter applies AWS-style decorrelated jitter for smoother
	// tail latencies.
	DecorrelatedJitter
)
