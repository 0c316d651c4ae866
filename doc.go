// Package requery provides a key-addressed query cache with staleness
// tracking, subscriber notification and deduplicated fetch orchestration:
//
//   - Canonical query keys built from mixed primitive parts
//   - Per-key entries holding cached data, status and freshness timestamps
//   - Single-flight fetches (concurrent subscribers share one invocation)
//   - Retries with exponential backoff + jitter, configurable per query
//   - Stale-while-revalidate: old data stays visible during background refetch
//   - Initial-data seeding that bypasses the loading state
//   - Garbage collection of entries nobody subscribes to
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - The data source is an injected function; no transport is owned here
//   - Safe concurrent use of a single *Client instance
//   - Extensibility via pluggable retry policy, logger and metrics
//
// Typical usage:
//
//	client := requery.New(
//	    requery.WithMaxRetries(3),
//	    requery.WithDefaultCacheTime(5*time.Minute),
//	    requery.WithMetrics(),
//	)
//	defer client.Close()
//
//	key := requery.MustKey("pokemon", 1)
//	obs, err := client.Subscribe(key, fetchPokemon, requery.QueryOptions{
//	    StaleTime: 30 * time.Second,
//	}, func(s requery.Snapshot) {
//	    // render s.Data / s.IsFetching / s.Error
//	})
//
// Subscribers are invoked synchronously with an immutable snapshot on every
// entry mutation, starting with the entry's current state at subscribe time.
// The library avoids opinionated logging: provide a Logger (e.g. via
// WithSimpleLogger or NewZerologLogger) + enable debug flags selectively
// (WithDebug / WithDebugConfig) for insight without noise.
package requery
