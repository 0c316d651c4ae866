package requery

import (
	"fmt"
	"time"
)

// WithDefaultStaleTime sets the staleness window applied to queries that do
// not specify one. The built-in default is zero: data is immediately stale.
func WithDefaultStaleTime(d time.Duration) Option {
	return func(c *Client) {
		c.defaultStaleTime = d
	}
}

// WithDefaultCacheTime sets how long unsubscribed entries survive before
// garbage collection when the query does not specify a cache time.
func WithDefaultCacheTime(d time.Duration) Option {
	return func(c *Client) {
		c.defaultCacheTime = d
	}
}

// WithMaxRetries sets the default maximum number of retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.initialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) Option {
	return func(c *Client) {
		c.maxBackoff = d
	}
}

// WithBackoffMultiplier sets the backoff multiplier.
func WithBackoffMultiplier(f float64) Option {
	return func(c *Client) {
		c.backoffMultiplier = f
	}
}

// WithJitter sets the jitter factor for backoff (0.0 to 1.0).
func WithJitter(f float64) Option {
	return func(c *Client) {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		c.jitter = f
	}
}

// WithBackoffStrategy selects the backoff curve used between retries.
func WithBackoffStrategy(s BackoffStrategy) Option {
	return func(c *Client) {
		c.backoffStrategy = strategyFor(s)
	}
}

// WithRetryPolicy sets a custom client-level retry policy. Per-query Retry /
// RetryIf / RetryDelay options still take precedence.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retryPolicy = p
	}
}

// WithGCInterval sets the period of the garbage-collection sweep. Zero
// disables the sweeper; CollectGarbage may still be called directly.
func WithGCInterval(d time.Duration) Option {
	return func(c *Client) {
		c.gcInterval = d
	}
}

// WithMetrics enables Prometheus metrics collection on the default registry.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithClock injects the time source used for staleness and garbage
// collection decisions. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithDebug enables debug logging with default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a simple console logger.
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var errs []string

	errs = append(errs, c.validateRetryConfig()...)
	errs = append(errs, c.validateTimingConfig()...)
	errs = append(errs, c.validateDebugConfig()...)
	errs = append(errs, c.validateExtremeValues()...)

	if len(errs) > 0 {
		return &QueryError{
			Type:    ErrorTypeConfiguration,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}

func (c *Client) validateRetryConfig() []string {
	var errs []string

	if c.maxRetries < 0 {
		errs = append(errs, "maxRetries must be non-negative")
	}
	if c.initialBackoff <= 0 {
		errs = append(errs, "initialBackoff must be positive")
	}
	if c.maxBackoff < c.initialBackoff {
		errs = append(errs, "maxBackoff must be greater than or equal to initialBackoff")
	}
	if c.backoffMultiplier <= 0 {
		errs = append(errs, "backoffMultiplier must be positive")
	}
	// Jitter is clamped in WithJitter; this catches manually set values.
	if c.jitter < 0 || c.jitter > 1 {
		errs = append(errs, "jitter must be between 0 and 1")
	}

	return errs
}

func (c *Client) validateTimingConfig() []string {
	var errs []string

	if c.defaultStaleTime < 0 {
		errs = append(errs, "defaultStaleTime must be non-negative")
	}
	if c.defaultCacheTime <= 0 {
		errs = append(errs, "defaultCacheTime must be positive")
	}
	if c.gcInterval < 0 {
		errs = append(errs, "gcInterval must be non-negative")
	}
	if c.clock == nil {
		errs = append(errs, "clock must not be nil")
	}

	return errs
}

func (c *Client) validateDebugConfig() []string {
	var errs []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		errs = append(errs, "logger must be set when debug is enabled")
	}

	return errs
}

func (c *Client) validateExtremeValues() []string {
	var errs []string

	if c.maxRetries > 100 {
		errs = append(errs, "maxRetries > 100 may cause excessive resource usage")
	}
	if c.initialBackoff > 10*time.Minute {
		errs = append(errs, "initialBackoff > 10m may cause very long delays")
	}
	if c.maxBackoff > time.Hour {
		errs = append(errs, "maxBackoff > 1h may cause extremely long delays")
	}
	if c.defaultCacheTime > 24*time.Hour && c.defaultCacheTime != CacheForever {
		errs = append(errs, "defaultCacheTime > 24h may cause stale data issues")
	}

	return errs
}

// validateQueryOptions checks per-query options at subscribe time and fails
// fast on invalid values.
func validateQueryOptions(opts QueryOptions) error {
	var errs []string

	if opts.StaleTime < 0 {
		errs = append(errs, "StaleTime must be non-negative")
	}
	if opts.CacheTime < 0 {
		errs = append(errs, "CacheTime must be non-negative")
	}
	if opts.Retry < RetryNever {
		errs = append(errs, "Retry must be RetryNever or non-negative")
	}
	if opts.Retry > 100 {
		errs = append(errs, "Retry > 100 may cause excessive resource usage")
	}
	if opts.RefetchInterval < 0 {
		errs = append(errs, "RefetchInterval must be non-negative")
	}

	if len(errs) > 0 {
		return &QueryError{
			Type:    ErrorTypeConfiguration,
			Message: "query options validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errs),
		}
	}

	return nil
}
