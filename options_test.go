package requery

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewWithDefaultsIsValid(t *testing.T) {
	client := New(WithGCInterval(0))
	defer client.Close()
	if !client.IsValid() {
		t.Fatalf("Default configuration must validate, got %v", client.ValidationError())
	}
}

func TestInvalidConfigurationSurfacesOnUse(t *testing.T) {
	client := New(WithGCInterval(0), WithMaxRetries(-1))
	defer client.Close()

	if client.IsValid() {
		t.Fatal("Expected invalid configuration")
	}
	var qerr *QueryError
	if !errors.As(client.ValidationError(), &qerr) || qerr.Type != ErrorTypeConfiguration {
		t.Errorf("Expected configuration error, got %v", client.ValidationError())
	}

	_, err := client.Subscribe(MustKey("x"), nil, QueryOptions{}, func(Snapshot) {})
	if !errors.Is(err, client.ValidationError()) {
		t.Errorf("Subscribe must return the validation error, got %v", err)
	}

	fetchFn := func(ctx context.Context, key Key) (any, error) { return nil, nil }
	if _, err := client.Refetch(context.Background(), MustKey("x"), fetchFn, QueryOptions{}); !errors.Is(err, client.ValidationError()) {
		t.Errorf("Refetch must return the validation error, got %v", err)
	}
	if _, err := client.TryRefetch(context.Background(), MustKey("x"), fetchFn, QueryOptions{}); !errors.Is(err, client.ValidationError()) {
		t.Errorf("TryRefetch must return the validation error, got %v", err)
	}
}

func TestValidateConfigurationCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		option Option
	}{
		{"negative retries", WithMaxRetries(-1)},
		{"zero initial backoff", WithInitialBackoff(0)},
		{"max below initial", func(c *Client) {
			c.initialBackoff = time.Second
			c.maxBackoff = time.Millisecond
		}},
		{"zero multiplier", WithBackoffMultiplier(0)},
		{"negative stale time", WithDefaultStaleTime(-time.Second)},
		{"zero cache time", WithDefaultCacheTime(0)},
		{"negative gc interval", WithGCInterval(-time.Second)},
		{"nil clock", WithClock(nil)},
		{"debug without logger", WithDebug()},
		{"excessive retries", WithMaxRetries(101)},
		{"excessive initial backoff", func(c *Client) {
			c.initialBackoff = 11 * time.Minute
			c.maxBackoff = time.Hour
		}},
		{"excessive max backoff", WithMaxBackoff(2 * time.Hour)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := New(WithGCInterval(0), tc.option)
			defer client.Close()
			if client.IsValid() {
				t.Error("Expected validation failure")
			}
		})
	}
}

func TestWithJitterClamps(t *testing.T) {
	client := New(WithGCInterval(0), WithJitter(5))
	defer client.Close()
	if client.jitter != 1 {
		t.Errorf("Expected jitter clamped to 1, got %v", client.jitter)
	}

	client2 := New(WithGCInterval(0), WithJitter(-1))
	defer client2.Close()
	if client2.jitter != 0 {
		t.Errorf("Expected jitter clamped to 0, got %v", client2.jitter)
	}
}

func TestWithSimpleLoggerEnablesDebug(t *testing.T) {
	client := New(WithGCInterval(0), WithSimpleLogger())
	defer client.Close()
	if !client.IsValid() {
		t.Fatalf("Expected valid configuration, got %v", client.ValidationError())
	}
	if client.logger == nil || !client.debug.Enabled {
		t.Error("Expected debug logging enabled with a logger")
	}
}

func TestCacheForeverDefaultIsValid(t *testing.T) {
	client := New(WithGCInterval(0), WithDefaultCacheTime(CacheForever))
	defer client.Close()
	if !client.IsValid() {
		t.Errorf("CacheForever default must validate, got %v", client.ValidationError())
	}
}

func TestSubscribeValidatesQueryOptions(t *testing.T) {
	client := newTestClient(nil)
	defer client.Close()

	noop := func(Snapshot) {}
	fetchFn := func(ctx context.Context, key Key) (any, error) { return nil, nil }

	cases := []struct {
		name string
		opts QueryOptions
	}{
		{"negative stale time", QueryOptions{StaleTime: -time.Second}},
		{"negative cache time", QueryOptions{CacheTime: -time.Second}},
		{"retry below RetryNever", QueryOptions{Retry: -2}},
		{"excessive retry", QueryOptions{Retry: 101}},
		{"negative refetch interval", QueryOptions{RefetchInterval: -time.Second}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Subscribe(MustKey("opts"), fetchFn, tc.opts, noop)
			var qerr *QueryError
			if !errors.As(err, &qerr) || qerr.Type != ErrorTypeConfiguration {
				t.Errorf("Expected configuration error, got %v", err)
			}
		})
	}
}

func TestSubscribeRejectsZeroKeyAndNilCallback(t *testing.T) {
	client := newTestClient(nil)
	defer client.Close()

	fetchFn := func(ctx context.Context, key Key) (any, error) { return nil, nil }

	if _, err := client.Subscribe(Key{}, fetchFn, QueryOptions{}, func(Snapshot) {}); err == nil {
		t.Error("Expected error for zero key")
	}
	if _, err := client.Subscribe(MustKey("k"), fetchFn, QueryOptions{}, nil); err == nil {
		t.Error("Expected error for nil callback")
	}
}

func TestRefetchRejectsNilFetchFunc(t *testing.T) {
	client := newTestClient(nil)
	defer client.Close()

	_, err := client.Refetch(context.Background(), MustKey("k"), nil, QueryOptions{})
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Type != ErrorTypeConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}
