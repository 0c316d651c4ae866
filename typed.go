package requery

import "context"

// DataAs asserts a snapshot's data to T. The second return is false when the
// snapshot has no data or the data is a different type.
func DataAs[T any](snap Snapshot) (T, bool) {
	v, ok := snap.Data.(T)
	return v, ok
}

// SubscribeTyped wraps Subscribe for a typed fetch function. The callback
// receives the raw snapshot plus the typed data when present.
func SubscribeTyped[T any](c *Client, key Key, fetchFn func(ctx context.Context, key Key) (T, error), opts QueryOptions, callback func(snap Snapshot, data T, ok bool)) (*Observer, error) {
	var wrapped FetchFunc
	if fetchFn != nil {
		wrapped = func(ctx context.Context, key Key) (any, error) {
			return fetchFn(ctx, key)
		}
	}
	return c.Subscribe(key, wrapped, opts, func(snap Snapshot) {
		data, ok := DataAs[T](snap)
		callback(snap, data, ok)
	})
}

// RefetchTyped forces a fetch and returns its result as T.
func RefetchTyped[T any](ctx context.Context, c *Client, key Key, fetchFn func(ctx context.Context, key Key) (T, error), opts QueryOptions) (T, error) {
	var zero T
	data, err := c.Refetch(ctx, key, func(ctx context.Context, key Key) (any, error) {
		return fetchFn(ctx, key)
	}, opts)
	if err != nil {
		return zero, err
	}
	v, ok := data.(T)
	if !ok {
		return zero, &QueryError{
			Type:    ErrorTypeConfiguration,
			Message: "fetch result has unexpected type",
			Key:     key,
		}
	}
	return v, nil
}
