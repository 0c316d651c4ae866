package requery

import (
	"encoding/json"
	"time"
)

// DehydratedQuery is the serializable form of one successful cache entry.
// Data round-trips through JSON, so hydrated entries carry json.RawMessage
// until a consumer decodes them (see UnmarshalData).
type DehydratedQuery struct {
	Key             string          `json:"key"`
	Data            json.RawMessage `json:"data"`
	DataUpdatedAt   time.Time       `json:"dataUpdatedAt"`
	DataUpdateCount int             `json:"dataUpdateCount"`
}

// Dehydrate serializes every entry currently holding successful data.
// Loading and errored entries are skipped. The output feeds Hydrate on a
// later client, typically across a process restart.
func Dehydrate(c *Client) ([]byte, error) {
	entries := c.cache.all()
	queries := make([]DehydratedQuery, 0, len(entries))
	for _, e := range entries {
		snap := e.snapshot()
		if !snap.IsSuccess {
			continue
		}
		raw, err := json.Marshal(snap.Data)
		if err != nil {
			return nil, &QueryError{
				Type:    ErrorTypeConfiguration,
				Message: "data is not JSON-serializable",
				Key:     snap.Key,
				Cause:   err,
			}
		}
		queries = append(queries, DehydratedQuery{
			Key:             snap.Key.String(),
			Data:            raw,
			DataUpdatedAt:   snap.DataUpdatedAt,
			DataUpdateCount: snap.DataUpdateCount,
		})
	}
	return json.Marshal(queries)
}

// Hydrate restores dehydrated queries into the client as seeded entries.
// The original dataUpdatedAt is preserved, so staleness carries across
// restarts. Keys that already exist in the cache are left untouched.
func Hydrate(c *Client, blob []byte) error {
	var queries []DehydratedQuery
	if err := json.Unmarshal(blob, &queries); err != nil {
		return &QueryError{
			Type:    ErrorTypeConfiguration,
			Message: "invalid dehydrated payload",
			Cause:   err,
		}
	}
	for _, q := range queries {
		key, err := KeyFromString(q.Key)
		if err != nil {
			return err
		}
		opts := QueryOptions{
			InitialData:      q.Data,
			InitialUpdatedAt: q.DataUpdatedAt,
		}
		e, created := c.cache.getOrCreate(key, opts, c.defaultStaleTime, c.defaultCacheTime, c.clock, c.metrics)
		if !created {
			continue
		}
		e.mu.Lock()
		e.dataUpdateCount = q.DataUpdateCount
		e.mu.Unlock()
		c.metrics.RecordCacheSize(c.cache.len())
	}
	return nil
}

// UnmarshalData decodes a snapshot's data into T. It handles both live
// values (plain type assertion) and hydrated json.RawMessage payloads.
func UnmarshalData[T any](snap Snapshot) (T, error) {
	var out T
	switch v := snap.Data.(type) {
	case nil:
		return out, &QueryError{Type: ErrorTypeFetch, Message: "snapshot has no data", Key: snap.Key}
	case T:
		return v, nil
	case json.RawMessage:
		if err := json.Unmarshal(v, &out); err != nil {
			return out, &QueryError{
				Type:    ErrorTypeConfiguration,
				Message: "hydrated data does not decode into target type",
				Key:     snap.Key,
				Cause:   err,
			}
		}
		return out, nil
	default:
		return out, &QueryError{
			Type:    ErrorTypeConfiguration,
			Message: "snapshot data has unexpected type",
			Key:     snap.Key,
		}
	}
}
