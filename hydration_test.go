package requery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type testArticle struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

func TestDehydrateHydrateRoundTrip(t *testing.T) {
	clock := newTestClock()
	source := newTestClient(clock)

	source.SetData(MustKey("articles", 1), testArticle{ID: 1, Title: "first"})
	source.SetData(MustKey("articles", 2), testArticle{ID: 2, Title: "second"})

	blob, err := Dehydrate(source)
	if err != nil {
		t.Fatalf("Dehydrate() returned error: %v", err)
	}
	writtenAt := clock.Now()
	source.Close()

	clock.Advance(10 * time.Minute)

	restored := newTestClient(clock, WithDefaultStaleTime(time.Hour))
	defer restored.Close()
	if err := Hydrate(restored, blob); err != nil {
		t.Fatalf("Hydrate() returned error: %v", err)
	}

	if restored.Size() != 2 {
		t.Fatalf("Expected 2 hydrated entries, got %d", restored.Size())
	}

	snap, ok := restored.GetSnapshot(MustKey("articles", 1))
	if !ok {
		t.Fatal("Expected hydrated entry")
	}
	if !snap.IsSuccess {
		t.Errorf("Expected success status, got %s", snap.Status)
	}
	if !snap.DataUpdatedAt.Equal(writtenAt) {
		t.Errorf("Expected DataUpdatedAt preserved at %v, got %v", writtenAt, snap.DataUpdatedAt)
	}
	if snap.DataUpdateCount != 1 {
		t.Errorf("Expected DataUpdateCount preserved, got %d", snap.DataUpdateCount)
	}
	if snap.IsStale {
		t.Error("Expected hydrated entry fresh within staleTime")
	}

	a, err := UnmarshalData[testArticle](snap)
	if err != nil {
		t.Fatalf("UnmarshalData() returned error: %v", err)
	}
	if a.ID != 1 || a.Title != "first" {
		t.Errorf("Decoded %+v", a)
	}

	// Staleness continues to age from the preserved timestamp.
	clock.Advance(time.Hour)
	snap, _ = restored.GetSnapshot(MustKey("articles", 1))
	if !snap.IsStale {
		t.Error("Expected hydrated entry stale once the window passes")
	}
}

func TestDehydrateSkipsNonSuccessEntries(t *testing.T) {
	client := newTestClient(nil)
	defer client.Close()

	client.SetData(MustKey("good"), "v")

	failing := func(ctx context.Context, key Key) (any, error) {
		return nil, errors.New("down")
	}
	if _, err := client.Refetch(context.Background(), MustKey("bad"), failing, QueryOptions{Retry: RetryNever}); err == nil {
		t.Fatal("Expected fetch failure")
	}

	blob, err := Dehydrate(client)
	if err != nil {
		t.Fatalf("Dehydrate() returned error: %v", err)
	}
	var queries []DehydratedQuery
	if err := json.Unmarshal(blob, &queries); err != nil {
		t.Fatalf("Unmarshal() returned error: %v", err)
	}
	if len(queries) != 1 || queries[0].Key != MustKey("good").String() {
		t.Errorf("Expected only the successful entry, got %+v", queries)
	}
}

func TestDehydrateRejectsUnserializableData(t *testing.T) {
	client := newTestClient(nil)
	defer client.Close()

	client.SetData(MustKey("chan"), make(chan int))

	_, err := Dehydrate(client)
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Type != ErrorTypeConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestHydrateLeavesExistingEntriesUntouched(t *testing.T) {
	clock := newTestClock()
	source := newTestClient(clock)
	source.SetData(MustKey("shared"), "from-blob")
	blob, err := Dehydrate(source)
	if err != nil {
		t.Fatalf("Dehydrate() returned error: %v", err)
	}
	source.Close()

	target := newTestClient(clock)
	defer target.Close()
	target.SetData(MustKey("shared"), "live")

	if err := Hydrate(target, blob); err != nil {
		t.Fatalf("Hydrate() returned error: %v", err)
	}
	if data, _ := target.GetData(MustKey("shared")); data != "live" {
		t.Errorf("Hydration overwrote a live entry: %v", data)
	}
}

func TestHydrateRejectsInvalidPayload(t *testing.T) {
	client := newTestClient(nil)
	defer client.Close()

	err := Hydrate(client, []byte("not json"))
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Type != ErrorTypeConfiguration {
		t.Errorf("Expected configuration error, got %v", err)
	}
}

func TestUnmarshalData(t *testing.T) {
	key := MustKey("u")

	if _, err := UnmarshalData[testArticle](Snapshot{Key: key}); err == nil {
		t.Error("Expected error for empty snapshot")
	}

	live, err := UnmarshalData[testArticle](Snapshot{Key: key, Data: testArticle{ID: 7}})
	if err != nil {
		t.Fatalf("UnmarshalData() returned error: %v", err)
	}
	if live.ID != 7 {
		t.Errorf("Expected live value passthrough, got %+v", live)
	}

	raw, err := UnmarshalData[testArticle](Snapshot{Key: key, Data: json.RawMessage(`{"id":9,"title":"t"}`)})
	if err != nil {
		t.Fatalf("UnmarshalData() returned error: %v", err)
	}
	if raw.ID != 9 || raw.Title != "t" {
		t.Errorf("Expected decoded value, got %+v", raw)
	}

	if _, err := UnmarshalData[testArticle](Snapshot{Key: key, Data: json.RawMessage(`"just a string"`)}); err == nil {
		t.Error("Expected decode error for mismatched payload")
	}

	if _, err := UnmarshalData[string](Snapshot{Key: key, Data: 42}); err == nil {
		t.Error("Expected error for unexpected data type")
	}
}
