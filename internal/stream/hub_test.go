package stream

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/skobkin/perflog/internal/logsink"
)

func newTestHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func awaitRecord(t *testing.T, ch <-chan Record) Record {
	t.Helper()
	select {
	case record, ok := <-ch:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return record
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timed out waiting for record")
		return Record{}
	}
}

func TestHubDeliversLatestOnSubscribe(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	t.Cleanup(func() { _ = hub.Close() })

	if _, ok := hub.Latest(); ok {
		t.Fatalf("expected no record before first write")
	}

	fields := logsink.Fields{"lap": 0.5}
	if err := hub.Write(context.Background(), "first", fields); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	fields["lap"] = 99.0

	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	record := awaitRecord(t, ch)
	if record.Message != "first" {
		t.Fatalf("unexpected message %q", record.Message)
	}
	if v, _ := record.Fields.Float("lap"); v != 0.5 {
		t.Fatalf("hub must copy fields, got lap=%v", v)
	}
	if record.Timestamp.IsZero() {
		t.Fatalf("expected timestamp")
	}
}

func TestHubDropsOldestOnBackpressure(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	t.Cleanup(func() { _ = hub.Close() })

	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	for _, msg := range []string{"a", "b", "c"} {
		if err := hub.Write(ctx, msg, nil); err != nil {
			t.Fatalf("Write returned error: %v", err)
		}
	}

	if record := awaitRecord(t, ch); record.Message != "c" {
		t.Fatalf("expected newest record, got %q", record.Message)
	}
	if hub.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.Subscribers())
	}
}

func TestHubUnsubscribeAndClose(t *testing.T) {
	t.Parallel()

	hub := newTestHub()
	ch, unsubscribe := hub.Subscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after unsubscribe")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers")
	}

	other, _ := hub.Subscribe()
	if err := hub.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := hub.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	if _, ok := <-other; ok {
		t.Fatalf("expected closed channel after hub close")
	}
	if err := hub.Write(context.Background(), "late", nil); err != nil {
		t.Fatalf("Write after close must be a no-op, got %v", err)
	}

	late, cancel := hub.Subscribe()
	defer cancel()
	if _, ok := <-late; ok {
		t.Fatalf("subscribing to a closed hub must yield a closed channel")
	}
}
