package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestMemoryStoreExpiresIdleKeys(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC))
	s := NewMemoryStore(WithMemoryClock(clock))
	ctx := context.Background()
	l := Limit{Max: 5, Period: time.Minute}

	if _, err := s.Increment(ctx, "key", 5, l); err != nil {
		t.Fatal(err)
	}
	if len(s.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(s.entries))
	}

	clock.Advance(time.Minute)

	// Any access after a full idle period drops the entry.
	res, err := s.Peek(ctx, "key", 0, l)
	if err != nil {
		t.Fatal(err)
	}
	if res.Used != 0 {
		t.Errorf("used after expiry: got %v, want 0", res.Used)
	}
	if len(s.entries) != 0 {
		t.Errorf("entries after expiry = %d, want 0", len(s.entries))
	}
}

func TestMemoryStorePeekDoesNotCreateEntries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := Limit{Max: 5, Period: time.Minute}

	for i := 0; i < 3; i++ {
		if _, err := s.Peek(ctx, "key", 1, l); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(s.entries))
	}
}
