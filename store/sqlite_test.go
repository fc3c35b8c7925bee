package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestSQLiteStore(t *testing.T, clock clockwork.Clock) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", WithSQLiteClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStorePersistsAcrossHandles(t *testing.T) {
	path := t.TempDir() + "/drl.db"
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC))
	ctx := context.Background()
	l := Limit{Max: 10, Period: time.Hour}

	s1, err := NewSQLiteStore(path, WithSQLiteClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := s1.Increment(ctx, "key", 2, l); err != nil {
			t.Fatal(err)
		}
	}
	s1.Close()

	// Simulate a restart by reopening the same database file.
	s2, err := NewSQLiteStore(path, WithSQLiteClock(clock))
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	res, err := s2.Peek(ctx, "key", 0, l)
	if err != nil {
		t.Fatal(err)
	}
	if res.Used != 6 {
		t.Errorf("after reopen: got %v, want 6", res.Used)
	}
}

func TestSQLiteStoreSweep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC))
	s := newTestSQLiteStore(t, clock)
	ctx := context.Background()

	if _, err := s.Increment(ctx, "short", 1, Limit{Max: 5, Period: time.Minute}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Increment(ctx, "long", 1, Limit{Max: 5, Period: time.Hour}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Minute)

	n, err := s.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("swept %d rows, want 1", n)
	}

	var remaining int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drl_counters`).Scan(&remaining); err != nil {
		t.Fatal(err)
	}
	if remaining != 1 {
		t.Errorf("remaining rows = %d, want 1", remaining)
	}
}

func TestSQLiteStoreCancelledContext(t *testing.T) {
	s := newTestSQLiteStore(t, clockwork.NewRealClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Increment(ctx, "key", 1, Limit{Max: 5, Period: time.Minute}); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
