package drl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ryhazerus/drl/store"
)

func newTestLimiter(t *testing.T, opts ...Option) (*Limiter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC))
	opts = append([]Option{WithStore(store.NewMemoryStore(store.WithMemoryClock(clock)))}, opts...)
	l := New(opts...)
	t.Cleanup(func() { l.Close() })
	return l, clock
}

func newTestTarget(t *testing.T, l *Limiter) *Target {
	t.Helper()
	target, err := l.Target("test", "user1", 3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return target
}

func TestTargetIncrement(t *testing.T) {
	l, _ := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	for i, n := range []int64{1, 2} {
		ok, err := target.Increment(ctx, n)
		if err != nil {
			t.Fatalf("increment %d: unexpected error: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("increment %d: expected true", i+1)
		}
	}

	ok, err := target.Increment(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected increment over the limit to return false")
	}
}

func TestTargetIncrementOverLimitIsNoop(t *testing.T) {
	l, _ := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	target.Increment(ctx, 2)
	if ok, _ := target.Increment(ctx, 2); ok {
		t.Fatal("expected increment(2) to be rejected")
	}
	if ok, _ := target.Increment(ctx, 1); !ok {
		t.Fatal("expected increment(1) to be accepted after the rejected one")
	}
}

func TestTargetIncrementAfterDecay(t *testing.T) {
	l, clock := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	if ok, _ := target.Increment(ctx, 3); !ok {
		t.Fatal("expected increment(3) to be accepted")
	}
	clock.Advance(30 * time.Minute)
	if ok, _ := target.Increment(ctx, 1); !ok {
		t.Fatal("expected increment(1) to be accepted after half a period")
	}
	clock.Advance(time.Hour)
	if ok, _ := target.Increment(ctx, 3); !ok {
		t.Fatal("expected increment(3) to be accepted after a full period")
	}
}

func TestTargetConsume(t *testing.T) {
	l, _ := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	if err := target.Consume(ctx, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := target.Consume(ctx, 1)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got: %v", err)
	}

	var exErr *ExceededError
	if !errors.As(err, &exErr) {
		t.Fatalf("expected *ExceededError, got %T", err)
	}
	if exErr.Scope != "test" || exErr.Identifier != "user1" || exErr.Max != 3 {
		t.Errorf("error details = %+v", exErr)
	}
	if exErr.Amount != 1 || exErr.Used != 3 {
		t.Errorf("amount/used = %d/%v, want 1/3", exErr.Amount, exErr.Used)
	}
	if d := exErr.RetryAfter - 20*time.Minute; d < -time.Millisecond || d > time.Millisecond {
		t.Errorf("retry after = %s, want ~20m", exErr.RetryAfter)
	}

	used, _ := target.Used(ctx)
	if used != 3 {
		t.Errorf("used after rejected consume = %d, want 3", used)
	}
}

func TestTargetExceeded(t *testing.T) {
	l, _ := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	target.Increment(ctx, 2)

	tests := []struct {
		n    int64
		want bool
	}{
		{n: 0, want: false},
		{n: 1, want: false},
		{n: 2, want: true},
		{n: 10, want: true},
	}
	for _, tt := range tests {
		got, err := target.Exceeded(ctx, tt.n)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("Exceeded(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}

	used, _ := target.Used(ctx)
	if used != 2 {
		t.Errorf("used = %d, want 2 (Exceeded must not write)", used)
	}
}

func TestTargetUsed(t *testing.T) {
	l, clock := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	used, err := target.Used(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if used != 0 {
		t.Errorf("initial used = %d, want 0", used)
	}

	target.Increment(ctx, 2)
	clock.Advance(30 * time.Minute)

	used, _ = target.Used(ctx)
	if used != 1 {
		t.Errorf("used after half a period = %d, want 1", used)
	}

	clock.Advance(10 * time.Minute)
	used, _ = target.Used(ctx)
	if used != 0 {
		t.Errorf("used = %d, want 0 (2 * 20/60 truncated)", used)
	}
}

func TestTargetResetAndDecrement(t *testing.T) {
	l, _ := newTestLimiter(t)
	target := newTestTarget(t, l)
	ctx := context.Background()

	target.Increment(ctx, 3)
	if err := target.Decrement(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if used, _ := target.Used(ctx); used != 1 {
		t.Errorf("used after decrement = %d, want 1", used)
	}

	if err := target.Decrement(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if used, _ := target.Used(ctx); used != 0 {
		t.Errorf("used after over-decrement = %d, want 0", used)
	}
	if ok, _ := target.Increment(ctx, 4); ok {
		t.Error("over-decrement must not create spare capacity")
	}

	target.Increment(ctx, 3)
	if err := target.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if used, _ := target.Used(ctx); used != 0 {
		t.Errorf("used after reset = %d, want 0", used)
	}
}

func TestTargetsShareUsage(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	a, _ := l.Target("api", "user1", 3, time.Hour)
	b, _ := l.Target("api", "user1", 3, time.Hour)
	other, _ := l.Target("api", "user2", 3, time.Hour)

	a.Increment(ctx, 3)
	if ok, _ := b.Increment(ctx, 1); ok {
		t.Error("second handle on the same target should see the first one's usage")
	}
	if ok, _ := other.Increment(ctx, 3); !ok {
		t.Error("a different identifier has its own quota")
	}
}

func TestTargetConcurrent(t *testing.T) {
	l, _ := newTestLimiter(t)
	target, err := l.Target("concurrent", "user1", 100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 200)

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- target.Consume(ctx, 1)
		}()
	}

	wg.Wait()
	close(errs)

	var allowed, blocked int
	for err := range errs {
		if err == nil {
			allowed++
		} else if errors.Is(err, ErrLimitExceeded) {
			blocked++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if allowed != 100 {
		t.Errorf("allowed = %d, want 100", allowed)
	}
	if blocked != 100 {
		t.Errorf("blocked = %d, want 100", blocked)
	}
}

func TestLimiterTargetValidation(t *testing.T) {
	l := New()

	tests := []struct {
		name      string
		scope, id string
		max       int64
		period    time.Duration
	}{
		{name: "empty scope", scope: "", id: "u", max: 1, period: time.Second},
		{name: "empty identifier", scope: "s", id: "", max: 1, period: time.Second},
		{name: "zero max", scope: "s", id: "u", max: 0, period: time.Second},
		{name: "negative max", scope: "s", id: "u", max: -3, period: time.Second},
		{name: "zero period", scope: "s", id: "u", max: 1, period: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Target(tt.scope, tt.id, tt.max, tt.period)
			if !errors.Is(err, ErrInvalidTarget) {
				t.Errorf("expected ErrInvalidTarget, got %v", err)
			}
		})
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		scope, id string
		want      string
	}{
		{scope: "test", id: "user1", want: "test:user1"},
		{scope: "a:b", id: "c", want: "a%3Ab:c"},
		{scope: "a", id: "b:c", want: "a:b%3Ac"},
		{scope: "api v1", id: "x/y", want: "api+v1:x%2Fy"},
	}
	seen := make(map[string]bool)
	for _, tt := range tests {
		got := Key(tt.scope, tt.id)
		if got != tt.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tt.scope, tt.id, got, tt.want)
		}
		if seen[got] {
			t.Errorf("Key(%q, %q) collides", tt.scope, tt.id)
		}
		seen[got] = true
	}
}
