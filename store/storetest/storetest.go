// Package storetest checks that a store.Store implementation honours the
// decaying-counter contract. Backends call Run from their own tests.
package storetest

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ryhazerus/drl/store"
)

// Factory returns an empty store together with a function that moves the
// store's clock forward. The store must be frozen in time between calls to
// advance.
type Factory func(t *testing.T) (s store.Store, advance func(time.Duration))

var hourly = store.Limit{Max: 3, Period: time.Hour}

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store, advance func(time.Duration))
	}{
		{"IncrementWithinLimit", testIncrementWithinLimit},
		{"IncrementOverLimitIsNoop", testIncrementOverLimitIsNoop},
		{"AmountOverMaxNeverFits", testAmountOverMaxNeverFits},
		{"PeekDoesNotWrite", testPeekDoesNotWrite},
		{"DecayIsLinear", testDecayIsLinear},
		{"DecayIsMonotonic", testDecayIsMonotonic},
		{"DecrementFloorsAtZero", testDecrementFloorsAtZero},
		{"ResetClears", testResetClears},
		{"KeysAreIndependent", testKeysAreIndependent},
		{"Scenario", testScenario},
		{"ConcurrentIncrements", testConcurrentIncrements},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, advance := newStore(t)
			tt.fn(t, s, advance)
		})
	}
}

func used(t *testing.T, s store.Store, key string, l store.Limit) int64 {
	t.Helper()
	res, err := s.Peek(context.Background(), key, 0, l)
	require.NoError(t, err)
	return int64(math.Trunc(res.Used))
}

func increment(t *testing.T, s store.Store, key string, n int64, l store.Limit) bool {
	t.Helper()
	res, err := s.Increment(context.Background(), key, n, l)
	require.NoError(t, err)
	return res.Allowed
}

func testIncrementWithinLimit(t *testing.T, s store.Store, _ func(time.Duration)) {
	assert.Zero(t, used(t, s, "k", hourly), "fresh key")

	for i := int64(1); i <= 3; i++ {
		res, err := s.Increment(context.Background(), "k", 1, hourly)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "increment %d", i)
		assert.InDelta(t, float64(i), res.Used, 1e-9)
	}
	assert.EqualValues(t, 3, used(t, s, "k", hourly))
}

func testIncrementOverLimitIsNoop(t *testing.T, s store.Store, _ func(time.Duration)) {
	require.True(t, increment(t, s, "k", 2, hourly))

	res, err := s.Increment(context.Background(), "k", 2, hourly)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.InDelta(t, 2, res.Used, 1e-9, "rejected increment reports unchanged usage")

	assert.EqualValues(t, 2, used(t, s, "k", hourly))
	assert.True(t, increment(t, s, "k", 1, hourly), "remaining capacity still usable")
}

func testAmountOverMaxNeverFits(t *testing.T, s store.Store, _ func(time.Duration)) {
	assert.False(t, increment(t, s, "k", 4, hourly))
	assert.Zero(t, used(t, s, "k", hourly))
	assert.True(t, increment(t, s, "k", 0, hourly), "zero always fits")
}

func testPeekDoesNotWrite(t *testing.T, s store.Store, _ func(time.Duration)) {
	ctx := context.Background()
	require.True(t, increment(t, s, "k", 2, hourly))

	for i := 0; i < 5; i++ {
		res, err := s.Peek(ctx, "k", 2, hourly)
		require.NoError(t, err)
		assert.False(t, res.Allowed, "2 more would exceed")

		res, err = s.Peek(ctx, "k", 1, hourly)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "1 more fits")
	}

	assert.True(t, increment(t, s, "k", 1, hourly))
	assert.False(t, increment(t, s, "k", 1, hourly))
}

func testDecayIsLinear(t *testing.T, s store.Store, advance func(time.Duration)) {
	require.True(t, increment(t, s, "k", 2, hourly))

	advance(30 * time.Minute)
	res, err := s.Peek(context.Background(), "k", 0, hourly)
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Used, 1e-6)
}

func testDecayIsMonotonic(t *testing.T, s store.Store, advance func(time.Duration)) {
	l := store.Limit{Max: 100, Period: 10 * time.Minute}
	require.True(t, increment(t, s, "k", 100, l))

	prev := int64(100)
	for elapsed := time.Duration(0); elapsed < 12*time.Minute; elapsed += time.Minute {
		got := used(t, s, "k", l)
		assert.LessOrEqual(t, got, prev, "usage grew at %s", elapsed)
		if elapsed >= l.Period {
			assert.Zero(t, got, "usage after a full period")
		}
		prev = got
		advance(time.Minute)
	}
	assert.Zero(t, used(t, s, "k", l))
}

func testDecrementFloorsAtZero(t *testing.T, s store.Store, _ func(time.Duration)) {
	ctx := context.Background()

	left, err := s.Decrement(ctx, "k", 2, hourly)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.False(t, increment(t, s, "k", 4, hourly), "decrement must not create credit")
	assert.Zero(t, used(t, s, "k", hourly))

	require.True(t, increment(t, s, "k", 3, hourly))
	left, err = s.Decrement(ctx, "k", 2, hourly)
	require.NoError(t, err)
	assert.InDelta(t, 1, left, 1e-9)
	assert.EqualValues(t, 1, used(t, s, "k", hourly))

	left, err = s.Decrement(ctx, "k", 1000, hourly)
	require.NoError(t, err)
	assert.Zero(t, left)
}

func testResetClears(t *testing.T, s store.Store, _ func(time.Duration)) {
	ctx := context.Background()
	require.NoError(t, s.Reset(ctx, "never-written", hourly))
	assert.Zero(t, used(t, s, "never-written", hourly))

	require.True(t, increment(t, s, "k", 3, hourly))
	require.NoError(t, s.Reset(ctx, "k", hourly))
	assert.Zero(t, used(t, s, "k", hourly))
	assert.True(t, increment(t, s, "k", 3, hourly))
}

func testKeysAreIndependent(t *testing.T, s store.Store, _ func(time.Duration)) {
	require.True(t, increment(t, s, "a", 3, hourly))
	assert.Zero(t, used(t, s, "b", hourly))
	assert.True(t, increment(t, s, "b", 3, hourly))
	assert.False(t, increment(t, s, "a", 1, hourly))
}

// testScenario walks max=3, period=1h through increments, decay, decrement
// and reset.
func testScenario(t *testing.T, s store.Store, advance func(time.Duration)) {
	ctx := context.Background()

	assert.True(t, increment(t, s, "k", 1, hourly))
	assert.EqualValues(t, 1, used(t, s, "k", hourly))

	assert.True(t, increment(t, s, "k", 2, hourly))
	assert.EqualValues(t, 3, used(t, s, "k", hourly))

	assert.False(t, increment(t, s, "k", 1, hourly))
	assert.EqualValues(t, 3, used(t, s, "k", hourly))

	advance(30 * time.Minute)
	assert.EqualValues(t, 1, used(t, s, "k", hourly), "3 * (1 - 1800/3600) truncated")

	assert.True(t, increment(t, s, "k", 1, hourly))
	assert.EqualValues(t, 2, used(t, s, "k", hourly))

	advance(time.Hour)
	assert.Zero(t, used(t, s, "k", hourly))

	assert.True(t, increment(t, s, "k", 3, hourly))
	assert.EqualValues(t, 3, used(t, s, "k", hourly))

	_, err := s.Decrement(ctx, "k", 2, hourly)
	require.NoError(t, err)
	assert.EqualValues(t, 1, used(t, s, "k", hourly))

	require.NoError(t, s.Reset(ctx, "k", hourly))
	assert.Zero(t, used(t, s, "k", hourly))
}

func testConcurrentIncrements(t *testing.T, s store.Store, _ func(time.Duration)) {
	const workers = 50
	l := store.Limit{Max: 20, Period: time.Hour}

	var (
		mu       sync.Mutex
		accepted int
	)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			res, err := s.Increment(context.Background(), "shared", 1, l)
			if err != nil {
				return err
			}
			if res.Allowed {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 20, accepted)
	assert.EqualValues(t, 20, used(t, s, "shared", l))
}
