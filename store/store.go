package store

import (
	"context"
	"time"
)

// Limit mirrors the quota of a drl.Target so the store package doesn't import
// the parent. Callers pass the ceiling and the decay period with every call.
type Limit struct {
	Max    int64
	Period time.Duration
}

// Result is the outcome of an atomic counter operation.
type Result struct {
	// Allowed reports whether the requested amount fits under Max.
	Allowed bool
	// Used is the decayed usage after the operation. It is unchanged when
	// an increment is rejected.
	Used float64
}

//go:generate mockgen -destination=storemock/store_mock.go -package=storemock github.com/ryhazerus/drl/store Store

// Store defines the interface for decaying counter backends.
//
// Every method must behave as one indivisible read-decay-compare-write on
// the key, and must take "now" from the store's own clock rather than from
// the caller.
type Store interface {
	// Increment adds n to the decayed usage of key when the sum stays within
	// l.Max, and leaves the counter untouched otherwise.
	Increment(ctx context.Context, key string, n int64, l Limit) (Result, error)

	// Decrement subtracts n from the decayed usage of key, flooring at zero,
	// and returns the resulting amount.
	Decrement(ctx context.Context, key string, n int64, l Limit) (float64, error)

	// Peek reports the decayed usage of key and whether n more would fit.
	// It never writes.
	Peek(ctx context.Context, key string, n int64, l Limit) (Result, error)

	// Reset sets the usage of key to zero.
	Reset(ctx context.Context, key string, l Limit) error

	// Close releases any resources held by the store.
	Close() error
}
