package drl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidAmount is returned when an amount is not a non-negative integer.
	// The store is never contacted in that case.
	ErrInvalidAmount = errors.New("drl: invalid amount")

	// ErrLimitExceeded is returned by Consume when the amount does not fit
	// under the target's quota.
	ErrLimitExceeded = errors.New("drl: rate limit exceeded")

	// ErrStoreUnavailable wraps every failure reported by the backing store.
	// Nothing is retried; retry policy belongs to the caller.
	ErrStoreUnavailable = errors.New("drl: store unavailable")

	// ErrInvalidTarget is returned when a target is constructed with an empty
	// scope or identifier, a non-positive max or a non-positive period.
	ErrInvalidTarget = errors.New("drl: invalid target")
)

// InvalidAmountError reports the rejected amount.
type InvalidAmountError struct {
	Amount string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("drl: invalid amount %s: must be a non-negative integer", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// ExceededError provides details about which target hit its limit and
// supports waiting until enough usage has decayed.
type ExceededError struct {
	Scope      string
	Identifier string
	Max        int64
	Amount     int64   // amount that was requested
	Used       float64 // decayed usage when the request was rejected

	// RetryAfter estimates how long until Amount would fit, assuming no
	// other writes. It is zero when Amount exceeds Max and can never fit.
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("drl: rate limit exceeded for %s/%s (%d+%d/%d)",
		e.Scope, e.Identifier, int64(e.Used), e.Amount, e.Max)
}

func (e *ExceededError) Unwrap() error {
	return ErrLimitExceeded
}

// Wait blocks until RetryAfter has passed or the context is cancelled. It
// returns the error itself when the amount can never fit.
func (e *ExceededError) Wait(ctx context.Context) error {
	if e.Amount > e.Max {
		return e
	}
	if e.RetryAfter <= 0 {
		return nil
	}
	t := time.NewTimer(e.RetryAfter)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAfter solves used*(1 - t/period) + n <= max for t.
func retryAfter(used float64, n, max int64, period time.Duration) time.Duration {
	if n > max || used <= 0 {
		return 0
	}
	frac := 1 - float64(max-n)/used
	if frac <= 0 {
		return 0
	}
	return time.Duration(frac * float64(period))
}
