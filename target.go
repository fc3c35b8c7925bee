package drl

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ryhazerus/drl/store"
	"go.uber.org/zap"
)

// Target is one rate-limited entity: an identifier within a scope, with its
// own max and decay period. It is safe for concurrent use; it holds no mutable
// state of its own.
type Target struct {
	limiter    *Limiter
	scope      string
	identifier string
	limit      store.Limit
	key        string
}

// Scope returns the namespace of the target.
func (t *Target) Scope() string { return t.scope }

// Identifier returns the entity within the scope.
func (t *Target) Identifier() string { return t.identifier }

// Max returns the quota ceiling.
func (t *Target) Max() int64 { return t.limit.Max }

// Period returns the time over which usage decays to zero.
func (t *Target) Period() time.Duration { return t.limit.Period }

// Key returns the store key of the target.
func (t *Target) Key() string { return t.key }

// Increment records n units of usage if they fit under the quota and reports
// whether they did. A rejected increment changes nothing.
func (t *Target) Increment(ctx context.Context, n int64) (bool, error) {
	if err := validateAmount(n); err != nil {
		return false, err
	}
	res, err := t.increment(ctx, n)
	if err != nil {
		return false, err
	}
	if !res.Allowed {
		t.exceeded(n, res.Used)
	}
	return res.Allowed, nil
}

// Consume is Increment that fails with *ExceededError instead of returning
// false when n does not fit.
func (t *Target) Consume(ctx context.Context, n int64) error {
	if err := validateAmount(n); err != nil {
		return err
	}
	res, err := t.increment(ctx, n)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return t.exceeded(n, res.Used)
	}
	return nil
}

// Exceeded reports whether n more units would exceed the quota right now.
// It never changes usage.
func (t *Target) Exceeded(ctx context.Context, n int64) (bool, error) {
	if err := validateAmount(n); err != nil {
		return false, err
	}
	res, err := t.peek(ctx, "exceeded", n)
	if err != nil {
		return false, err
	}
	return !res.Allowed, nil
}

// Used returns the current decayed usage, truncated toward zero. A target
// that was never incremented reports 0.
func (t *Target) Used(ctx context.Context) (int64, error) {
	res, err := t.peek(ctx, "used", 0)
	if err != nil {
		return 0, err
	}
	return int64(math.Trunc(res.Used)), nil
}

// Reset clears usage to zero.
func (t *Target) Reset(ctx context.Context) error {
	start := time.Now()
	err := t.limiter.store.Reset(ctx, t.key, t.limit)
	t.observe("reset", start, err, "ok")
	if err != nil {
		return t.storeError("reset", err)
	}
	t.limiter.logger.Debug("usage reset", t.fields("reset")...)
	return nil
}

// Decrement gives back n units of usage, flooring at zero. It never fails
// for lack of quota and is meant for reconciling over-counted usage, such as
// an action that was counted and then cancelled. The decay restarts from the
// moment of the decrement.
func (t *Target) Decrement(ctx context.Context, n int64) error {
	if err := validateAmount(n); err != nil {
		return err
	}
	start := time.Now()
	used, err := t.limiter.store.Decrement(ctx, t.key, n, t.limit)
	t.observe("decrement", start, err, "ok")
	if err != nil {
		return t.storeError("decrement", err)
	}
	t.limiter.logger.Debug("usage decremented",
		append(t.fields("decrement"), zap.Int64("amount", n), zap.Float64("used", used))...)
	return nil
}

func (t *Target) increment(ctx context.Context, n int64) (store.Result, error) {
	start := time.Now()
	res, err := t.limiter.store.Increment(ctx, t.key, n, t.limit)
	t.observe("increment", start, err, outcome(res.Allowed))
	if err != nil {
		return store.Result{}, t.storeError("increment", err)
	}
	t.limiter.logger.Debug("usage incremented",
		append(t.fields("increment"), zap.Int64("amount", n), zap.Bool("allowed", res.Allowed), zap.Float64("used", res.Used))...)
	return res, nil
}

func (t *Target) peek(ctx context.Context, op string, n int64) (store.Result, error) {
	start := time.Now()
	res, err := t.limiter.store.Peek(ctx, t.key, n, t.limit)
	t.observe(op, start, err, outcome(res.Allowed))
	if err != nil {
		return store.Result{}, t.storeError(op, err)
	}
	return res, nil
}

func (t *Target) exceeded(n int64, used float64) *ExceededError {
	e := &ExceededError{
		Scope:      t.scope,
		Identifier: t.identifier,
		Max:        t.limit.Max,
		Amount:     n,
		Used:       used,
		RetryAfter: retryAfter(used, n, t.limit.Max, t.limit.Period),
	}
	if t.limiter.onExceeded != nil {
		t.limiter.onExceeded(e)
	}
	return e
}

func (t *Target) storeError(op string, err error) error {
	t.limiter.logger.Warn("store call failed", append(t.fields(op), zap.Error(err))...)
	return fmt.Errorf("drl: %s %s: %w: %w", op, t.key, ErrStoreUnavailable, err)
}

func (t *Target) observe(op string, start time.Time, err error, result string) {
	if err != nil {
		result = "error"
	}
	r := t.limiter.recorder
	r.Add(MetricCall, 1, map[string]string{"op": op, "result": result})
	r.Observe(MetricLatency, time.Since(start).Seconds(), map[string]string{"op": op})
}

func (t *Target) fields(op string) []zap.Field {
	return []zap.Field{
		zap.String("scope", t.scope),
		zap.String("identifier", t.identifier),
		zap.String("op", op),
	}
}

func outcome(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "rejected"
}
