// Package drl (Decaying Rate Limiter) enforces a usage quota shared by any
// number of uncoordinated processes. It answers "has this target used more
// than max units within the last period?" without any caller holding a lock:
// the read-decay-compare-write step runs atomically inside the store.
//
// # Key Concepts
//
//   - [Target] is one rate-limited entity, named by a scope and an identifier,
//     with a quota (max) and a decay period.
//   - Usage decays continuously: a stored amount shrinks linearly to zero over
//     one period since its last write, so capacity frees up gradually instead
//     of resetting at a window boundary.
//   - [store.Store] is the counter backend. An in-memory store is used by
//     default; store/redis shares quotas across processes and a SQLite store
//     keeps them across restarts on a single host.
//
// # Quick Start
//
//	limiter := drl.New(drl.WithStore(redis.NewRedisStore(client)))
//	target, err := limiter.Target("api", "user-42", 100, time.Hour)
//	if err != nil {
//		return err
//	}
//
//	ok, err := target.Increment(ctx, 1)
//
//	// Or fail with *ExceededError when over quota.
//	err = target.Consume(ctx, 5)
//
// Amounts are non-negative integers. Inputs that arrive as text or floats go
// through [ParseAmount] and [AmountFromFloat].
//
// Store failures are returned wrapped in [ErrStoreUnavailable] and are never
// retried by this package.
package drl
