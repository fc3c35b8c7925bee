// Package redis provides a [store.Store] backed by Redis, for quotas shared by
// any number of processes. Each operation is a single Lua script evaluated by
// the server against its own clock.
package redis

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/ryhazerus/drl/store"
	"go.uber.org/zap"
)

// Compile-time interface check.
var _ store.Store = (*RedisStore)(nil)

// RedisStore is a Store backed by Redis. Each counter is stored as a Redis
// hash with fields "amount" and "timestamp". A TTL equal to the decay period
// is set on every write so idle keys are reclaimed by Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	cache  *ScriptCache
	logger *zap.Logger
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithPrefix sets the key prefix (default "drl:").
func WithPrefix(prefix string) Option {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// WithScriptCache injects the script cache used for this connection.
// Stores sharing one client may share one cache. The cache keeps its own
// logger; see WithCacheLogger.
func WithScriptCache(c *ScriptCache) Option {
	return func(r *RedisStore) {
		r.cache = c
	}
}

// WithLogger sets the logger used by the store and its script cache.
func WithLogger(l *zap.Logger) Option {
	return func(r *RedisStore) {
		r.logger = l
	}
}

// NewRedisStore creates a new Redis-backed store. The client may be a single
// node, cluster or ring client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: "drl:",
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.cache == nil {
		r.cache = NewScriptCache(WithCacheLogger(r.logger))
	}
	return r
}

// Increment atomically adds n to the decayed counter for key if it fits.
func (r *RedisStore) Increment(ctx context.Context, key string, n int64, l store.Limit) (store.Result, error) {
	res, err := r.run(ctx, "incr", key, n, l)
	if err != nil {
		return store.Result{}, fmt.Errorf("drl/store/redis: increment: %w", err)
	}
	return res, nil
}

// Decrement atomically subtracts n from the decayed counter for key.
func (r *RedisStore) Decrement(ctx context.Context, key string, n int64, l store.Limit) (float64, error) {
	res, err := r.run(ctx, "decr", key, n, l)
	if err != nil {
		return 0, fmt.Errorf("drl/store/redis: decrement: %w", err)
	}
	return res.Used, nil
}

// Peek returns the decayed counter for key without changing it.
func (r *RedisStore) Peek(ctx context.Context, key string, n int64, l store.Limit) (store.Result, error) {
	res, err := r.run(ctx, "peek", key, n, l)
	if err != nil {
		return store.Result{}, fmt.Errorf("drl/store/redis: peek: %w", err)
	}
	return res, nil
}

// Reset sets the counter for key to zero.
func (r *RedisStore) Reset(ctx context.Context, key string, l store.Limit) error {
	if _, err := r.run(ctx, "reset", key, 0, l); err != nil {
		return fmt.Errorf("drl/store/redis: reset: %w", err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) run(ctx context.Context, op, key string, n int64, l store.Limit) (store.Result, error) {
	ttl := int64(math.Ceil(float64(l.Period) / 1e6))
	vals, err := r.cache.Run(ctx, r.client, []string{r.prefix + key},
		op, n, l.Max, l.Period.Seconds(), ttl,
	).Slice()
	if err != nil {
		return store.Result{}, err
	}
	return parseResult(vals)
}

func parseResult(vals []interface{}) (store.Result, error) {
	if len(vals) != 2 {
		return store.Result{}, fmt.Errorf("unexpected script reply %v", vals)
	}
	allowed, ok := vals[0].(int64)
	if !ok {
		return store.Result{}, fmt.Errorf("unexpected allowed flag %T", vals[0])
	}
	raw, ok := vals[1].(string)
	if !ok {
		return store.Result{}, fmt.Errorf("unexpected amount %T", vals[1])
	}
	used, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return store.Result{}, fmt.Errorf("parse amount: %w", err)
	}
	return store.Result{Allowed: allowed == 1, Used: used}, nil
}
