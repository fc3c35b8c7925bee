package redis

import (
	"context"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// counterScript performs one decaying-counter operation atomically. The clock
// is Redis' own TIME, never the caller's.
//
// KEYS[1] = counter key (hash with fields "amount" and "timestamp")
// ARGV[1] = operation: "incr", "decr", "peek" or "reset"
// ARGV[2] = amount
// ARGV[3] = max
// ARGV[4] = period in seconds
// ARGV[5] = key expiry in milliseconds
//
// Returns {allowed (0|1), used as a string}. Amounts are formatted with %.17g
// so they round-trip exactly; Lua's tostring keeps only 14 digits.
const counterScript = `
if redis.replicate_commands then
    redis.replicate_commands()
end

local key = KEYS[1]
local op = ARGV[1]
local n = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local period = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local t = redis.call("TIME")
local now = tonumber(t[1]) + tonumber(t[2]) / 1000000

local used = 0
local anchor = now
local stored = redis.call("HMGET", key, "amount", "timestamp")
if stored[1] and stored[2] then
    local ts = tonumber(stored[2])
    local elapsed = now - ts
    if elapsed <= 0 then
        used = tonumber(stored[1])
        anchor = ts
    elseif elapsed < period then
        used = tonumber(stored[1]) * (1 - elapsed / period)
    end
end

local function num(x)
    return string.format("%.17g", x)
end

local function write(amount)
    redis.call("HSET", key, "amount", num(amount), "timestamp", string.format("%.6f", anchor))
    if ttl > 0 then
        redis.call("PEXPIRE", key, ttl)
    end
end

if op == "incr" then
    if used + n > max then
        return {0, num(used)}
    end
    used = used + n
    write(used)
    return {1, num(used)}
elseif op == "decr" then
    used = math.max(0, used - n)
    write(used)
    return {1, num(used)}
elseif op == "peek" then
    if used + n > max then
        return {0, num(used)}
    end
    return {1, num(used)}
elseif op == "reset" then
    used = 0
    write(used)
    return {1, "0"}
end

return redis.error_reply("unknown drl operation " .. tostring(op))
`

// ScriptCache remembers whether a script body is known to a Redis server, so
// calls can go out as EVALSHA instead of shipping the whole body each time.
//
// The flag is set after the first successful EVAL and cleared when the server
// answers NOSCRIPT (e.g. after a restart or SCRIPT FLUSH). Callers racing on
// first use may each EVAL once; loading a script twice is harmless.
type ScriptCache struct {
	script *redis.Script
	loaded atomic.Bool
	logger *zap.Logger
}

// ScriptCacheOption configures a ScriptCache.
type ScriptCacheOption func(*ScriptCache)

// WithCacheLogger sets the logger that reports NOSCRIPT fallbacks.
func WithCacheLogger(l *zap.Logger) ScriptCacheOption {
	return func(c *ScriptCache) {
		c.logger = l
	}
}

// NewScriptCache creates an empty cache for the counter script. One cache may
// be shared by every RedisStore talking to the same server.
func NewScriptCache(opts ...ScriptCacheOption) *ScriptCache {
	c := &ScriptCache{
		script: redis.NewScript(counterScript),
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Hash returns the SHA1 content identifier of the script.
func (c *ScriptCache) Hash() string {
	return c.script.Hash()
}

// Loaded reports whether the script is believed to be cached by the server.
func (c *ScriptCache) Loaded() bool {
	return c.loaded.Load()
}

// Run executes the script, by hash when it is known to be loaded and by body
// otherwise. A NOSCRIPT reply is absorbed by one fallback EVAL whose result is
// returned in its place.
func (c *ScriptCache) Run(ctx context.Context, rdb redis.Scripter, keys []string, args ...interface{}) *redis.Cmd {
	if c.loaded.Load() {
		cmd := c.script.EvalSha(ctx, rdb, keys, args...)
		if !redis.HasErrorPrefix(cmd.Err(), "NOSCRIPT") {
			return cmd
		}
		c.loaded.Store(false)
		c.logger.Debug("script evicted by server, sending body", zap.String("sha", c.script.Hash()))
	}

	cmd := c.script.Eval(ctx, rdb, keys, args...)
	if cmd.Err() == nil {
		c.loaded.Store(true)
	}
	return cmd
}
