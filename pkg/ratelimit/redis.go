package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// INCR and expiry-on-first-increment execute as one script, so the whole
// window update is a single atomic round-trip. Only the first increment
// sets the expiry; concurrent first requests race harmlessly because
// INCR serializes them and exactly one observes count==1.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares one counter per identity across all gateway
// instances. Store failures surface as ErrStoreUnavailable rather than
// degrading into a per-process decision.
type RedisLimiter struct {
	Client *redis.Client
	Window time.Duration
	Prefix string
}

func NewRedis(client *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		Client: client,
		Window: window,
		Prefix: "ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Decision, error) {
	if limit <= 0 {
		limit = 1
	}
	if l.Client == nil {
		return Decision{}, fmt.Errorf("%w: no client", ErrStoreUnavailable)
	}
	res, err := rateLimitScript.Run(ctx, l.Client, []string{l.Prefix + key}, l.Window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return Decision{}, fmt.Errorf("%w: malformed script reply %T", ErrStoreUnavailable, res)
	}
	count, _ := vals[0].(int64)
	ttlMS, _ := vals[1].(int64)
	if ttlMS < 0 {
		ttlMS = l.Window.Milliseconds()
	}
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(count) <= limit,
		Count:     int(count),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Now().UTC().Add(time.Duration(ttlMS) * time.Millisecond),
	}, nil
}

func (l *RedisLimiter) Peek(ctx context.Context, key string) (int, error) {
	if l.Client == nil {
		return 0, fmt.Errorf("%w: no client", ErrStoreUnavailable)
	}
	raw, err := l.Client.Get(ctx, l.Prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed counter %q", ErrStoreUnavailable, raw)
	}
	return count, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if l.Client == nil {
		return fmt.Errorf("%w: no client", ErrStoreUnavailable)
	}
	if err := l.Client.Del(ctx, l.Prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
