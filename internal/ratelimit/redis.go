package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/config"
)

const keyPrefix = "swagger_mcp:ratelimit:"

// slidingWindowScript keeps one ZSET per client keyed by request time and
// answers {allowed, count, remaining, retry_after_ms} in a single round trip.
const slidingWindowScript = `
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local current = redis.call('ZCARD', key)

if current < limit then
    redis.call('ZADD', key, now, now .. ':' .. redis.call('INCR', key .. ':seq'))
    redis.call('PEXPIRE', key, window)
    redis.call('PEXPIRE', key .. ':seq', window)
    return {1, current + 1, limit - current - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = 0
if oldest[2] then
    retry = tonumber(oldest[2]) + window - now
end
return {0, current, 0, retry}
`

// RedisLimiter shares one sliding window per client across server instances.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	limit  int
	window time.Duration
}

// NewRedisLimiter connects to Redis and verifies the connection before use.
func NewRedisLimiter(cfg config.RateLimitConfig) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return &RedisLimiter{
		client: client,
		script: redis.NewScript(slidingWindowScript),
		limit:  cfg.RequestsPerMinute,
		window: time.Minute,
	}, nil
}

// Allow runs the sliding-window script for one client key.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (*Decision, error) {
	result, err := r.script.Run(ctx, r.client, []string{keyPrefix + key},
		r.limit, r.window.Milliseconds(), time.Now().UnixMilli()).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result %v", result)
	}

	decision := &Decision{
		Allowed:   asInt64(values[0]) == 1,
		Limit:     r.limit,
		Remaining: int(asInt64(values[2])),
	}
	if retry := asInt64(values[3]); retry > 0 {
		decision.RetryAfter = time.Duration(retry) * time.Millisecond
	}
	return decision, nil
}

// Close releases the Redis connection pool.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	default:
		return 0
	}
}
