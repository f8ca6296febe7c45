// Package ratelimit implements the per-key quota the mock service enforces
// on submissions.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one quota check.
type Decision struct {
	Allowed bool
	// Remaining is the fractional token balance after this check.
	Remaining float64
	// RetryAfter is the wait until a denied submission would be admitted.
	// Zero when the request was allowed or when the bucket never refills.
	RetryAfter time.Duration
}

// TokenBucket is a redis-backed submission quota, one bucket per API key.
// Denials carry a retry hint so the service can answer with Retry-After.
type TokenBucket struct {
	client    *redis.Client
	keyPrefix string
	capacity  int
	refill    float64 // tokens per second
	ttl       time.Duration
}

// NewTokenBucket constructs a bucket with the provided capacity/refill.
func NewTokenBucket(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		client:    client,
		keyPrefix: "quota:",
		capacity:  capacity,
		refill:    refillPerSecond,
		ttl:       ttl,
	}
}

// Allow consumes one submission token for the API key if available.
func (b *TokenBucket) Allow(ctx context.Context, apiKey string) (Decision, error) {
	now := time.Now().UnixMilli()
	res, err := quotaScript.Run(ctx, b.client,
		[]string{b.keyPrefix + apiKey},
		b.capacity, b.refill, now, b.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 3 {
		return Decision{}, nil
	}

	d := Decision{Allowed: toInt64(arr[0]) == 1}
	if s, ok := arr[1].(string); ok {
		d.Remaining, _ = strconv.ParseFloat(s, 64)
	}
	if waitMs := toInt64(arr[2]); waitMs > 0 {
		d.RetryAfter = time.Duration(waitMs) * time.Millisecond
	}
	return d, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// The fractional balance is returned as a string because redis truncates Lua
// numbers to integers on the way out.
var quotaScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

tokens = math.min(capacity, tokens + math.max(0, now - last) / 1000 * refill)

local allowed = 0
local wait_ms = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
elseif refill > 0 then
  wait_ms = math.ceil((1 - tokens) * 1000 / refill)
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tostring(tokens), wait_ms}
`)
