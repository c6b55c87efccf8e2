package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow はソート済みセットで直近 window 内のリクエストを数えます。
// 取り出しと追加を1回の呼び出しで行うため、複数インスタンスから使っても数え漏れがありません。
// KEYS[1] がソート済みセット、KEYS[2] がメンバーを一意にする連番です。
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local current = redis.call('ZCARD', key)

	if current < limit then
		local counter = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local ttl = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, ttl)
		redis.call('EXPIRE', counter_key, ttl)
		return {1, limit - current - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local reset_at = 0
	if oldest and #oldest >= 2 then
		reset_at = tonumber(oldest[2]) + window_ms
	end
	return {0, 0, reset_at}
`)

// RedisLimiter は Redis を使うスライディングウィンドウ方式のLimiterです。
type RedisLimiter struct {
	client    redis.Scripter
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewRedisLimiter は新しいRedisLimiterを作成します。
func NewRedisLimiter(client redis.Scripter, keyPrefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := l.window.Milliseconds()

	out, err := slidingWindow.Run(ctx, l.client, l.keys(key),
		nowMs, nowMs-windowMs, l.limit, windowMs).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("redis script error: %w", err)
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("unexpected Redis response length: %d", len(out))
	}

	res := &Result{
		Allowed:   out[0] == 1,
		Remaining: int(out[1]),
		Limit:     l.limit,
		ResetAt:   now.Add(l.window),
	}
	if out[2] > 0 {
		res.ResetAt = time.UnixMilli(out[2])
	}
	return res, nil
}

// keys はスクリプトに渡す2つのキーを返します。
// ハッシュタグで同じスロットに置くため、Redis Cluster でも1回の呼び出しで扱えます。
func (l *RedisLimiter) keys(key string) []string {
	base := l.keyPrefix + "{" + key + "}"
	return []string{base, base + ":seq"}
}
