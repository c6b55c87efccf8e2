// Package ratelimit は認証エンドポイント向けのレート制限を提供します。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result は1回の判定結果です。
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Limit     int
}

// RetryAfter は次に許可されるまでの秒数 (切り上げ、最小1) です。
func (r *Result) RetryAfter(now time.Time) int {
	d := r.ResetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// Limiter はキーごとのリクエスト数を制限します。
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// MemoryLimiter はプロセス内の固定ウィンドウ方式のLimiterです。
// 単一インスタンスでの運用を想定しています。
type MemoryLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	sweepAt int

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// defaultSweepAt はこの数を超えるまで期限切れのバケットを掃除しません。
const defaultSweepAt = 1024

type bucket struct {
	count int
	start time.Time
}

// NewMemoryLimiter は window ごとに limit 回まで許可するLimiterを作成します。
func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		sweepAt: defaultSweepAt,
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.start) >= l.window {
		b = &bucket{start: now}
		l.buckets[key] = b
		l.maybeSweep(now)
	}

	res := &Result{Limit: l.limit, ResetAt: b.start.Add(l.window)}
	if b.count >= l.limit {
		return res, nil
	}
	b.count++
	res.Allowed = true
	res.Remaining = l.limit - b.count
	return res, nil
}

// maybeSweep はバケット数が sweepAt を超えたときだけ、1ウィンドウに最大1回掃除します。
// 呼び出し側でロックを保持していること。
func (l *MemoryLimiter) maybeSweep(now time.Time) {
	if len(l.buckets) <= l.sweepAt || now.Sub(l.lastSweep) < l.window {
		return
	}
	l.lastSweep = now
	l.sweep(now)
}

// sweep は期限切れのバケットを削除します。呼び出し側でロックを保持していること。
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.start) >= l.window {
			delete(l.buckets, k)
		}
	}
}
