package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// Window is the fixed counting window.
const Window = time.Minute

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration // zero when allowed
}

// Limiter counts requests per key and window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// epochMinute returns the window index t falls in and the instant the next window starts.
func epochMinute(t time.Time) (int64, time.Time) {
	m := t.Unix() / int64(Window/time.Second)
	return m, time.Unix((m+1)*int64(Window/time.Second), 0)
}

// decide turns the post-increment count of the current window into a Decision.
func decide(count int64, limit int, now, resetAt time.Time) Decision {
	d := Decision{Limit: limit, ResetAt: resetAt}
	if count <= int64(limit) {
		d.Allowed = true
		d.Remaining = limit - int(count)
		return d
	}
	d.RetryAfter = resetAt.Sub(now)
	if d.RetryAfter < time.Second {
		d.RetryAfter = time.Second
	}
	return d
}

type bucket struct {
	window int64
	count  int64
}

// WindowLimiter is a process-local fixed window counter. Instances do not share counts,
// so N replicas behind a load balancer allow up to N*limit per key. Use RedisLimiter there.
type WindowLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	limit      int
	sweepEvery int
	requests   int
	nowFunc    func() time.Time
}

// NewWindowLimiter allows limit requests per key per minute and sweeps stale buckets every
// sweepEvery calls.
func NewWindowLimiter(limit, sweepEvery int) *WindowLimiter {
	if sweepEvery <= 0 {
		sweepEvery = 100
	}
	return &WindowLimiter{
		buckets:    make(map[string]*bucket),
		limit:      limit,
		sweepEvery: sweepEvery,
		nowFunc:    time.Now,
	}
}

func bucketKey(key string, window int64) string {
	return key + "|" + strconv.FormatInt(window, 10)
}

// Allow increments the bucket for (key, current minute) and reports whether the request fits.
func (l *WindowLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.nowFunc()
	window, resetAt := epochMinute(now)

	l.mu.Lock()
	l.requests++
	if l.requests%l.sweepEvery == 0 {
		l.sweep(window)
	}
	k := bucketKey(key, window)
	b, ok := l.buckets[k]
	if !ok {
		b = &bucket{window: window}
		l.buckets[k] = b
	}
	b.count++
	count := b.count
	l.mu.Unlock()

	return decide(count, l.limit, now, resetAt), nil
}

// sweep drops buckets older than the previous window. Caller holds mu.
func (l *WindowLimiter) sweep(current int64) {
	for k, b := range l.buckets {
		if b.window < current-1 {
			delete(l.buckets, k)
		}
	}
}

// Len reports the number of live buckets.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
