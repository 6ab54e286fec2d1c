// Package ratelimit implements the sliding-window quota limiter: a
// per-client, per-session counter backed by Redis with an in-process
// fallback, built on the same redis/go-redis/v9 client the queue package
// uses for stream dispatch, generalized to sorted-set counting.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespace distinguishes the two independent quotas.
type Namespace string

const (
	NamespaceChat    Namespace = "chat"
	NamespaceContact Namespace = "contact_lead"
)

// Result reports whether a request is admitted and, when exceeded, how long
// the caller should wait before the window has room again.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter checks a sliding window of max requests per window for a
// (namespace, client_ip, session_id) key.
type Limiter interface {
	Check(ctx context.Context, namespace Namespace, clientIP, sessionID string, window time.Duration, max int) (Result, error)
}

func key(namespace Namespace, clientIP, sessionID string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", namespace, clientIP, sessionID)
}

// redisLimiter is the preferred backend: an atomic
// ZREMRANGEBYSCORE + ZCARD + ZADD + EXPIRE pipeline over a Redis sorted
// set, scored by request timestamp, so the window boundary never needs a
// separate cron sweep.
type redisLimiter struct {
	client redis.UniversalClient
	nowFn  func() time.Time
}

// NewRedis builds a Redis-backed limiter. nowFn defaults to time.Now; tests
// inject a deterministic clock.
func NewRedis(client redis.UniversalClient, nowFn func() time.Time) Limiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &redisLimiter{client: client, nowFn: nowFn}
}

func (l *redisLimiter) Check(ctx context.Context, namespace Namespace, clientIP, sessionID string, window time.Duration, max int) (Result, error) {
	k := key(namespace, clientIP, sessionID)
	now := l.nowFn()
	windowStart := now.Add(-window)
	member := fmt.Sprintf("%d-%d", now.UnixNano(), randSuffix())

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	card := pipe.ZCard(ctx, k)
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, k, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("ratelimit pipeline (key=%s): %w", k, err)
	}

	count := int(card.Val()) + 1 // +1 for the request just recorded
	if count > max {
		// The member we just added still counts against the window; undo it
		// so a rejected request doesn't consume quota.
		_ = l.client.ZRem(ctx, k, member).Err()
		oldest, err := l.oldestScore(ctx, k)
		retryAfter := window
		if err == nil && !oldest.IsZero() {
			retryAfter = window - now.Sub(oldest)
			if retryAfter < 0 {
				retryAfter = 0
			}
		}
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return Result{Allowed: true, Remaining: max - count}, nil
}

func (l *redisLimiter) oldestScore(ctx context.Context, k string) (time.Time, error) {
	vals, err := l.client.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil || len(vals) == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, int64(vals[0].Score)), nil
}

var suffixCounter uint64
var suffixMu sync.Mutex

// randSuffix disambiguates same-nanosecond members within one process;
// collisions only cost an extra ZADD no-op, never a correctness issue since
// the score (not the member) drives window membership.
func randSuffix() uint64 {
	suffixMu.Lock()
	defer suffixMu.Unlock()
	suffixCounter++
	return suffixCounter
}

// localLimiter is the single-replica fallback: an in-process ordered map of
// request timestamps per key, holding the same semantics as the Redis
// backend. Used when Redis is unavailable or unconfigured.
type localLimiter struct {
	mu    sync.Mutex
	hits  map[string][]time.Time
	nowFn func() time.Time
}

// NewLocal builds an in-process limiter. Only correct for a single replica.
func NewLocal(nowFn func() time.Time) Limiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &localLimiter{hits: make(map[string][]time.Time), nowFn: nowFn}
}

func (l *localLimiter) Check(_ context.Context, namespace Namespace, clientIP, sessionID string, window time.Duration, max int) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(namespace, clientIP, sessionID)
	now := l.nowFn()
	cutoff := now.Add(-window)

	kept := l.hits[k][:0]
	for _, t := range l.hits[k] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= max {
		retryAfter := window - now.Sub(kept[0])
		if retryAfter < 0 {
			retryAfter = 0
		}
		l.hits[k] = kept
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	kept = append(kept, now)
	l.hits[k] = kept
	return Result{Allowed: true, Remaining: max - len(kept)}, nil
}

// Fallback tries the Redis limiter first and falls back to a shared local
// limiter on any Redis error, logging nothing itself — callers decide
// whether a fallback is noteworthy.
type Fallback struct {
	primary  Limiter
	fallback Limiter
}

func NewFallback(primary, fallback Limiter) Limiter {
	return &Fallback{primary: primary, fallback: fallback}
}

func (f *Fallback) Check(ctx context.Context, namespace Namespace, clientIP, sessionID string, window time.Duration, max int) (Result, error) {
	res, err := f.primary.Check(ctx, namespace, clientIP, sessionID, window, max)
	if err != nil {
		return f.fallback.Check(ctx, namespace, clientIP, sessionID, window, max)
	}
	return res, nil
}
