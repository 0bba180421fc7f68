package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result describes the state of a key after a hit.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts per key inside a fixed window. Going over the limit
// blocks the key for the block duration.
type Limiter interface {
	Hit(ctx context.Context, key string) (Result, error)
	Blocked(ctx context.Context, key string) (time.Duration, bool, error)
	Reset(ctx context.Context, key string) error
}

type Options struct {
	Limit  int
	Window time.Duration
	Block  time.Duration
	Prefix string
}

type RedisLimiter struct {
	rdb  *redis.Client
	opts Options
}

func NewRedisLimiter(rdb *redis.Client, opts Options) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, opts: opts}
}

func (l *RedisLimiter) key(k string) string {
	return l.opts.Prefix + ":" + k
}

func (l *RedisLimiter) Blocked(ctx context.Context, k string) (time.Duration, bool, error) {
	blockKey := l.key(k) + ":blocked"

	ttl, err := l.rdb.TTL(ctx, blockKey).Result()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read block key: %w", err)
	}
	// -2 means the key does not exist
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

func (l *RedisLimiter) Hit(ctx context.Context, k string) (Result, error) {
	if ttl, blocked, err := l.Blocked(ctx, k); err != nil {
		return Result{}, err
	} else if blocked {
		return Result{Allowed: false, RetryAfter: ttl}, nil
	}

	key := l.key(k)

	// INCR and the window expiry go together so a counter never outlives its window
	var incr *redis.IntCmd
	if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.opts.Window)
		return nil
	}); err != nil {
		return Result{}, fmt.Errorf("failed to increment counter: %w", err)
	}
	count := incr.Val()

	if count > int64(l.opts.Limit) {
		if _, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key+":blocked", "1", l.opts.Block)
			pipe.Del(ctx, key)
			return nil
		}); err != nil {
			return Result{}, fmt.Errorf("failed to set block key: %w", err)
		}
		return Result{Allowed: false, RetryAfter: l.opts.Block}, nil
	}

	return Result{Allowed: true, Remaining: l.opts.Limit - int(count)}, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, k string) error {
	key := l.key(k)
	if err := l.rdb.Del(ctx, key, key+":blocked").Err(); err != nil {
		return fmt.Errorf("failed to reset limiter: %w", err)
	}
	return nil
}

type window struct {
	count        int
	expiresAt    time.Time
	blockedUntil time.Time
}

// MemoryLimiter is the single-process Limiter used when Redis is not configured.
type MemoryLimiter struct {
	mu      sync.Mutex
	opts    Options
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryLimiter(opts Options) *MemoryLimiter {
	return &MemoryLimiter{
		opts:    opts,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Blocked(ctx context.Context, key string) (time.Duration, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		return 0, false, nil
	}
	if now := l.now(); now.Before(w.blockedUntil) {
		return w.blockedUntil.Sub(now), true, nil
	}
	return 0, false, nil
}

func (l *MemoryLimiter) Hit(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	if now.Before(w.blockedUntil) {
		return Result{Allowed: false, RetryAfter: w.blockedUntil.Sub(now)}, nil
	}
	if !now.Before(w.expiresAt) {
		w.count = 0
		w.expiresAt = now.Add(l.opts.Window)
	}

	w.count++
	if w.count > l.opts.Limit {
		w.count = 0
		w.blockedUntil = now.Add(l.opts.Block)
		return Result{Allowed: false, RetryAfter: l.opts.Block}, nil
	}
	return Result{Allowed: true, Remaining: l.opts.Limit - w.count}, nil
}

func (l *MemoryLimiter) Reset(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.windows, key)
	return nil
}
