package guard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a caller exceeds either the window cap
// or the burst cap.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter admits or rejects a request for a key (user or tenant id).
type Limiter interface {
	Allow(ctx context.Context, key string) error
}

// LimitConfig holds the sliding-window parameters.
type LimitConfig struct {
	Window      time.Duration // length of the sliding window
	MaxRequests int           // cap over the full window
	Burst       int           // cap over the last BurstWindow
	BurstWindow time.Duration
	MaxKeys     int // idle-entry eviction threshold for the in-memory limiter
}

// DefaultLimitConfig returns the default limiter parameters.
func DefaultLimitConfig() LimitConfig {
	return LimitConfig{
		Window:      time.Minute,
		MaxRequests: 30,
		Burst:       5,
		BurstWindow: 2 * time.Second,
		MaxKeys:     10000,
	}
}

// MemoryLimiter is a process-local sliding-window limiter. Safe for
// concurrent use. Idle entries are evicted best-effort once the key
// count passes MaxKeys, so memory stays bounded under key churn.
type MemoryLimiter struct {
	cfg LimitConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string][]time.Time
}

// NewMemoryLimiter creates an in-memory limiter.
func NewMemoryLimiter(cfg LimitConfig) *MemoryLimiter {
	return &MemoryLimiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string][]time.Time),
	}
}

// Allow records the request and enforces both caps atomically.
func (l *MemoryLimiter) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	stamps := l.entries[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.cfg.MaxRequests {
		l.entries[key] = live
		return fmt.Errorf("window cap %d reached for %q: %w", l.cfg.MaxRequests, key, ErrRateLimited)
	}

	burstCutoff := now.Add(-l.cfg.BurstWindow)
	recent := 0
	for _, ts := range live {
		if ts.After(burstCutoff) {
			recent++
		}
	}
	if recent >= l.cfg.Burst {
		l.entries[key] = live
		return fmt.Errorf("burst cap %d reached for %q: %w", l.cfg.Burst, key, ErrRateLimited)
	}

	l.entries[key] = append(live, now)

	if len(l.entries) > l.cfg.MaxKeys {
		l.evictIdleLocked(cutoff)
	}
	return nil
}

// evictIdleLocked drops keys whose newest request predates the window,
// then oldest-active keys until the map fits again. Best effort, bounded
// by one pass over the map.
func (l *MemoryLimiter) evictIdleLocked(cutoff time.Time) {
	type lastSeen struct {
		key string
		ts  time.Time
	}
	active := make([]lastSeen, 0, len(l.entries))

	for key, stamps := range l.entries {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.entries, key)
			continue
		}
		active = append(active, lastSeen{key, stamps[len(stamps)-1]})
	}

	if len(l.entries) <= l.cfg.MaxKeys {
		return
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ts.Before(active[j].ts) })
	for _, entry := range active {
		if len(l.entries) <= l.cfg.MaxKeys {
			break
		}
		delete(l.entries, entry.key)
	}
}

// RedisLimiter enforces the same sliding window against a shared redis
// sorted set, for deployments with more than one API replica.
type RedisLimiter struct {
	cfg    LimitConfig
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter creates a redis-backed limiter.
func NewRedisLimiter(cfg LimitConfig, client redis.UniversalClient, prefix string) *RedisLimiter {
	return &RedisLimiter{cfg: cfg, client: client, prefix: prefix}
}

// Allow trims the window, counts it, and records the request. The count
// and insert are not a single atomic unit, so a narrow race can admit
// one extra request; acceptable for an abuse guard.
func (l *RedisLimiter) Allow(ctx context.Context, key string) error {
	now := time.Now()
	redisKey := l.prefix + ":" + key

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", now.Add(-l.cfg.Window).UnixNano()))
	windowCount := pipe.ZCard(ctx, redisKey)
	burstCount := pipe.ZCount(ctx, redisKey, fmt.Sprintf("%d", now.Add(-l.cfg.BurstWindow).UnixNano()), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit window query: %w", err)
	}

	if windowCount.Val() >= int64(l.cfg.MaxRequests) {
		return fmt.Errorf("window cap %d reached for %q: %w", l.cfg.MaxRequests, key, ErrRateLimited)
	}
	if burstCount.Val() >= int64(l.cfg.Burst) {
		return fmt.Errorf("burst cap %d reached for %q: %w", l.cfg.Burst, key, ErrRateLimited)
	}

	record := l.client.TxPipeline()
	record.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	record.Expire(ctx, redisKey, l.cfg.Window)
	if _, err := record.Exec(ctx); err != nil {
		return fmt.Errorf("rate limit record: %w", err)
	}
	return nil
}
