package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stellarops/core/internal/xerrors"
)

// cacheTTL is the fixed TTL applied to WithFallback's optional result
// cache.
const cacheTTL = 15 * time.Minute

// Cache is the minimal interface with_fallback needs: get/set a byte blob
// by key with the fixed TTL applied by the caller. An in-memory
// implementation is the default; RedisCache lets a deployment share the
// fallback cache across processes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryCache is a process-local Cache, the default used when no Redis
// connection is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryCache builds an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

// Get returns the cached value for key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the given TTL.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
}

// RedisCache backs the fallback cache with a shared Redis instance so
// multiple processes serve the same degraded-mode reads.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing *redis.Client. keyPrefix namespaces keys
// (e.g. "stellarops:resilience:").
func NewRedisCache(client *redis.Client, keyPrefix string) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix}
}

// Get returns the cached value for key if present.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	v, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

// Set stores value under key with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.client.Set(ctx, c.prefix+key, value, ttl)
}

// WithFallback runs an operation under a named breaker with a
// cache-then-fallback degradation policy: on success it optionally caches
// the encoded result; on circuit_open or timeout it tries the cache, then
// the fallback; any other error is returned as-is.
type WithFallback struct {
	Breakers *Registry
	Cache    Cache
}

// NewWithFallback builds a WithFallback helper. cache may be nil, in which
// case a fresh process-local MemoryCache is used.
func NewWithFallback(breakers *Registry, cache Cache) *WithFallback {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &WithFallback{Breakers: breakers, Cache: cache}
}

// Options configures a single WithFallback.Run call.
type Options struct {
	BreakerName string
	CacheKey    string
	// Encode/Decode let callers round-trip a typed result through the byte
	// cache without WithFallback needing to know the type.
	Encode func(result any) ([]byte, error)
	Decode func(data []byte) (any, error)
	// Fallback produces a result when the breaker is open/timed out and no
	// cached value is available.
	Fallback func(ctx context.Context) (any, error)
}

// Run executes primary under the named breaker, applying the cache/fallback
// policy on circuit_open or timeout.
func (w *WithFallback) Run(ctx context.Context, opts Options, primary func(ctx context.Context) (any, error)) (any, error) {
	var result any
	err := w.Breakers.Call(ctx, opts.BreakerName, func(ctx context.Context) error {
		r, err := primary(ctx)
		if err != nil {
			return err
		}
		result = r
		if opts.CacheKey != "" && opts.Encode != nil {
			if blob, encErr := opts.Encode(r); encErr == nil {
				w.Cache.Set(ctx, opts.CacheKey, blob, cacheTTL)
			}
		}
		return nil
	}, nil)

	if err == nil {
		return result, nil
	}

	degraded := isDegradedErr(err)
	if !degraded {
		return nil, err
	}

	if opts.CacheKey != "" && opts.Decode != nil {
		if blob, ok := w.Cache.Get(ctx, opts.CacheKey); ok {
			if decoded, decErr := opts.Decode(blob); decErr == nil {
				return decoded, nil
			}
		}
	}

	if opts.Fallback != nil {
		return opts.Fallback(ctx)
	}
	return nil, err
}

func isDegradedErr(err error) bool {
	kind, ok := xerrors.KindOf(err)
	if !ok {
		return false
	}
	return kind == xerrors.KindCircuitOpen || kind == xerrors.KindTimeout
}
