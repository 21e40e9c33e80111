package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/IshaanNene/trendscope/internal/config"
)

// Cache stores finished translations. Lookups never fail; a broken cache
// behaves like an empty one.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string)
	Close() error
}

// NewCache builds the cache named by cfg.Type.
func NewCache(cfg *config.CacheConfig, logger *slog.Logger) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryCache(cfg.TTL), nil
	case "redis":
		c, err := NewRedisCache(cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "none", "":
		return NopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown translate cache type %q", cfg.Type)
	}
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (string, bool) { return "", false }
func (NopCache) Set(context.Context, string, string) {}
func (NopCache) Close() error { return nil }

type memoryEntry struct {
	value   string
	expires time.Time
}

// MemoryCache is a process-local cache with a fixed TTL.
type MemoryCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates a MemoryCache. A zero TTL keeps entries forever.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return "", false
	}
	return e.value, true
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key, value string) {
	e := memoryEntry{value: value}
	if c.ttl > 0 {
		e.expires = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Close implements Cache.
func (c *MemoryCache) Close() error { return nil }

// Len returns the number of stored entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache shares translations between runs and hosts.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg *config.CacheConfig, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}

	logger.Info("translation cache connected", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With("component", "redis_cache"),
	}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return "", false
	}
	return v, true
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string) {
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Close implements Cache.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
