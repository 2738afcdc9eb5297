// Package cache provides Redis-backed caching with an in-memory fallback.
// When Redis is disabled or unavailable the cache degrades to a local map,
// so callers never need to special-case a missing Redis deployment.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Config holds the Redis connection settings.
type Config struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

// Cache wraps an optional Redis client and a local in-memory store.
type Cache struct {
	client *redis.Client
	log    zerolog.Logger

	mu           sync.RWMutex
	mem          map[string]memEntry
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// New creates a Cache. If cfg.Enabled is false no Redis connection is
// attempted and the cache runs purely in memory.
func New(cfg Config, log zerolog.Logger) *Cache {
	c := &Cache{
		log:           log,
		mem:           make(map[string]memEntry),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	if !cfg.Enabled {
		log.Info().Msg("redis disabled, using in-memory cache")
		return c
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	c.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("address", cfg.Address).Msg("redis unreachable, falling back to in-memory cache")
		return c
	}

	c.healthy = true
	c.lastCheck = time.Now()
	log.Info().Str("address", cfg.Address).Msg("redis connected")
	return c
}

// IsHealthy reports whether Redis is currently usable.
func (c *Cache) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.healthy
}

func (c *Cache) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failureCount++
	if c.failureCount >= c.maxFailures && c.healthy {
		c.log.Warn().Int("failures", c.failureCount).Msg("redis marked unhealthy, switching to in-memory cache")
		c.healthy = false
	}
}

func (c *Cache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.healthy && c.client != nil {
		c.log.Info().Msg("redis recovered")
	}
	c.healthy = true
	c.failureCount = 0
	c.lastCheck = time.Now()
}

// checkHealth re-pings Redis in the background once the check interval
// has elapsed since the last known-good call.
func (c *Cache) checkHealth() {
	c.mu.RLock()
	shouldCheck := c.client != nil && !c.healthy && time.Since(c.lastCheck) >= c.checkInterval
	c.mu.RUnlock()
	if !shouldCheck {
		return
	}

	c.mu.Lock()
	c.lastCheck = time.Now()
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.client.Ping(ctx).Err(); err == nil {
			c.recordSuccess()
		}
	}()
}

// GetJSON retrieves a cached JSON value into dest. Returns false on a miss.
func (c *Cache) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	c.checkHealth()

	if c.IsHealthy() {
		data, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			c.recordSuccess()
			return json.Unmarshal(data, dest) == nil
		}
		if err != redis.Nil {
			c.recordFailure()
		}
	}

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return false
	}
	return json.Unmarshal(entry.data, dest) == nil
}

// SetJSON stores a JSON value under key with the given TTL. The value is
// always written to the in-memory store so reads survive a Redis outage.
func (c *Cache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	c.mu.Lock()
	c.mem[key] = memEntry{data: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()

	if c.IsHealthy() {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			c.recordFailure()
			return fmt.Errorf("redis set failed: %w", err)
		}
		c.recordSuccess()
	}
	return nil
}

// Delete removes a key from both stores.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()

	if c.IsHealthy() {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			c.recordFailure()
		}
	}
}

// Close releases the Redis connection if one was established.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
