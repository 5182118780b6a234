// Package cache stores finished analyses in Redis keyed by content hash, so
// re-analyzing the same text in the same mode skips the providers entirely.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"veritas/internal/provider"
)

const keyPrefix = "analysis:"

// Key derives the cache key for a text/mode pair. The same derivation keys
// the history table, so a cache entry and its history row always agree.
func Key(text, mode string) string {
	sum := sha256.Sum256([]byte(text + ":" + mode))
	return hex.EncodeToString(sum[:])
}

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr string, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &Cache{client: client, ttl: ttl}, nil
}

// Get returns the cached analysis for key, reporting a miss without error.
func (c *Cache) Get(ctx context.Context, key string) (*provider.Analysis, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	var a provider.Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return &a, true, nil
}

// Set stores the analysis under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, a *provider.Analysis) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}
