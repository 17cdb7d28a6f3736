package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qaforge/backend/pkg/hashutil"
	"github.com/qaforge/backend/pkg/logger"
)

// Entry is what the fetch cache stores per URL: the extracted text and the
// user agent that retrieved it. Timestamps are not cached; a hit gets a
// fresh one.
type Entry struct {
	Text      string `json:"text"`
	UserAgent string `json:"user_agent"`
}

// Cache maps an exact URL string to a previously fetched Entry. It is a
// best-effort optimization, not a lock: concurrent fetches of an uncached
// URL may both hit the network.
type Cache interface {
	Get(ctx context.Context, url string) (*Entry, bool, error)
	Set(ctx context.Context, url string, entry *Entry) error
	Clear(ctx context.Context) error
}

// RedisCache keys entries by scrape:<md5(url)>, mirroring the file-per-URL
// layout of a directory cache.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(host string, port int, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Scrape cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) key(url string) string {
	return "scrape:" + hashutil.URLHash(url)
}

func (c *RedisCache) Get(ctx context.Context, url string) (*Entry, bool, error) {
	data, err := c.client.Get(ctx, c.key(url)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read scrape cache: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached entry: %w", err)
	}

	logger.Debug("Scrape cache hit", zap.String("url", url))
	return &entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, url string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.key(url), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write scrape cache: %w", err)
	}

	return nil
}

func (c *RedisCache) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, "scrape:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Scrape cache cleared")
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// MemoryCache is the in-process fallback used when redis is disabled.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Entry)}
}

func (c *MemoryCache) Get(ctx context.Context, url string) (*Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[url]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, url string, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[url] = *entry
	return nil
}

func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
	return nil
}
