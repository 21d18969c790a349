package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// lruCache is a size bounded in-process cache. Entries share one TTL, so a
// per call ttl shorter than the default is not honoured.
type lruCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRUCache creates a bounded cache backed by golang-lru.
func NewLRUCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1000
	}
	ttl := config.DefaultExpiration
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &lruCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *lruCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.lru.Get(key)
}

func (c *lruCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.lru.Add(key, append([]byte(nil), value...))
	return nil
}

func (c *lruCache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

func (c *lruCache) Clear(_ context.Context) error {
	c.lru.Purge()
	return nil
}

func (c *lruCache) Close() error {
	c.lru.Purge()
	return nil
}
