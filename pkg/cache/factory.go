package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	KindLRU     = "lru"     // golang-lru
	KindGoCache = "gocache" // go-cache
	KindRedis   = "redis"   // redis
	KindLayered = "layered" // lru in front of redis
)

// NewCache creates a cache instance based on configuration
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case KindLRU, "", "local":
		return NewLRUCache(config.Local), nil
	case KindGoCache:
		return NewGoCache(config.Local), nil
	case KindRedis:
		return NewRedisCache(config.Redis)
	case KindLayered:
		l2, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, err
		}
		return NewLayeredCache(NewLRUCache(config.Local), l2, config.Local.DefaultExpiration), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// layeredCache reads through a local L1 into a shared L2.
type layeredCache struct {
	local       Cache
	distributed Cache
	localTTL    time.Duration
}

// NewLayeredCache puts local in front of distributed.
func NewLayeredCache(local, distributed Cache, localTTL time.Duration) Cache {
	return &layeredCache{local: local, distributed: distributed, localTTL: localTTL}
}

// Get retrieves from local cache first, then from distributed cache and backfills local cache
func (lc *layeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := lc.local.Get(ctx, key); ok {
		return value, true
	}
	value, ok := lc.distributed.Get(ctx, key)
	if !ok {
		return nil, false
	}
	_ = lc.local.Set(ctx, key, value, lc.localTTL)
	return value, true
}

func (lc *layeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, value, lc.localTTL)
}

func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	return errors.Join(lc.local.Delete(ctx, key), lc.distributed.Delete(ctx, key))
}

func (lc *layeredCache) Clear(ctx context.Context) error {
	return errors.Join(lc.local.Clear(ctx), lc.distributed.Clear(ctx))
}

func (lc *layeredCache) Close() error {
	return errors.Join(lc.local.Close(), lc.distributed.Close())
}
