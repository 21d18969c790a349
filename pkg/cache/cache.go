package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache stores opaque byte values with a TTL.
type Cache interface {
	// Get retrieves a cached value
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value; a zero ttl uses the backend default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a cached value
	Delete(ctx context.Context, key string) error

	// Clear removes all cached values
	Clear(ctx context.Context) error

	// Close releases the backend
	Close() error
}

// Config defines cache configuration
type Config struct {
	// Cache type: "lru", "gocache", "redis" or "layered"
	Type string `json:"type" yaml:"type"`

	Redis RedisConfig `json:"redis" yaml:"redis"`
	Local LocalConfig `json:"local" yaml:"local"`
}

// RedisConfig defines Redis configuration
type RedisConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password" yaml:"password"`
	DB           int           `json:"db" yaml:"db"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	// KeyPrefix namespaces every key written by this process
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// LocalConfig defines in-process cache configuration
type LocalConfig struct {
	// Maximum number of cache items (lru only)
	MaxSize int `json:"max_size" yaml:"max_size"`

	// Default expiration time
	DefaultExpiration time.Duration `json:"default_expiration" yaml:"default_expiration"`

	// Cleanup interval (gocache only)
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
}

// GetJSON decodes a cached JSON value into out.
func GetJSON(ctx context.Context, c Cache, key string, out any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// SetJSON encodes value as JSON and stores it.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, ttl)
}
