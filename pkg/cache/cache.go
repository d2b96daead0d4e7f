package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the small key/value surface the worker needs: synthesized audio
// for opening lines and the latest room status snapshots.
type Cache interface {
	// Get retrieves a cached value
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value, zero expiration means the configured default
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	Delete(ctx context.Context, key string) error

	Close() error
}

// Config defines cache configuration
type Config struct {
	// Cache type: gocache (alias memory), lru or redis
	Type string

	DefaultExpiration time.Duration
	CleanupInterval   time.Duration

	// Size bounds the lru cache
	Size int

	Redis RedisConfig
}

// RedisConfig defines Redis configuration
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
	// KeyPrefix namespaces every key so workers can share a database
	KeyPrefix string
}

// DefaultConfig returns an in-memory cache holding entries for 30 minutes.
func DefaultConfig() Config {
	return Config{
		Type:              KindGoCache,
		DefaultExpiration: 30 * time.Minute,
		CleanupInterval:   10 * time.Minute,
		Size:              1024,
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    10,
			DialTimeout: 5 * time.Second,
			KeyPrefix:   "lingcollect:",
		},
	}
}

// As converts a cached value to T. Remote backends hand values back as
// JSON, which is decoded into T here.
func As[T any](v interface{}) (T, bool) {
	var zero T
	switch x := v.(type) {
	case T:
		return x, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(x, &out); err != nil {
			return zero, false
		}
		return out, true
	}
	return zero, false
}
