package cache

import (
	"fmt"
	"strings"
)

const (
	KindGoCache = "gocache"
	KindMemory  = "memory"
	KindLRU     = "lru"
	KindRedis   = "redis"
)

// NewCache creates a cache instance based on configuration
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", KindGoCache, KindMemory:
		return NewGoCache(config), nil
	case KindLRU:
		return NewLRUCache(config)
	case KindRedis:
		return NewRedisCache(config.Redis, config.DefaultExpiration)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}
