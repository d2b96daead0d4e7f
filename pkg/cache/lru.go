package cache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	value   interface{}
	expires time.Time
}

func (e lruEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// lruCache is a size-bounded in-process cache. Expired entries are dropped
// lazily on read.
type lruCache struct {
	cache             *lru.Cache[string, lruEntry]
	defaultExpiration time.Duration
}

// NewLRUCache creates a cache holding at most config.Size entries
func NewLRUCache(config Config) (Cache, error) {
	if config.Size <= 0 {
		return nil, errors.New("lru cache size must be positive")
	}
	c, err := lru.New[string, lruEntry](config.Size)
	if err != nil {
		return nil, err
	}
	return &lruCache{cache: c, defaultExpiration: config.DefaultExpiration}, nil
}

func (lc *lruCache) lookup(key string) (lruEntry, bool) {
	e, ok := lc.cache.Get(key)
	if !ok {
		return lruEntry{}, false
	}
	if e.expired(time.Now()) {
		lc.cache.Remove(key)
		return lruEntry{}, false
	}
	return e, true
}

func (lc *lruCache) Get(ctx context.Context, key string) (interface{}, bool) {
	e, ok := lc.lookup(key)
	return e.value, ok
}

func (lc *lruCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration == 0 {
		expiration = lc.defaultExpiration
	}
	e := lruEntry{value: value}
	if expiration > 0 {
		e.expires = time.Now().Add(expiration)
	}
	lc.cache.Add(key, e)
	return nil
}

func (lc *lruCache) Delete(ctx context.Context, key string) error {
	lc.cache.Remove(key)
	return nil
}

func (lc *lruCache) Close() error {
	return nil
}
