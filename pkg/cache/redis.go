package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache shares job records and status snapshots between workers.
// Values are stored as JSON and come back as json.RawMessage, see As.
type redisCache struct {
	client            *redis.Client
	prefix            string
	defaultExpiration time.Duration
}

// NewRedisCache connects and pings the server before returning
func NewRedisCache(config RedisConfig, defaultExpiration time.Duration) (Cache, error) {
	if config.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		PoolSize:    config.PoolSize,
		DialTimeout: config.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisCache{
		client:            client,
		prefix:            config.KeyPrefix,
		defaultExpiration: defaultExpiration,
	}, nil
}

func (rc *redisCache) key(k string) string { return rc.prefix + k }

func (rc *redisCache) Get(ctx context.Context, key string) (interface{}, bool) {
	b, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return json.RawMessage(b), true
}

func (rc *redisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration == 0 {
		expiration = rc.defaultExpiration
	}
	if expiration < 0 {
		expiration = 0
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	return rc.client.Set(ctx, rc.key(key), data, expiration).Err()
}

func (rc *redisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, rc.key(key)).Err()
}

func (rc *redisCache) Close() error {
	return rc.client.Close()
}
