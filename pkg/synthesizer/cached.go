package synthesizer

import (
	"context"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"go.uber.org/zap"
)

// Cached keeps synthesized audio for fixed phrases such as the opening line,
// which is spoken on every call with the same persona.
type Cached struct {
	Service
	store  cache.Cache
	ttl    time.Duration
	only   map[string]struct{}
	logger *zap.Logger
}

// NewCached wraps svc. With no phrases every text is cached.
func NewCached(svc Service, store cache.Cache, ttl time.Duration, logger *zap.Logger, phrases ...string) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cached{Service: svc, store: store, ttl: ttl, logger: logger}
	if len(phrases) > 0 {
		c.only = make(map[string]struct{}, len(phrases))
		for _, p := range phrases {
			c.only[p] = struct{}{}
		}
	}
	return c
}

func (c *Cached) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if c.only != nil {
		if _, ok := c.only[text]; !ok {
			return c.Service.Synthesize(ctx, text)
		}
	}

	key := c.CacheKey(text)
	if v, ok := c.store.Get(ctx, key); ok {
		if pcm, ok := cache.As[[]byte](v); ok {
			c.logger.Debug("[TTS] cache hit", zap.String("key", key))
			return pcm, nil
		}
		if err := c.store.Delete(ctx, key); err != nil {
			c.logger.Warn("[TTS] cache evict failed", zap.String("key", key), zap.Error(err))
		}
	}

	pcm, err := c.Service.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, pcm, c.ttl); err != nil {
		c.logger.Warn("[TTS] cache store failed", zap.String("key", key), zap.Error(err))
	}
	return pcm, nil
}
