package synthesizer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"go.uber.org/zap"
)

// Service renders text as 16-bit mono PCM at media.SampleRate
type Service interface {
	Provider() string
	// CacheKey identifies the audio for text under the current voice settings
	CacheKey(text string) string
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Config selects and configures a text-to-speech provider
type Config struct {
	Provider string
	Voice    string

	OpenAIKey     string
	OpenAIBaseURL string

	CartesiaKey     string
	CartesiaURL     string
	CartesiaVersion string

	Timeout time.Duration
	Logger  *zap.Logger
}

// New builds the synthesizer named by cfg.Provider
func New(cfg Config) (Service, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case conversation.SynthesizerOpenAI:
		return NewOpenAI(cfg)
	case conversation.SynthesizerCartesia:
		return NewCartesia(cfg)
	default:
		return nil, fmt.Errorf("unknown synthesizer provider %q", cfg.Provider)
	}
}

func digest(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:8])
}
