package synthesizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"
	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"go.uber.org/zap"
)

const (
	defaultCartesiaURL     = "https://api.cartesia.ai"
	defaultCartesiaVersion = "2024-06-10"
	cartesiaModel          = "sonic-2"
)

type CartesiaService struct {
	apiKey  string
	baseURL string
	version string
	voice   string
	client  *http.Client
	logger  *zap.Logger
}

type cartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

type cartesiaOutput struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type cartesiaRequest struct {
	ModelID      string         `json:"model_id"`
	Transcript   string         `json:"transcript"`
	Voice        cartesiaVoice  `json:"voice"`
	OutputFormat cartesiaOutput `json:"output_format"`
	Language     string         `json:"language"`
}

func NewCartesia(cfg Config) (*CartesiaService, error) {
	if cfg.CartesiaKey == "" {
		return nil, errors.New("CARTESIA_API_KEY is required for cartesia")
	}
	if cfg.Voice == "" {
		return nil, errors.New("cartesia needs a voice id")
	}
	s := &CartesiaService{
		apiKey:  cfg.CartesiaKey,
		baseURL: cfg.CartesiaURL,
		version: cfg.CartesiaVersion,
		voice:   cfg.Voice,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger,
	}
	if s.baseURL == "" {
		s.baseURL = defaultCartesiaURL
	}
	if s.version == "" {
		s.version = defaultCartesiaVersion
	}
	return s, nil
}

func (s *CartesiaService) Provider() string { return conversation.SynthesizerCartesia }

func (s *CartesiaService) CacheKey(text string) string {
	return fmt.Sprintf("cartesia.tts-%s-%s-%d-%s", cartesiaModel, s.voice, media.SampleRate, digest(text))
}

// Synthesize asks for raw pcm_s16le at the call rate, so no resampling
func (s *CartesiaService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body := cartesiaRequest{
		ModelID:    cartesiaModel,
		Transcript: text,
		Voice:      cartesiaVoice{Mode: "id", ID: s.voice},
		OutputFormat: cartesiaOutput{
			Container:  "raw",
			Encoding:   "pcm_s16le",
			SampleRate: media.SampleRate,
		},
		Language: "en",
	}

	var audio bytes.Buffer
	err := requests.
		URL(s.baseURL).
		Path("/tts/bytes").
		Client(s.client).
		Header("X-API-Key", s.apiKey).
		Header("Cartesia-Version", s.version).
		BodyJSON(&body).
		ToBytesBuffer(&audio).
		Fetch(ctx)
	if err != nil {
		s.logger.Error("[Cartesia] request failed", zap.Error(err))
		return nil, fmt.Errorf("cartesia tts: %w", err)
	}
	if audio.Len() == 0 {
		return nil, errors.New("empty audio from cartesia")
	}
	s.logger.Debug("[Cartesia] synthesized", zap.Int("chars", len(text)), zap.Int("bytes", audio.Len()))
	return audio.Bytes(), nil
}
