package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAI returns raw pcm at this rate
const openAIPCMRate = 24000

type OpenAIService struct {
	client *openai.Client
	voice  openai.SpeechVoice
	model  openai.SpeechModel
	logger *zap.Logger
}

func NewOpenAI(cfg Config) (*OpenAIService, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for openai speech")
	}
	oc := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}
	voice := cfg.Voice
	if voice == "" {
		voice = string(openai.VoiceNova)
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(oc),
		voice:  openai.SpeechVoice(voice),
		model:  openai.TTSModel1,
		logger: cfg.Logger,
	}, nil
}

func (s *OpenAIService) Provider() string { return conversation.SynthesizerOpenAI }

func (s *OpenAIService) CacheKey(text string) string {
	return fmt.Sprintf("openai.tts-%s-%s-%s", s.model, s.voice, digest(text))
}

func (s *OpenAIService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		s.logger.Error("[OpenAI TTS] request failed", zap.Error(err))
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	raw, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("empty audio from openai speech")
	}
	pcm := media.Resample(raw, openAIPCMRate, media.SampleRate)
	s.logger.Debug("[OpenAI TTS] synthesized", zap.Int("chars", len(text)), zap.Int("bytes", len(pcm)))
	return pcm, nil
}
