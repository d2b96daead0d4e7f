package orchestrator

import (
	"context"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/callsession"
	"github.com/code-100-precent/LingCollect/pkg/config"
	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/llm"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"github.com/code-100-precent/LingCollect/pkg/recognizer"
	"github.com/code-100-precent/LingCollect/pkg/synthesizer"
	"github.com/code-100-precent/LingCollect/pkg/vad"
	"go.uber.org/zap"
)

// NewPipelineFactory builds conversations from the persona's providers. The
// opening line audio is cached in store so repeated calls skip synthesis.
func NewPipelineFactory(cfg *config.Config, store cache.Cache, m *metrics.Metrics, logger *zap.Logger) PipelineFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, job callsession.CallJob, persona conversation.Persona, room conversation.Room) (Conversation, error) {
		plog := logger.With(zap.String("room", job.RoomName), zap.String("persona", persona.Name))
		providers := cfg.Providers

		stt, err := recognizer.New(recognizer.Config{
			Provider:      persona.Recognizer,
			OpenAIKey:     providers.OpenAI.APIKey,
			OpenAIBaseURL: providers.OpenAI.BaseURL,
			DeepgramKey:   providers.Deepgram.APIKey,
			DeepgramURL:   providers.Deepgram.URL,
			Logger:        plog,
		})
		if err != nil {
			return nil, &conversation.PipelineInitError{Stage: conversation.StageSTT, Err: err}
		}

		responder, err := llm.NewResponder(llm.Config{
			APIKey:       providers.OpenAI.APIKey,
			BaseURL:      providers.OpenAI.BaseURL,
			Model:        persona.Model,
			Temperature:  persona.Temperature,
			SystemPrompt: persona.Instructions,
			Greeting:     persona.OpeningLine,
			Logger:       plog,
		})
		if err != nil {
			return nil, &conversation.PipelineInitError{Stage: conversation.StageLLM, Err: err}
		}

		tts, err := synthesizer.New(synthesizer.Config{
			Provider:        persona.Synthesizer,
			Voice:           persona.Voice,
			OpenAIKey:       providers.OpenAI.APIKey,
			OpenAIBaseURL:   providers.OpenAI.BaseURL,
			CartesiaKey:     providers.Cartesia.APIKey,
			CartesiaURL:     providers.Cartesia.URL,
			CartesiaVersion: providers.Cartesia.Version,
			Logger:          plog,
		})
		if err != nil {
			return nil, &conversation.PipelineInitError{Stage: conversation.StageTTS, Err: err}
		}
		var speech conversation.SpeechSynthesizer = tts
		if store != nil {
			speech = synthesizer.NewCached(tts, store, cfg.Agent.OpeningCacheTTL, plog, persona.OpeningLine)
		}

		energy := vad.NewDetector(vad.Options{
			Threshold:  cfg.Agent.VADThreshold,
			MinSpeech:  cfg.Agent.VADMinSpeech,
			MinSilence: cfg.Agent.VADMinSilence,
			SampleRate: media.SampleRate,
			Logger:     plog,
		})
		var detector conversation.ActivityDetector = energy
		if cfg.Agent.VADServiceURL != "" {
			detector = vad.NewRemote(vad.RemoteOptions{
				BaseURL:    cfg.Agent.VADServiceURL,
				SessionID:  job.RoomName,
				SampleRate: media.SampleRate,
				Fallback:   energy,
				Logger:     plog,
			})
		}

		pipeline, err := conversation.NewPipeline(conversation.Options{
			Persona:       persona,
			Detector:      detector,
			Recognizer:    stt,
			Responder:     responder,
			Synthesizer:   speech,
			Room:          room,
			FrameInterval: cfg.Media.FrameInterval,
			Logger:        plog,
			Metrics:       m,
		})
		if err != nil {
			return nil, err
		}
		return pipeline, nil
	}
}
