package recognizer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// utterances shorter than this are noise, not words
const minUtteranceBytes = 200 * media.SampleRate * media.BytesPerSample / 1000

// Whisper transcribes each utterance in one request once the caller stops
// talking. It never produces interim results.
type Whisper struct {
	client   *openai.Client
	language string
	logger   *zap.Logger
}

func NewWhisper(cfg Config) (*Whisper, error) {
	if cfg.OpenAIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required for whisper")
	}
	oc := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Whisper{client: openai.NewClientWithConfig(oc), language: cfg.Language, logger: logger}, nil
}

func (w *Whisper) Stream(ctx context.Context) (conversation.RecognizerStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &whisperStream{
		transcriptSink: newTranscriptSink(),
		whisper:        w,
		cancel:         cancel,
		utterances:     make(chan []byte, 8),
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

type whisperStream struct {
	*transcriptSink
	whisper *Whisper
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	buf        []byte
	utterances chan []byte
}

func (s *whisperStream) SendAudio(pcm []byte) error {
	if s.stopped() {
		return ErrStreamClosed
	}
	s.mu.Lock()
	s.buf = append(s.buf, pcm...)
	s.mu.Unlock()
	return nil
}

func (s *whisperStream) EndUtterance() error {
	s.mu.Lock()
	pcm := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(pcm) < minUtteranceBytes {
		return nil
	}
	select {
	case s.utterances <- pcm:
		return nil
	case <-s.done:
		return ErrStreamClosed
	default:
		s.whisper.logger.Warn("[Whisper] transcription backlog full, dropping utterance", zap.Int("bytes", len(pcm)))
		return nil
	}
}

func (s *whisperStream) Close() error {
	s.stop(nil)
	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *whisperStream) run(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.stop(ctx.Err())
			return
		case pcm := <-s.utterances:
			text, err := s.whisper.transcribe(ctx, pcm)
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				s.stop(err)
				return
			}
			if text == "" {
				continue
			}
			if !s.emit(conversation.Transcript{Text: text, Final: true}) {
				return
			}
		}
	}
}

func (w *Whisper) transcribe(ctx context.Context, pcm []byte) (string, error) {
	audio, err := EncodeWAV(pcm, media.SampleRate)
	if err != nil {
		return "", err
	}
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: "utterance.wav",
		Language: w.language,
	})
	if err != nil {
		w.logger.Error("[Whisper] transcription failed", zap.Error(err))
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	w.logger.Debug("[Whisper] transcribed", zap.Int("bytes", len(pcm)), zap.String("text", text))
	return text, nil
}
