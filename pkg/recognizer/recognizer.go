package recognizer

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"go.uber.org/zap"
)

var ErrStreamClosed = errors.New("recognizer stream closed")

// Config selects and configures a speech-to-text provider
type Config struct {
	Provider string

	OpenAIKey     string
	OpenAIBaseURL string

	DeepgramKey string
	DeepgramURL string

	Language string
	Logger   *zap.Logger
}

// New builds the recognizer named by cfg.Provider
func New(cfg Config) (conversation.SpeechRecognizer, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case conversation.RecognizerWhisper:
		return NewWhisper(cfg)
	case conversation.RecognizerDeepgram:
		return NewDeepgram(cfg)
	default:
		return nil, fmt.Errorf("unknown recognizer provider %q", cfg.Provider)
	}
}

// transcriptSink is the shared tail of every stream. The producing goroutine
// is the only one that emits and it closes out on exit; stop records the
// first reason and tells the producer to quit.
type transcriptSink struct {
	out  chan conversation.Transcript
	done chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newTranscriptSink() *transcriptSink {
	return &transcriptSink{
		out:  make(chan conversation.Transcript, 16),
		done: make(chan struct{}),
	}
}

func (s *transcriptSink) emit(t conversation.Transcript) bool {
	select {
	case s.out <- t:
		return true
	case <-s.done:
		return false
	}
}

func (s *transcriptSink) stop(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *transcriptSink) Transcripts() <-chan conversation.Transcript { return s.out }

func (s *transcriptSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *transcriptSink) stopped() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
