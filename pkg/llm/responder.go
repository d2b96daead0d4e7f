package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const defaultMaxHistory = 40

// Config of a chat responder for one call
type Config struct {
	APIKey  string
	BaseURL string

	Model       string
	Temperature float32
	// SystemPrompt is the persona's instructions
	SystemPrompt string
	// Greeting is what the agent already said before the caller's first turn
	Greeting string
	// MaxHistory caps the remembered turns, system prompt excluded
	MaxHistory int

	Logger *zap.Logger
}

// Responder streams chat completions and keeps the call's history
type Responder struct {
	client *openai.Client
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

func NewResponder(cfg Config) (*Responder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaultMaxHistory
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	r := &Responder{
		client: openai.NewClientWithConfig(oc),
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("model", cfg.Model)),
	}
	if cfg.Greeting != "" {
		r.history = append(r.history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: cfg.Greeting})
	}
	return r, nil
}

// Respond answers userText, calling onDelta for every streamed piece. When
// ctx is cancelled mid-reply the part already generated is kept in history
// so the model knows what the caller heard before interrupting.
func (r *Responder) Respond(ctx context.Context, userText string, onDelta func(string)) (string, error) {
	r.mu.Lock()
	r.history = append(r.history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})
	messages := r.messages()
	r.mu.Unlock()

	stream, err := r.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    messages,
		Temperature: r.cfg.Temperature,
		Stream:      true,
	})
	if err != nil {
		r.logger.Error("[LLM] request failed", zap.Error(err))
		return "", err
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.remember(reply.String())
			if ctx.Err() != nil {
				return reply.String(), ctx.Err()
			}
			r.logger.Error("[LLM] stream failed", zap.Error(err))
			return reply.String(), err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		reply.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}

	r.remember(reply.String())
	r.logger.Debug("[LLM] reply", zap.String("text", reply.String()))
	return reply.String(), nil
}

// History returns the remembered conversation without the system prompt
func (r *Responder) History() []openai.ChatCompletionMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]openai.ChatCompletionMessage(nil), r.history...)
}

func (r *Responder) remember(reply string) {
	if strings.TrimSpace(reply) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply})
	if over := len(r.history) - r.cfg.MaxHistory; over > 0 {
		r.history = append([]openai.ChatCompletionMessage(nil), r.history[over:]...)
	}
}

// messages must be called with mu held
func (r *Responder) messages() []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(r.history)+1)
	if r.cfg.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: r.cfg.SystemPrompt})
	}
	return append(out, r.history...)
}
