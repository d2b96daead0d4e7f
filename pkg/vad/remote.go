package vad

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DetectRequest is the body sent to a VAD service
type DetectRequest struct {
	AudioData   string  `json:"audio_data"`
	AudioFormat string  `json:"audio_format"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// DetectResponse is the service verdict for one chunk
type DetectResponse struct {
	HaveVoice  bool    `json:"have_voice"`
	VoiceStop  bool    `json:"voice_stop"`
	SpeechProb float64 `json:"speech_prob,omitempty"`
}

// RemoteOptions configures a Remote detector
type RemoteOptions struct {
	BaseURL   string
	SessionID string
	// Threshold is the speech probability the service should use; zero
	// leaves it to the service
	Threshold  float64
	Chunk      time.Duration
	SampleRate int
	Timeout    time.Duration
	// Fallback decides chunks the service could not
	Fallback *Detector
	Logger   *zap.Logger
}

// Remote asks a model-backed VAD service about each chunk of audio. The
// service keeps per-session state, so one Remote serves exactly one call.
type Remote struct {
	opts   RemoteOptions
	http   *resty.Client
	logger *zap.Logger

	buf        []byte
	chunkBytes int
	position   time.Duration
	speaking   bool
	degraded   bool
}

func NewRemote(opts RemoteOptions) *Remote {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 8000
	}
	if opts.Chunk <= 0 {
		opts.Chunk = 100 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Fallback == nil {
		opts.Fallback = NewDetector(Options{SampleRate: opts.SampleRate, Logger: opts.Logger})
	}
	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Remote{
		opts:       opts,
		http:       client,
		logger:     opts.Logger,
		chunkBytes: int(opts.Chunk.Seconds()*float64(opts.SampleRate)) * 2,
	}
}

// HealthCheck asks the service whether it is up
func (r *Remote) HealthCheck() error {
	resp, err := r.http.R().Get("/health")
	if err != nil {
		return fmt.Errorf("vad health check: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("vad health check failed with status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// Process buffers frames and consults the service once a chunk is full
func (r *Remote) Process(pcm []byte) []Event {
	r.buf = append(r.buf, pcm...)
	var events []Event
	for len(r.buf) >= r.chunkBytes {
		chunk := r.buf[:r.chunkBytes]
		r.position += time.Duration(len(chunk)/2) * time.Second / time.Duration(r.opts.SampleRate)
		events = append(events, r.decide(chunk)...)
		r.buf = r.buf[r.chunkBytes:]
	}
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return events
}

func (r *Remote) decide(chunk []byte) []Event {
	verdict, err := r.detect(chunk)
	if err != nil {
		if !r.degraded {
			r.logger.Warn("[VAD] service unavailable, using energy detection", zap.Error(err))
			r.degraded = true
		}
		return r.follow(r.opts.Fallback.Process(chunk))
	}
	if r.degraded {
		r.logger.Info("[VAD] service recovered")
		r.degraded = false
	}

	switch {
	case verdict.HaveVoice && !r.speaking:
		r.speaking = true
		return []Event{{Type: SpeechStarted, Offset: r.position}}
	case verdict.VoiceStop && r.speaking:
		r.speaking = false
		return []Event{{Type: SpeechEnded, Offset: r.position}}
	}
	return nil
}

// follow keeps the speaking flag in line with fallback events
func (r *Remote) follow(events []Event) []Event {
	var out []Event
	for _, e := range events {
		switch {
		case e.Type == SpeechStarted && !r.speaking:
			r.speaking = true
			out = append(out, Event{Type: SpeechStarted, Offset: r.position})
		case e.Type == SpeechEnded && r.speaking:
			r.speaking = false
			out = append(out, Event{Type: SpeechEnded, Offset: r.position})
		}
	}
	return out
}

func (r *Remote) detect(chunk []byte) (*DetectResponse, error) {
	var out DetectResponse
	resp, err := r.http.R().
		SetQueryParam("session_id", r.opts.SessionID).
		SetBody(DetectRequest{
			AudioData:   base64.StdEncoding.EncodeToString(chunk),
			AudioFormat: "pcm",
			SampleRate:  r.opts.SampleRate,
			Channels:    1,
			Threshold:   r.opts.Threshold,
		}).
		SetResult(&out).
		Post("/vad")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("vad service error (status %d): %s", resp.StatusCode(), resp.String())
	}
	return &out, nil
}

// Reset clears local state and the service session
func (r *Remote) Reset() {
	r.buf = nil
	r.speaking = false
	r.opts.Fallback.Reset()
	resp, err := r.http.R().SetQueryParam("session_id", r.opts.SessionID).Post("/vad/reset")
	if err != nil {
		r.logger.Debug("[VAD] reset session", zap.Error(err))
		return
	}
	if resp.IsError() {
		r.logger.Debug("[VAD] reset session", zap.Int("status", resp.StatusCode()))
	}
}
