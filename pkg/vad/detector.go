package vad

import (
	"encoding/binary"
	"math"
	"time"

	"go.uber.org/zap"
)

// EventType speech boundary kind
type EventType int

const (
	SpeechStarted EventType = iota + 1
	SpeechEnded
)

func (t EventType) String() string {
	switch t {
	case SpeechStarted:
		return "speech_started"
	case SpeechEnded:
		return "speech_ended"
	}
	return "unknown"
}

// Event is a speech boundary, Offset is the stream position where it was confirmed
type Event struct {
	Type   EventType
	Offset time.Duration
}

// Options configures an energy Detector
type Options struct {
	// RMS level above which a frame counts as voiced (16-bit PCM scale)
	Threshold float64
	// voiced audio needed before speech is reported
	MinSpeech time.Duration
	// silence needed before the end of speech is reported
	MinSilence time.Duration
	SampleRate int
	Logger     *zap.Logger
}

// Detector is an RMS energy voice activity detector. Timing is derived
// from the amount of audio seen, not the wall clock, so results are
// reproducible for a given input.
type Detector struct {
	opts   Options
	logger *zap.Logger

	speaking bool
	voiced   time.Duration
	silence  time.Duration
	position time.Duration
}

func NewDetector(opts Options) *Detector {
	if opts.Threshold <= 0 {
		opts.Threshold = 500
	}
	if opts.MinSpeech <= 0 {
		opts.MinSpeech = 100 * time.Millisecond
	}
	if opts.MinSilence <= 0 {
		opts.MinSilence = 400 * time.Millisecond
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 8000
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Detector{opts: opts, logger: opts.Logger}
}

// Process feeds one frame of 16-bit little-endian mono PCM and returns any
// boundaries it completes.
func (d *Detector) Process(pcm []byte) []Event {
	samples := len(pcm) / 2
	if samples == 0 {
		return nil
	}
	dur := time.Duration(samples) * time.Second / time.Duration(d.opts.SampleRate)
	d.position += dur
	rms := CalculateRMS(pcm)

	var events []Event
	if rms > d.opts.Threshold {
		d.silence = 0
		d.voiced += dur
		if !d.speaking && d.voiced >= d.opts.MinSpeech {
			d.speaking = true
			events = append(events, Event{Type: SpeechStarted, Offset: d.position})
			d.logger.Debug("[VAD] speech started", zap.Float64("rms", rms), zap.Duration("offset", d.position))
		}
		return events
	}

	if !d.speaking {
		d.voiced = 0
		return nil
	}
	d.silence += dur
	if d.silence >= d.opts.MinSilence {
		d.speaking = false
		d.voiced = 0
		d.silence = 0
		events = append(events, Event{Type: SpeechEnded, Offset: d.position})
		d.logger.Debug("[VAD] speech ended", zap.Duration("offset", d.position))
	}
	return events
}

// Speaking reports whether speech is currently asserted
func (d *Detector) Speaking() bool {
	return d.speaking
}

// Reset forgets any partial speech state
func (d *Detector) Reset() {
	d.speaking = false
	d.voiced = 0
	d.silence = 0
}

// CalculateRMS returns the root mean square of 16-bit little-endian PCM
func CalculateRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
