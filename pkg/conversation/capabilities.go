package conversation

import (
	"context"

	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/code-100-precent/LingCollect/pkg/vad"
)

// ActivityDetector gates caller audio into speech segments
type ActivityDetector interface {
	Process(pcm []byte) []vad.Event
	Reset()
}

// Transcript is recognized caller speech; interim results have Final unset
type Transcript struct {
	Text  string
	Final bool
}

// RecognizerStream is one open speech-to-text session for a call
type RecognizerStream interface {
	SendAudio(pcm []byte) error
	// EndUtterance tells the recognizer the caller stopped talking
	EndUtterance() error
	// Transcripts is closed when the stream ends; Err then reports why
	Transcripts() <-chan Transcript
	Err() error
	Close() error
}

// SpeechRecognizer opens recognizer streams
type SpeechRecognizer interface {
	Stream(ctx context.Context) (RecognizerStream, error)
}

// ResponseGenerator produces the agent's reply to what the caller said,
// streaming text through onDelta as it is generated. It keeps its own
// conversation history.
type ResponseGenerator interface {
	Respond(ctx context.Context, userText string, onDelta func(delta string)) (string, error)
}

// SpeechSynthesizer renders text as 16-bit PCM at media.SampleRate
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Room is the call's media transport
type Room interface {
	Frames() <-chan media.Frame
	Publish(ctx context.Context, pcm []byte) error
	ClearPlayback() error
	Done() <-chan struct{}
}
