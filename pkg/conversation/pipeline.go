package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"github.com/code-100-precent/LingCollect/pkg/vad"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AgentState is where the agent is in the conversation
type AgentState string

const (
	AgentEntered    AgentState = "entered"
	AgentGreeting   AgentState = "greeting"
	AgentListening  AgentState = "listening"
	AgentResponding AgentState = "responding"
	AgentClosing    AgentState = "closing"
	AgentEnded      AgentState = "ended"
)

const (
	defaultFrameInterval = 20 * time.Millisecond
	defaultPrerollFrames = 10
)

// Options assembles a Pipeline
type Options struct {
	Persona     Persona
	Detector    ActivityDetector
	Recognizer  SpeechRecognizer
	Responder   ResponseGenerator
	Synthesizer SpeechSynthesizer
	Room        Room

	// FrameInterval paces playback; a negative value disables pacing
	FrameInterval time.Duration
	// PrerollFrames of audio before confirmed speech are sent to the recognizer
	PrerollFrames int

	OnState func(AgentState)
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Pipeline runs the turn-taking conversation of one call: caller audio is
// gated by the detector into the recognizer, final transcripts go to the
// responder, and replies are synthesized and paced into the room. All
// decisions are made on one goroutine; speaking runs as a cancellable task.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	mu    sync.RWMutex
	state AgentState

	ran     atomic.Bool
	results chan taskResult
	stopped chan struct{}
	tasks   sync.WaitGroup
}

type taskKind string

const (
	taskOpening taskKind = "opening"
	taskReply   taskKind = "reply"
)

type speakTask struct {
	id     string
	kind   taskKind
	cancel context.CancelFunc
}

type taskResult struct {
	id   string
	kind taskKind
	err  error
}

// NewPipeline validates the collaborators. A missing one is a PipelineInitError.
func NewPipeline(opts Options) (*Pipeline, error) {
	missing := make([]string, 0)
	if opts.Detector == nil {
		missing = append(missing, "detector")
	}
	if opts.Recognizer == nil {
		missing = append(missing, "recognizer")
	}
	if opts.Responder == nil {
		missing = append(missing, "responder")
	}
	if opts.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if opts.Room == nil {
		missing = append(missing, "room")
	}
	if len(missing) > 0 {
		return nil, &PipelineInitError{Stage: StageConfig, Err: errors.New("missing " + strings.Join(missing, ", "))}
	}
	if strings.TrimSpace(opts.Persona.OpeningLine) == "" {
		return nil, &PipelineInitError{Stage: StageConfig, Err: errors.New("persona has no opening line")}
	}
	if opts.FrameInterval == 0 {
		opts.FrameInterval = defaultFrameInterval
	}
	if opts.PrerollFrames <= 0 {
		opts.PrerollFrames = defaultPrerollFrames
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Pipeline{
		opts:    opts,
		logger:  opts.Logger.With(zap.String("persona", opts.Persona.Name)),
		state:   AgentEntered,
		results: make(chan taskResult, 4),
		stopped: make(chan struct{}),
	}, nil
}

func (p *Pipeline) State() AgentState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Pipeline) setState(s AgentState) {
	p.mu.Lock()
	prev := p.state
	p.state = s
	p.mu.Unlock()
	if prev == s {
		return
	}
	p.logger.Debug("[Pipeline] agent state", zap.String("from", string(prev)), zap.String("to", string(s)))
	if p.opts.OnState != nil {
		p.opts.OnState(s)
	}
}

// Run opens the recognizer, synthesizes the opening line, calls onActive,
// plays the opening once and then converses until the room ends or ctx is
// cancelled. It returns nil when the room ends, ctx.Err() on cancellation, a
// *PipelineInitError if the recognizer cannot be opened or the opening line
// cannot be synthesized, and a *TransientStreamError for mid-call provider
// failures. A Pipeline runs once.
func (p *Pipeline) Run(ctx context.Context, onActive func()) error {
	if !p.ran.CompareAndSwap(false, true) {
		return errors.New("pipeline already ran")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		close(p.stopped)
		p.tasks.Wait()
	}()

	stream, err := p.opts.Recognizer.Stream(ctx)
	if err != nil {
		return &PipelineInitError{Stage: StageSTT, Err: err}
	}
	defer stream.Close()

	// nothing is active until the opening line can actually be spoken
	opening, err := p.opts.Synthesizer.Synthesize(ctx, p.opts.Persona.OpeningLine)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &PipelineInitError{Stage: StageTTS, Err: err}
	}

	if onActive != nil {
		onActive()
	}
	p.logger.Info("[Pipeline] conversation started")

	var (
		current  *speakTask
		inSpeech bool
		preroll  = make([][]byte, 0, p.opts.PrerollFrames)
	)

	interrupt := func(reason string) {
		if current == nil {
			return
		}
		current.cancel()
		if err := p.opts.Room.ClearPlayback(); err != nil && !errors.Is(err, media.ErrRoomClosed) {
			p.logger.Warn("[Pipeline] clear playback failed", zap.Error(err))
		}
		p.logger.Info("[Pipeline] agent interrupted", zap.String("task", string(current.kind)), zap.String("reason", reason))
		p.opts.Metrics.Interrupted()
		current = nil
		p.setState(AgentListening)
	}

	finish := func(err error) error {
		p.setState(AgentClosing)
		if current != nil {
			current.cancel()
			current = nil
		}
		p.opts.Detector.Reset()
		p.setState(AgentEnded)
		p.logger.Info("[Pipeline] conversation ended", zap.Error(err))
		return err
	}

	p.setState(AgentGreeting)
	current = p.startTask(ctx, taskOpening, func(tctx context.Context) error {
		if err := p.play(tctx, opening); err != nil {
			return &stageError{stage: StageMedia, err: err}
		}
		return nil
	})

	frames := p.opts.Room.Frames()
	transcripts := stream.Transcripts()
	for {
		select {
		case <-ctx.Done():
			return finish(ctx.Err())

		case <-p.opts.Room.Done():
			return finish(nil)

		case frame, ok := <-frames:
			if !ok {
				return finish(nil)
			}
			if inSpeech {
				if err := stream.SendAudio(frame.PCM); err != nil {
					return finish(&TransientStreamError{Stage: StageSTT, Err: err})
				}
			} else {
				if len(preroll) == p.opts.PrerollFrames {
					preroll = append(preroll[:0], preroll[1:]...)
				}
				preroll = append(preroll, frame.PCM)
			}

			for _, ev := range p.opts.Detector.Process(frame.PCM) {
				switch ev.Type {
				case vad.SpeechStarted:
					inSpeech = true
					interrupt("caller speech")
					for _, chunk := range preroll {
						if err := stream.SendAudio(chunk); err != nil {
							return finish(&TransientStreamError{Stage: StageSTT, Err: err})
						}
					}
					preroll = preroll[:0]
				case vad.SpeechEnded:
					inSpeech = false
					if err := stream.EndUtterance(); err != nil {
						return finish(&TransientStreamError{Stage: StageSTT, Err: err})
					}
				}
			}

		case tr, ok := <-transcripts:
			if !ok {
				if ctx.Err() != nil {
					return finish(ctx.Err())
				}
				cause := stream.Err()
				if cause == nil {
					cause = errors.New("recognizer stream closed")
				}
				return finish(&TransientStreamError{Stage: StageSTT, Err: cause})
			}
			text := strings.TrimSpace(tr.Text)
			if !tr.Final || text == "" {
				continue
			}
			p.logger.Info("[Pipeline] caller said", zap.String("text", text))
			interrupt("new caller turn")
			p.setState(AgentResponding)
			current = p.startTask(ctx, taskReply, func(tctx context.Context) error {
				return p.reply(tctx, text)
			})

		case res := <-p.results:
			if current == nil || res.id != current.id {
				// cancelled task finishing late
				continue
			}
			current = nil
			if res.err != nil {
				stage := StageTTS
				var se *stageError
				if errors.As(res.err, &se) {
					stage = se.stage
				}
				return finish(&TransientStreamError{Stage: stage, Err: res.err})
			}
			p.setState(AgentListening)
		}
	}
}

func (p *Pipeline) startTask(ctx context.Context, kind taskKind, fn func(context.Context) error) *speakTask {
	tctx, cancel := context.WithCancel(ctx)
	t := &speakTask{id: uuid.NewString(), kind: kind, cancel: cancel}

	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		defer cancel()
		err := fn(tctx)
		if tctx.Err() != nil {
			err = nil
		}
		select {
		case p.results <- taskResult{id: t.id, kind: kind, err: err}:
		case <-p.stopped:
		}
	}()
	return t
}

// reply streams the responder's answer sentence by sentence into speech
func (p *Pipeline) reply(ctx context.Context, userText string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	segmenter := NewTextSegmenter(uuid.NewString())
	sentences := make(chan string, 32)
	llmDone := make(chan error, 1)

	go func() {
		defer close(sentences)
		push := func(segs []TextSegment) {
			for _, seg := range segs {
				select {
				case sentences <- seg.Text:
				case <-ctx.Done():
					return
				}
			}
		}
		_, err := p.opts.Responder.Respond(ctx, userText, func(delta string) {
			push(segmenter.OnToken(delta))
		})
		if err == nil {
			push(segmenter.OnComplete())
		}
		llmDone <- err
	}()

	for sentence := range sentences {
		if err := p.say(ctx, sentence); err != nil {
			cancel()
			for range sentences {
			}
			<-llmDone
			return err
		}
	}
	if err := <-llmDone; err != nil {
		return &stageError{stage: StageLLM, err: err}
	}
	return nil
}

// say synthesizes text and plays it into the room at real-time pace
func (p *Pipeline) say(ctx context.Context, text string) error {
	pcm, err := p.opts.Synthesizer.Synthesize(ctx, text)
	if err != nil {
		return &stageError{stage: StageTTS, err: err}
	}
	if err := p.play(ctx, pcm); err != nil {
		return &stageError{stage: StageMedia, err: err}
	}
	return nil
}

func (p *Pipeline) play(ctx context.Context, pcm []byte) error {
	frameBytes := media.DurationBytes(int(defaultFrameInterval / time.Millisecond))

	var tick <-chan time.Time
	if p.opts.FrameInterval > 0 {
		ticker := time.NewTicker(p.opts.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := p.opts.Room.Publish(ctx, pcm[off:end]); err != nil {
			return err
		}
		if tick == nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		select {
		case <-tick:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
