package callsession

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/recording"
	"go.uber.org/zap"
)

// State call session state
type State string

const (
	StatePending   State = "pending"
	StateDialing   State = "dialing"
	StateConnected State = "connected"
	StateActive    State = "active"
	StateEnded     State = "ended"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateFailed
}

var (
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrRecordingAttached = errors.New("call already has a recording")
)

// transitions lists the legal moves; mode-specific ones are checked in allowed
var transitions = map[State][]State{
	StatePending:   {StateDialing, StateConnected, StateFailed, StateEnded},
	StateDialing:   {StateConnected, StateFailed},
	StateConnected: {StateActive, StateFailed, StateEnded},
	StateActive:    {StateEnded},
}

// Transition is one recorded state change
type Transition struct {
	From   State
	To     State
	At     time.Time
	Reason string
}

// Observer is told about every transition after it is applied
type Observer func(s *CallSession, tr Transition)

// CallSession tracks one call from job receipt to its terminal state. It is
// owned by a single orchestrator goroutine; the mutex only guards readers
// such as status handlers.
type CallSession struct {
	RoomName string
	Mode     Mode

	mu        sync.RWMutex
	state     State
	recording *recording.Handle
	startedAt time.Time
	history   []Transition
	failure   string

	observer Observer
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*CallSession)

func WithObserver(o Observer) Option {
	return func(s *CallSession) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *CallSession) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *CallSession) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewCallSession starts a pending session for job
func NewCallSession(job CallJob, opts ...Option) *CallSession {
	s := &CallSession{
		RoomName: job.RoomName,
		Mode:     job.Mode(),
		state:    StatePending,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startedAt = s.now()
	return s
}

func (s *CallSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *CallSession) StartedAt() time.Time {
	return s.startedAt
}

// FailureReason is set once the session has failed
func (s *CallSession) FailureReason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure
}

// History returns a copy of all transitions so far
func (s *CallSession) History() []Transition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Transition(nil), s.history...)
}

// Transition moves the session to `to`
func (s *CallSession) Transition(to State, reason string) error {
	s.mu.Lock()
	from := s.state
	if !s.allowed(from, to) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, from, to, s.Mode)
	}
	tr := Transition{From: from, To: to, At: s.now(), Reason: reason}
	s.state = to
	s.history = append(s.history, tr)
	if to == StateFailed {
		s.failure = reason
	}
	observer := s.observer
	s.mu.Unlock()

	s.logger.Info("[CallSession] state changed",
		zap.String("room", s.RoomName),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason))
	if observer != nil {
		observer(s, tr)
	}
	return nil
}

// Fail moves a non-terminal session to failed
func (s *CallSession) Fail(reason string) error {
	return s.Transition(StateFailed, reason)
}

// AttachRecording binds the session's single recording
func (s *CallSession) AttachRecording(h *recording.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording != nil {
		return ErrRecordingAttached
	}
	s.recording = h
	return nil
}

func (s *CallSession) Recording() *recording.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recording
}

func (s *CallSession) allowed(from, to State) bool {
	switch {
	case from == StatePending && to == StateDialing:
		return s.Mode == ModeOutbound
	case from == StatePending && to == StateConnected:
		return s.Mode == ModeInbound
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
