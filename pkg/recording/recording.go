package recording

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"go.uber.org/zap"
)

// EgressClient starts and stops room recordings
type EgressClient interface {
	StartRoomCompositeEgress(ctx context.Context, req *controlplane.RoomCompositeEgressRequest) (*controlplane.EgressInfo, error)
	StopEgress(ctx context.Context, req *controlplane.StopEgressRequest) (*controlplane.EgressInfo, error)
}

// Handle identifies a running recording
type Handle struct {
	EgressID   string
	TargetPath string
	RoomName   string
}

// Error is a recording failure. It never changes the outcome of a call.
type Error struct {
	Phase string
	Room  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("recording %s failed for room %s: %v", e.Phase, e.Room, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Manager
type Options struct {
	Enabled     bool
	Dir         string
	Layout      string
	StopTimeout time.Duration
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Manager runs the best-effort recording lifecycle of a call
type Manager struct {
	client  EgressClient
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewManager(client EgressClient, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Dir == "" {
		opts.Dir = "recordings"
	}
	if opts.Layout == "" {
		opts.Layout = "speaker"
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 10 * time.Second
	}
	return &Manager{client: client, opts: opts, logger: opts.Logger, metrics: opts.Metrics}
}

// TargetPath is where the recording of a call to phone lands
func (m *Manager) TargetPath(phone string) string {
	stamp := m.opts.Now().UTC().Format("20060102-150405")
	return path.Join(m.opts.Dir, fmt.Sprintf("call-%s-%s.ogg", digitsOnly(phone), stamp))
}

// Start begins an audio-only recording of room. It returns nil when
// recording is disabled, no phone number is known, or the provider refuses;
// failures are logged and never returned.
func (m *Manager) Start(ctx context.Context, room, phone string) *Handle {
	if !m.opts.Enabled || phone == "" {
		return nil
	}

	target := m.TargetPath(phone)
	info, err := m.client.StartRoomCompositeEgress(ctx, &controlplane.RoomCompositeEgressRequest{
		RoomName:    room,
		Layout:      m.opts.Layout,
		AudioOnly:   true,
		FileOutputs: []*controlplane.EncodedFileOutput{{Filepath: target}},
	})
	if err == nil && (info == nil || info.EgressID == "") {
		err = errors.New("provider returned no egress id")
	}
	if err != nil {
		m.report(&Error{Phase: "start", Room: room, Err: err})
		return nil
	}

	m.logger.Info("[Recording] started",
		zap.String("room", room),
		zap.String("egressId", info.EgressID),
		zap.String("target", target))
	return &Handle{EgressID: info.EgressID, TargetPath: target, RoomName: room}
}

// Stop ends the recording. Failures are logged only.
func (m *Manager) Stop(ctx context.Context, h *Handle) {
	if h == nil {
		return
	}
	if _, err := m.client.StopEgress(ctx, &controlplane.StopEgressRequest{EgressID: h.EgressID}); err != nil {
		m.report(&Error{Phase: "stop", Room: h.RoomName, Err: err})
		return
	}
	m.logger.Info("[Recording] stopped",
		zap.String("room", h.RoomName),
		zap.String("egressId", h.EgressID))
}

// Acquire starts a recording and returns a release func that stops it at
// most once, on a context detached from ctx's cancellation, so teardown
// still runs after the job context is gone. release is safe to call when
// the handle is nil.
func (m *Manager) Acquire(ctx context.Context, room, phone string) (*Handle, func()) {
	h := m.Start(ctx, room, phone)
	var once sync.Once
	release := func() {
		once.Do(func() {
			if h == nil {
				return
			}
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.StopTimeout)
			defer cancel()
			m.Stop(stopCtx, h)
		})
	}
	return h, release
}

func (m *Manager) report(err *Error) {
	m.metrics.RecordingFailed(err.Phase)
	m.logger.Warn("[Recording] "+err.Phase+" failed", zap.String("room", err.Room), zap.Error(err))
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
