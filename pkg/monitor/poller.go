package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/events"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"go.uber.org/zap"
)

// State is the classification of one status read
type State string

const (
	StateActive   State = "active"
	StateEnded    State = "ended"
	StateNotFound State = "not_found"
	StateError    State = "error"
)

// RoomLister is the part of the control plane the poller reads
type RoomLister interface {
	ListRooms(ctx context.Context, req *controlplane.ListRoomsRequest) (*controlplane.ListRoomsResponse, error)
	ListParticipants(ctx context.Context, req *controlplane.ListParticipantsRequest) (*controlplane.ListParticipantsResponse, error)
}

// StatusSnapshot is one point-in-time read of a room. It is never mutated;
// the next poll supersedes it.
type StatusSnapshot struct {
	RoomName         string    `json:"room_name"`
	ParticipantCount int       `json:"participant_count"`
	State            State     `json:"state"`
	Err              error     `json:"-"`
	Attempt          int       `json:"attempt,omitempty"`
	ObservedAt       time.Time `json:"observed_at"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// StatusQueryError is a failed status read; it only affects its own attempt
type StatusQueryError struct {
	Room string
	Op   string
	Err  error
}

func (e *StatusQueryError) Error() string {
	return fmt.Sprintf("status query %s for room %s: %v", e.Op, e.Room, e.Err)
}

func (e *StatusQueryError) Unwrap() error { return e.Err }

// DefaultActiveThreshold counts the agent and the far end as both present.
// It is a heuristic, not proof that anyone is talking.
const DefaultActiveThreshold = 1

// Options configures a Poller
type Options struct {
	// ActiveThreshold: a room with more participants than this is active.
	// Zero is honoured and makes any participant count as active; callers
	// normally pass DefaultActiveThreshold. Negative values fall back to it.
	ActiveThreshold int
	Cache           cache.Cache
	SnapshotTTL     time.Duration
	// OnSnapshot sees every snapshot Poll takes
	OnSnapshot func(StatusSnapshot)

	Bus     *events.EventBus
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Poller watches room status from outside the call
type Poller struct {
	client RoomLister
	opts   Options
	logger *zap.Logger
}

func NewPoller(client RoomLister, opts Options) *Poller {
	if opts.ActiveThreshold < 0 {
		opts.ActiveThreshold = DefaultActiveThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.SnapshotTTL <= 0 {
		opts.SnapshotTTL = 10 * time.Minute
	}
	return &Poller{client: client, opts: opts, logger: opts.Logger}
}

// Check reads the room once. Errors are returned inside the snapshot.
func (p *Poller) Check(ctx context.Context, room string) StatusSnapshot {
	snap := StatusSnapshot{RoomName: room, ObservedAt: p.opts.Now()}

	rooms, err := p.client.ListRooms(ctx, &controlplane.ListRoomsRequest{Names: []string{room}})
	if err != nil {
		return p.failed(snap, "list_rooms", err)
	}
	var found *controlplane.Room
	for _, r := range rooms.Rooms {
		if r != nil && r.Name == room {
			found = r
			break
		}
	}
	if found == nil {
		snap.State = StateNotFound
		return snap
	}
	if found.CreationTime > 0 {
		snap.CreatedAt = time.Unix(int64(found.CreationTime), 0)
	}

	parts, err := p.client.ListParticipants(ctx, &controlplane.ListParticipantsRequest{Room: room})
	if err != nil {
		return p.failed(snap, "list_participants", err)
	}
	snap.ParticipantCount = len(parts.Participants)
	if snap.ParticipantCount > p.opts.ActiveThreshold {
		snap.State = StateActive
	} else {
		snap.State = StateEnded
	}
	return snap
}

func (p *Poller) failed(snap StatusSnapshot, op string, err error) StatusSnapshot {
	if controlplane.IsNotFound(err) {
		snap.State = StateNotFound
		return snap
	}
	snap.State = StateError
	snap.Err = &StatusQueryError{Room: snap.RoomName, Op: op, Err: err}
	return snap
}

// Poll checks up to maxAttempts times, sleeping interval between attempts.
// It returns the first active snapshot, or the last one taken when attempts
// run out or ctx is cancelled. It never returns an error.
func (p *Poller) Poll(ctx context.Context, room string, maxAttempts int, interval time.Duration) StatusSnapshot {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var snap StatusSnapshot
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		snap = p.Check(ctx, room)
		snap.Attempt = attempt
		p.record(ctx, snap)

		if snap.State == StateActive || attempt == maxAttempts {
			break
		}
		if err := p.opts.Sleep(ctx, interval); err != nil {
			p.logger.Info("[Monitor] polling cancelled", zap.String("room", room), zap.Int("attempt", attempt))
			break
		}
	}
	return snap
}

// Latest returns the most recent snapshot recorded for room
func (p *Poller) Latest(ctx context.Context, room string) (StatusSnapshot, bool) {
	if p.opts.Cache == nil {
		return StatusSnapshot{}, false
	}
	v, ok := p.opts.Cache.Get(ctx, cacheKey(room))
	if !ok {
		return StatusSnapshot{}, false
	}
	return cache.As[StatusSnapshot](v)
}

// Remember stores snap as the latest for its room
func (p *Poller) Remember(ctx context.Context, snap StatusSnapshot) {
	if p.opts.Cache == nil {
		return
	}
	if err := p.opts.Cache.Set(ctx, cacheKey(snap.RoomName), snap, p.opts.SnapshotTTL); err != nil {
		p.logger.Warn("[Monitor] cache snapshot failed", zap.Error(err))
	}
}

func (p *Poller) record(ctx context.Context, snap StatusSnapshot) {
	fields := []zap.Field{
		zap.String("room", snap.RoomName),
		zap.Int("attempt", snap.Attempt),
		zap.String("state", string(snap.State)),
		zap.Int("participants", snap.ParticipantCount),
	}
	if snap.Err != nil {
		p.logger.Warn("[Monitor] status query failed", append(fields, zap.Error(snap.Err))...)
	} else {
		p.logger.Info("[Monitor] status", fields...)
	}

	p.opts.Metrics.StatusPolled(string(snap.State))
	p.Remember(ctx, snap)
	if p.opts.Bus != nil {
		data := map[string]interface{}{
			"room":         snap.RoomName,
			"state":        string(snap.State),
			"participants": snap.ParticipantCount,
			"attempt":      snap.Attempt,
		}
		if snap.Err != nil {
			data["error"] = snap.Err.Error()
		}
		p.opts.Bus.Publish(events.Event{
			Type:      events.CallStatusObserved,
			Timestamp: snap.ObservedAt,
			Source:    "monitor",
			Data:      data,
		})
	}
	if p.opts.OnSnapshot != nil {
		p.opts.OnSnapshot(snap)
	}
}

func cacheKey(room string) string { return "status:" + room }

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
