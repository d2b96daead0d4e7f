package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/callsession"
	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"github.com/code-100-precent/LingCollect/pkg/recording"
	"go.uber.org/zap"
)

const (
	roomEmptyTimeout    = 600
	roomMaxParticipants = 2
)

// DialError means the telephony provider rejected or failed the outbound
// dial. It is fatal to the job and never retried here.
type DialError struct {
	Room  string
	Phone string
	Op    string
	Err   error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s in room %s failed at %s: %v", e.Phone, e.Room, e.Op, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// ControlPlane is what the orchestrator asks of the telephony control plane
type ControlPlane interface {
	CreateRoom(ctx context.Context, req *controlplane.CreateRoomRequest) (*controlplane.Room, error)
	CreateSIPParticipant(ctx context.Context, req *controlplane.CreateSIPParticipantRequest) (*controlplane.SIPParticipantInfo, error)
}

// MediaRoom is a joined room
type MediaRoom interface {
	conversation.Room
	WaitForParticipant(ctx context.Context) (media.Participant, error)
	Close() error
}

// RoomConnector joins the agent to a room's media
type RoomConnector interface {
	Connect(ctx context.Context, room string) (MediaRoom, error)
}

// Recorder owns the call recording
type Recorder interface {
	Acquire(ctx context.Context, room, phone string) (*recording.Handle, func())
}

// Conversation is a ready-to-run pipeline
type Conversation interface {
	Run(ctx context.Context, onActive func()) error
}

// PipelineFactory assembles the conversation for a connected call
type PipelineFactory func(ctx context.Context, job callsession.CallJob, persona conversation.Persona, room conversation.Room) (Conversation, error)

// Options configures an Orchestrator
type Options struct {
	ControlPlane ControlPlane
	Rooms        RoomConnector
	Recorder     Recorder
	Pipelines    PipelineFactory

	SIPTrunkID         string
	DefaultPersona     string
	DefaultParticipant string

	Observer callsession.Observer
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// Orchestrator runs call jobs end to end: dial or wait for the caller,
// record, converse, and tear down in order.
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.ControlPlane == nil || opts.Rooms == nil || opts.Recorder == nil || opts.Pipelines == nil {
		return nil, errors.New("orchestrator needs a control plane, room connector, recorder and pipeline factory")
	}
	if opts.DefaultPersona == "" {
		opts.DefaultPersona = conversation.DefaultPersona
	}
	if _, ok := conversation.LookupPersona(opts.DefaultPersona); !ok {
		return nil, fmt.Errorf("unknown persona %q", opts.DefaultPersona)
	}
	if opts.DefaultParticipant == "" {
		opts.DefaultParticipant = "Outbound Call"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{opts: opts, logger: opts.Logger}, nil
}

// Run handles one job and returns its session together with the job's
// outcome: nil when the call ended normally, a *DialError or
// *conversation.PipelineInitError when the job failed, and the pipeline's
// error when the conversation broke mid-call. Recording problems never
// show up here.
func (o *Orchestrator) Run(ctx context.Context, job callsession.CallJob) (*callsession.CallSession, error) {
	logger := o.logger.With(zap.String("room", job.RoomName), zap.String("mode", string(job.Mode())))
	session := callsession.NewCallSession(job,
		callsession.WithObserver(o.opts.Observer),
		callsession.WithClock(o.opts.Now),
		callsession.WithLogger(logger))

	err := o.run(ctx, logger, job, session)
	outcome := "ended"
	if session.State() == callsession.StateFailed {
		outcome = "failed"
	} else if err != nil {
		outcome = "error"
	}
	o.opts.Metrics.JobFinished(string(job.Mode()), outcome)
	if err != nil {
		logger.Error("[Orchestrator] job finished with error", zap.String("state", string(session.State())), zap.Error(err))
	} else {
		logger.Info("[Orchestrator] job finished", zap.String("state", string(session.State())))
	}
	return session, err
}

func (o *Orchestrator) run(ctx context.Context, logger *zap.Logger, job callsession.CallJob, session *callsession.CallSession) error {
	persona := o.persona(logger, job)

	var (
		room MediaRoom
		err  error
	)
	if job.Mode() == callsession.ModeOutbound {
		if err := o.dial(ctx, logger, job, session); err != nil {
			return err
		}
		// recording starts right after the callee answers
		_, release := o.record(ctx, job, session)
		defer release()

		room, err = o.opts.Rooms.Connect(ctx, job.RoomName)
		if err != nil {
			initErr := &conversation.PipelineInitError{Stage: conversation.StageMedia, Err: err}
			_ = session.Fail(initErr.Error())
			return initErr
		}
	} else {
		room, err = o.awaitCaller(ctx, logger, job, session)
		if err != nil || room == nil {
			return err
		}
		_, release := o.record(ctx, job, session)
		defer release()
	}
	defer room.Close()

	return o.converse(ctx, logger, job, persona, room, session)
}

// dial places the outbound call and blocks until the callee answers
func (o *Orchestrator) dial(ctx context.Context, logger *zap.Logger, job callsession.CallJob, session *callsession.CallSession) error {
	if err := session.Transition(callsession.StateDialing, "dialing "+job.PhoneNumber); err != nil {
		return err
	}

	fail := func(op string, err error) error {
		dialErr := &DialError{Room: job.RoomName, Phone: job.PhoneNumber, Op: op, Err: err}
		o.opts.Metrics.DialFailed()
		_ = session.Fail(dialErr.Error())
		return dialErr
	}

	if _, err := o.opts.ControlPlane.CreateRoom(ctx, &controlplane.CreateRoomRequest{
		Name:            job.RoomName,
		EmptyTimeout:    roomEmptyTimeout,
		MaxParticipants: roomMaxParticipants,
	}); err != nil {
		return fail("create_room", err)
	}

	participantName := job.CustomerName
	if participantName == "" {
		participantName = o.opts.DefaultParticipant
	}
	started := o.opts.Now()
	logger.Info("[Orchestrator] dialing", zap.String("phone", job.PhoneNumber), zap.String("trunk", o.opts.SIPTrunkID))
	info, err := o.opts.ControlPlane.CreateSIPParticipant(ctx, &controlplane.CreateSIPParticipantRequest{
		SIPTrunkID:          o.opts.SIPTrunkID,
		SIPCallTo:           job.PhoneNumber,
		RoomName:            job.RoomName,
		ParticipantIdentity: "caller-" + job.PhoneNumber,
		ParticipantName:     participantName,
		PlayRingtone:        true,
		WaitUntilAnswered:   true,
	})
	if err != nil {
		return fail("create_sip_participant", err)
	}

	o.opts.Metrics.DialAnswered(o.opts.Now().Sub(started).Seconds())
	participantID := ""
	if info != nil {
		participantID = info.ParticipantID
	}
	logger.Info("[Orchestrator] call answered", zap.String("participantId", participantID))
	return session.Transition(callsession.StateConnected, "answered")
}

// awaitCaller joins the room and blocks until someone else is in it. There
// is no local timeout. A nil room with a nil error means the wait ended
// without a caller and the session is already closed.
func (o *Orchestrator) awaitCaller(ctx context.Context, logger *zap.Logger, job callsession.CallJob, session *callsession.CallSession) (MediaRoom, error) {
	room, err := o.opts.Rooms.Connect(ctx, job.RoomName)
	if err != nil {
		initErr := &conversation.PipelineInitError{Stage: conversation.StageMedia, Err: err}
		_ = session.Fail(initErr.Error())
		return nil, initErr
	}

	logger.Info("[Orchestrator] waiting for participant")
	p, err := room.WaitForParticipant(ctx)
	if err != nil {
		_ = room.Close()
		switch {
		case ctx.Err() != nil:
			_ = session.Transition(callsession.StateEnded, "cancelled while waiting")
			return nil, ctx.Err()
		case errors.Is(err, media.ErrRoomClosed):
			_ = session.Transition(callsession.StateEnded, "room closed before anyone joined")
			return nil, nil
		default:
			_ = session.Fail(err.Error())
			return nil, err
		}
	}

	logger.Info("[Orchestrator] participant joined", zap.String("identity", p.Identity))
	if err := session.Transition(callsession.StateConnected, "participant "+p.Identity+" joined"); err != nil {
		_ = room.Close()
		return nil, err
	}
	return room, nil
}

func (o *Orchestrator) record(ctx context.Context, job callsession.CallJob, session *callsession.CallSession) (*recording.Handle, func()) {
	h, release := o.opts.Recorder.Acquire(ctx, job.RoomName, job.PhoneNumber)
	if h != nil {
		if err := session.AttachRecording(h); err != nil {
			o.logger.Warn("[Orchestrator] recording not attached", zap.Error(err))
		}
	}
	return h, release
}

func (o *Orchestrator) converse(ctx context.Context, logger *zap.Logger, job callsession.CallJob, persona conversation.Persona, room MediaRoom, session *callsession.CallSession) error {
	pipeline, err := o.opts.Pipelines(ctx, job, persona, room)
	if err != nil {
		var initErr *conversation.PipelineInitError
		if !errors.As(err, &initErr) {
			initErr = &conversation.PipelineInitError{Stage: conversation.StageConfig, Err: err}
		}
		_ = session.Fail(initErr.Error())
		return initErr
	}

	err = pipeline.Run(ctx, func() {
		if terr := session.Transition(callsession.StateActive, "agent joined with persona "+persona.Name); terr != nil {
			logger.Warn("[Orchestrator] activate session", zap.Error(terr))
		}
	})

	var initErr *conversation.PipelineInitError
	switch {
	case errors.As(err, &initErr):
		_ = session.Fail(err.Error())
	case err == nil:
		_ = session.Transition(callsession.StateEnded, "room closed")
	default:
		_ = session.Transition(callsession.StateEnded, err.Error())
	}
	return err
}

// persona picks the job's persona, falling back to the configured one
func (o *Orchestrator) persona(logger *zap.Logger, job callsession.CallJob) conversation.Persona {
	name := o.opts.DefaultPersona
	if job.Persona != "" {
		if _, ok := conversation.LookupPersona(job.Persona); ok {
			name = job.Persona
		} else {
			logger.Warn("[Orchestrator] unknown persona in job metadata, using default",
				zap.String("requested", job.Persona), zap.String("default", name))
		}
	}
	p, _ := conversation.LookupPersona(name)
	return p.WithCustomer(job.CustomerName)
}

// MediaConnector adapts a media bridge connector
func MediaConnector(c *media.Connector) RoomConnector {
	return mediaConnector{c}
}

type mediaConnector struct{ c *media.Connector }

func (m mediaConnector) Connect(ctx context.Context, room string) (MediaRoom, error) {
	r, err := m.c.Connect(ctx, room)
	if err != nil {
		return nil, err
	}
	return r, nil
}
