package media

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrRoomClosed is returned once the room connection has ended
var ErrRoomClosed = errors.New("room closed")

const (
	eventParticipantJoined = "participant_joined"
	eventParticipantLeft   = "participant_left"
	eventMedia             = "media"
	eventClear             = "clear"
	eventRoomClosed        = "room_closed"
)

type bridgeMessage struct {
	Event       string       `json:"event"`
	Participant *Participant `json:"participant,omitempty"`
	Media       *mediaChunk  `json:"media,omitempty"`
}

type mediaChunk struct {
	Payload   string `json:"payload"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Participant is a remote member of the room
type Participant struct {
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
}

// Frame is a chunk of caller audio as 16-bit little-endian PCM at SampleRate
type Frame struct {
	PCM []byte
	At  time.Time
}

// ConnectorOptions configures a Connector
type ConnectorOptions struct {
	BridgeURL   string
	APIKey      string
	APISecret   string
	Identity    string
	FrameBuffer int
	Logger      *zap.Logger
	Dialer      *websocket.Dialer
}

// Connector joins rooms on the media bridge
type Connector struct {
	opts   ConnectorOptions
	logger *zap.Logger
}

func NewConnector(opts ConnectorOptions) *Connector {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 256
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Identity == "" {
		opts.Identity = "agent"
	}
	return &Connector{opts: opts, logger: opts.Logger}
}

// Connect joins room and starts reading its events
func (c *Connector) Connect(ctx context.Context, room string) (*Room, error) {
	if c.opts.BridgeURL == "" {
		return nil, errors.New("media bridge url is not configured")
	}
	identity := c.opts.Identity + "-" + room
	token, err := controlplane.RoomJoinToken(c.opts.APIKey, c.opts.APISecret, room, identity, "Agent")
	if err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(c.opts.BridgeURL, "/") + "/rooms/" + url.PathEscape(room)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := c.opts.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("join room %s: %w (status %d)", room, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("join room %s: %w", room, err)
	}

	r := &Room{
		name:         room,
		conn:         conn,
		frames:       make(chan Frame, c.opts.FrameBuffer),
		participants: make(chan Participant, 4),
		done:         make(chan struct{}),
		logger:       c.logger.With(zap.String("room", room)),
	}
	go r.readLoop()
	c.logger.Info("[Media] joined room", zap.String("room", room), zap.String("identity", identity))
	return r, nil
}

// Room is the agent's media connection to one call
type Room struct {
	name         string
	conn         *websocket.Conn
	frames       chan Frame
	participants chan Participant
	done         chan struct{}
	closeOnce    sync.Once
	writeMu      sync.Mutex
	logger       *zap.Logger

	mu     sync.Mutex
	remote *Participant
}

func (r *Room) Name() string { return r.name }

// Frames delivers caller audio until the room ends. Frames are dropped when
// the consumer falls behind.
func (r *Room) Frames() <-chan Frame { return r.frames }

// Done is closed when the room has ended
func (r *Room) Done() <-chan struct{} { return r.done }

// WaitForParticipant blocks until a remote participant is present. There is
// no timeout beyond ctx.
func (r *Room) WaitForParticipant(ctx context.Context) (Participant, error) {
	r.mu.Lock()
	if r.remote != nil {
		p := *r.remote
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	select {
	case p := <-r.participants:
		return p, nil
	case <-r.done:
		return Participant{}, ErrRoomClosed
	case <-ctx.Done():
		return Participant{}, ctx.Err()
	}
}

// Publish sends agent audio (16-bit PCM at SampleRate) into the room
func (r *Room) Publish(ctx context.Context, pcm []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.send(bridgeMessage{
		Event: eventMedia,
		Media: &mediaChunk{Payload: base64.StdEncoding.EncodeToString(EncodeMuLaw(pcm))},
	})
}

// ClearPlayback drops audio the bridge has buffered but not yet played
func (r *Room) ClearPlayback() error {
	return r.send(bridgeMessage{Event: eventClear})
}

// Close leaves the room
func (r *Room) Close() error {
	r.shutdown()
	return nil
}

func (r *Room) send(msg bridgeMessage) error {
	select {
	case <-r.done:
		return ErrRoomClosed
	default:
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.conn.WriteJSON(msg)
}

func (r *Room) shutdown() {
	r.closeOnce.Do(func() {
		close(r.done)
		_ = r.conn.Close()
	})
}

func (r *Room) readLoop() {
	defer r.shutdown()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-r.done:
				default:
					r.logger.Warn("[Media] read failed", zap.Error(err))
				}
			}
			return
		}

		var msg bridgeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.logger.Debug("[Media] ignoring malformed message", zap.Error(err))
			continue
		}

		switch msg.Event {
		case eventParticipantJoined:
			if msg.Participant == nil {
				continue
			}
			r.mu.Lock()
			first := r.remote == nil
			if first {
				p := *msg.Participant
				r.remote = &p
			}
			r.mu.Unlock()
			if first {
				r.logger.Info("[Media] participant joined", zap.String("identity", msg.Participant.Identity))
				select {
				case r.participants <- *msg.Participant:
				default:
				}
			}
		case eventMedia:
			if msg.Media == nil {
				continue
			}
			ulaw, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				continue
			}
			select {
			case r.frames <- Frame{PCM: DecodeMuLaw(ulaw), At: time.Now()}:
			default:
			}
		case eventParticipantLeft:
			r.mu.Lock()
			remote := r.remote
			r.mu.Unlock()
			if remote != nil && msg.Participant != nil && msg.Participant.Identity == remote.Identity {
				r.logger.Info("[Media] participant left", zap.String("identity", remote.Identity))
				return
			}
		case eventRoomClosed:
			r.logger.Info("[Media] room closed")
			return
		}
	}
}
