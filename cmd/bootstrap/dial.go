package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/monitor"
	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid"
)

// Dispatcher hands a room to the agent worker
type Dispatcher interface {
	CreateDispatch(ctx context.Context, req *controlplane.CreateAgentDispatchRequest) (*controlplane.AgentDispatch, error)
}

// DialRequest is one invocation of the dial command
type DialRequest struct {
	Phone        string
	CustomerName string
	Persona      string
	AgentName    string
	Attempts     int
	Interval     time.Duration
}

var ErrPhoneFormat = errors.New("phone number must be in international format, e.g. +15551234567")

// OutboundRoomName returns outbound- followed by ten random digits
func OutboundRoomName() (string, error) {
	digits, err := gonanoid.Generate("0123456789", 10)
	if err != nil {
		return "", err
	}
	return "outbound-" + digits, nil
}

// DialMetadata builds the job metadata the worker reads
func DialMetadata(req DialRequest) (string, error) {
	md := map[string]string{
		"phone_number": req.Phone,
		"request_id":   uuid.NewString(),
	}
	if req.CustomerName != "" {
		md["customer_name"] = req.CustomerName
	}
	if req.Persona != "" {
		md["persona"] = req.Persona
	}
	b, err := json.Marshal(md)
	return string(b), err
}

// Dial dispatches the agent to a fresh room and then watches the room,
// printing a line per status check. Only the dispatch decides the result;
// monitoring is informational.
func Dial(ctx context.Context, out io.Writer, d Dispatcher, rooms monitor.RoomLister, req DialRequest, opts monitor.Options) (string, error) {
	if !strings.HasPrefix(req.Phone, "+") {
		return "", ErrPhoneFormat
	}
	room, err := OutboundRoomName()
	if err != nil {
		return "", err
	}
	metadata, err := DialMetadata(req)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(out, "Calling %s", req.Phone)
	if req.CustomerName != "" {
		fmt.Fprintf(out, " (%s)", req.CustomerName)
	}
	fmt.Fprintf(out, "\nRoom: %s\n", room)

	dispatch, err := d.CreateDispatch(ctx, &controlplane.CreateAgentDispatchRequest{
		AgentName: req.AgentName,
		Room:      room,
		Metadata:  metadata,
	})
	if err != nil {
		fmt.Fprintf(out, "Failed to create dispatch: %v\n", err)
		return room, fmt.Errorf("create dispatch: %w", err)
	}
	fmt.Fprintf(out, "Agent dispatch created: %s\n", dispatch.ID)
	fmt.Fprintln(out, "Monitoring call status...")

	opts.OnSnapshot = func(s monitor.StatusSnapshot) {
		line := fmt.Sprintf("Status: %s | Participants: %d", s.State, s.ParticipantCount)
		if s.Err != nil {
			line += " | " + s.Err.Error()
		}
		fmt.Fprintln(out, line)
	}
	if opts.Sleep == nil {
		opts.Sleep = monitor.Sleep
	}
	// the worker needs time to create the room, so wait before the first look
	if err := opts.Sleep(ctx, req.Interval); err != nil {
		return room, nil
	}
	snap := monitor.NewPoller(rooms, opts).Poll(ctx, room, req.Attempts, req.Interval)
	if snap.State == monitor.StateActive {
		fmt.Fprintln(out, "Call is active, the agent is talking.")
	}
	fmt.Fprintln(out, "Call monitoring complete.")
	return room, nil
}
