package bootstrap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	req *controlplane.CreateAgentDispatchRequest
	err error
}

func (f *fakeDispatcher) CreateDispatch(ctx context.Context, req *controlplane.CreateAgentDispatchRequest) (*controlplane.AgentDispatch, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &controlplane.AgentDispatch{ID: "AD_123", AgentName: req.AgentName, Room: req.Room, Metadata: req.Metadata}, nil
}

// roomsAt reports the room with n participants, n taken from counts in turn
type roomsAt struct {
	counts []int
	calls  int
}

func (r *roomsAt) ListRooms(ctx context.Context, req *controlplane.ListRoomsRequest) (*controlplane.ListRoomsResponse, error) {
	return &controlplane.ListRoomsResponse{Rooms: []*controlplane.Room{{Name: req.Names[0]}}}, nil
}

func (r *roomsAt) ListParticipants(ctx context.Context, req *controlplane.ListParticipantsRequest) (*controlplane.ListParticipantsResponse, error) {
	n := r.counts[len(r.counts)-1]
	if r.calls < len(r.counts) {
		n = r.counts[r.calls]
	}
	r.calls++
	resp := &controlplane.ListParticipantsResponse{}
	for i := 0; i < n; i++ {
		resp.Participants = append(resp.Participants, &controlplane.ParticipantInfo{Identity: "p"})
	}
	return resp, nil
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func TestOutboundRoomName(t *testing.T) {
	name, err := OutboundRoomName()
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^outbound-[0-9]{10}$`), name)
}

func TestDial_DispatchesAndMonitors(t *testing.T) {
	d := &fakeDispatcher{}
	rooms := &roomsAt{counts: []int{1, 2}}
	var out bytes.Buffer

	room, err := Dial(context.Background(), &out, d, rooms, DialRequest{
		Phone:        "+15551234567",
		CustomerName: "Dana Smith",
		AgentName:    "debt-collection-agent",
		Attempts:     10,
		Interval:     5 * time.Second,
	}, monitor.Options{ActiveThreshold: 1, Sleep: noSleep})
	require.NoError(t, err)

	require.NotNil(t, d.req)
	assert.Equal(t, room, d.req.Room)
	assert.Equal(t, "debt-collection-agent", d.req.AgentName)
	var md map[string]string
	require.NoError(t, json.Unmarshal([]byte(d.req.Metadata), &md))
	assert.Equal(t, "+15551234567", md["phone_number"])
	assert.Equal(t, "Dana Smith", md["customer_name"])
	assert.NotEmpty(t, md["request_id"])

	text := out.String()
	assert.Contains(t, text, "Agent dispatch created: AD_123")
	assert.Contains(t, text, "Status: ended | Participants: 1\nStatus: active | Participants: 2\n")
	assert.Contains(t, text, "Call is active")
	assert.Equal(t, 2, rooms.calls)
}

func TestDial_MonitoringNeverActiveStillSucceeds(t *testing.T) {
	var out bytes.Buffer
	_, err := Dial(context.Background(), &out, &fakeDispatcher{}, &roomsAt{counts: []int{1}},
		DialRequest{Phone: "+15550000000", Attempts: 3, Interval: time.Second},
		monitor.Options{ActiveThreshold: 1, Sleep: noSleep})
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out.String(), "Status: ended"))
	assert.NotContains(t, out.String(), "Call is active")
}

func TestDial_DispatchFailure(t *testing.T) {
	var out bytes.Buffer
	rooms := &roomsAt{counts: []int{2}}
	_, err := Dial(context.Background(), &out, &fakeDispatcher{err: errors.New("unauthorized")}, rooms,
		DialRequest{Phone: "+15550000000", Attempts: 3, Interval: time.Second},
		monitor.Options{Sleep: noSleep})
	assert.ErrorContains(t, err, "unauthorized")
	assert.Contains(t, out.String(), "Failed to create dispatch")
	assert.Zero(t, rooms.calls)
}

func TestDial_RejectsLocalNumber(t *testing.T) {
	d := &fakeDispatcher{}
	_, err := Dial(context.Background(), &bytes.Buffer{}, d, &roomsAt{counts: []int{0}},
		DialRequest{Phone: "5551234567"}, monitor.Options{Sleep: noSleep})
	assert.ErrorIs(t, err, ErrPhoneFormat)
	assert.Nil(t, d.req)
}
