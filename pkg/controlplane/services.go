package controlplane

import (
	"context"
)

// CreateRoom creates the named room, returning the existing one if it is already there
func (c *Client) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*Room, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	out := &Room{}
	token := c.Token().AddGrant(&VideoGrant{RoomCreate: true})
	if err := c.call(ctx, "RoomService", "CreateRoom", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListRooms(ctx context.Context, req *ListRoomsRequest) (*ListRoomsResponse, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	out := &ListRoomsResponse{}
	token := c.Token().AddGrant(&VideoGrant{RoomList: true})
	if err := c.call(ctx, "RoomService", "ListRooms", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListParticipants(ctx context.Context, req *ListParticipantsRequest) (*ListParticipantsResponse, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	out := &ListParticipantsResponse{}
	token := c.Token().AddGrant(&VideoGrant{RoomAdmin: true, Room: req.Room})
	if err := c.call(ctx, "RoomService", "ListParticipants", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSIPParticipant dials out through a SIP trunk. With WaitUntilAnswered
// set, the call returns only once the callee picks up or the dial fails.
func (c *Client) CreateSIPParticipant(ctx context.Context, req *CreateSIPParticipantRequest) (*SIPParticipantInfo, error) {
	if !req.WaitUntilAnswered {
		var cancel context.CancelFunc
		ctx, cancel = c.bounded(ctx)
		defer cancel()
	}
	out := &SIPParticipantInfo{}
	token := c.Token().
		AddGrant(&VideoGrant{RoomAdmin: true, Room: req.RoomName}).
		AddSIPGrant(&SIPGrant{Call: true})
	if err := c.call(ctx, "SIP", "CreateSIPParticipant", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StartRoomCompositeEgress(ctx context.Context, req *RoomCompositeEgressRequest) (*EgressInfo, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	out := &EgressInfo{}
	token := c.Token().AddGrant(&VideoGrant{RoomRecord: true})
	if err := c.call(ctx, "Egress", "StartRoomCompositeEgress", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StopEgress(ctx context.Context, req *StopEgressRequest) (*EgressInfo, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	out := &EgressInfo{}
	token := c.Token().AddGrant(&VideoGrant{RoomRecord: true})
	if err := c.call(ctx, "Egress", "StopEgress", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateDispatch asks the named agent worker to join room with metadata
func (c *Client) CreateDispatch(ctx context.Context, req *CreateAgentDispatchRequest) (*AgentDispatch, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	out := &AgentDispatch{}
	token := c.Token().AddGrant(&VideoGrant{RoomAdmin: true, Room: req.Room})
	if err := c.call(ctx, "AgentDispatchService", "CreateDispatch", token, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
