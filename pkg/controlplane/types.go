package controlplane

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Int64 decodes 64-bit integers that the JSON mapping may render as strings
type Int64 int64

func (i *Int64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*i = Int64(v)
	return nil
}

func (i Int64) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatInt(int64(i), 10))
}

type Room struct {
	SID             string `json:"sid"`
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout,omitempty"`
	MaxParticipants uint32 `json:"max_participants,omitempty"`
	CreationTime    Int64  `json:"creation_time,omitempty"`
	Metadata        string `json:"metadata,omitempty"`
	NumParticipants uint32 `json:"num_participants,omitempty"`
}

type CreateRoomRequest struct {
	Name            string `json:"name"`
	EmptyTimeout    uint32 `json:"empty_timeout,omitempty"`
	MaxParticipants uint32 `json:"max_participants,omitempty"`
	Metadata        string `json:"metadata,omitempty"`
}

type ListRoomsRequest struct {
	Names []string `json:"names,omitempty"`
}

type ListRoomsResponse struct {
	Rooms []*Room `json:"rooms"`
}

type ListParticipantsRequest struct {
	Room string `json:"room"`
}

type ParticipantInfo struct {
	SID      string `json:"sid"`
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	State    string `json:"state,omitempty"`
	Metadata string `json:"metadata,omitempty"`
	JoinedAt Int64  `json:"joined_at,omitempty"`
}

type ListParticipantsResponse struct {
	Participants []*ParticipantInfo `json:"participants"`
}

type CreateSIPParticipantRequest struct {
	SIPTrunkID          string `json:"sip_trunk_id"`
	SIPCallTo           string `json:"sip_call_to"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity,omitempty"`
	ParticipantName     string `json:"participant_name,omitempty"`
	ParticipantMetadata string `json:"participant_metadata,omitempty"`
	PlayRingtone        bool   `json:"play_ringtone,omitempty"`
	WaitUntilAnswered   bool   `json:"wait_until_answered,omitempty"`
}

type SIPParticipantInfo struct {
	ParticipantID       string `json:"participant_id"`
	ParticipantIdentity string `json:"participant_identity"`
	RoomName            string `json:"room_name"`
	SIPCallID           string `json:"sip_call_id,omitempty"`
}

type EncodedFileOutput struct {
	FileType string `json:"file_type,omitempty"`
	Filepath string `json:"filepath"`
}

type RoomCompositeEgressRequest struct {
	RoomName    string               `json:"room_name"`
	Layout      string               `json:"layout,omitempty"`
	AudioOnly   bool                 `json:"audio_only,omitempty"`
	FileOutputs []*EncodedFileOutput `json:"file_outputs,omitempty"`
}

type StopEgressRequest struct {
	EgressID string `json:"egress_id"`
}

type EgressInfo struct {
	EgressID  string `json:"egress_id"`
	RoomName  string `json:"room_name,omitempty"`
	Status    string `json:"status,omitempty"`
	StartedAt Int64  `json:"started_at,omitempty"`
	Error     string `json:"error,omitempty"`
}

type CreateAgentDispatchRequest struct {
	AgentName string `json:"agent_name"`
	Room      string `json:"room"`
	Metadata  string `json:"metadata,omitempty"`
}

type AgentDispatch struct {
	ID        string `json:"id"`
	AgentName string `json:"agent_name"`
	Room      string `json:"room"`
	Metadata  string `json:"metadata,omitempty"`
}
