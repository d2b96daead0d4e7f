package callsession

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// Mode call direction
type Mode string

const (
	ModeInbound  Mode = "inbound"
	ModeOutbound Mode = "outbound"
)

// CallJob is one unit of work handed to the worker. It is immutable once built.
type CallJob struct {
	RoomName     string
	Metadata     string
	PhoneNumber  string
	CustomerName string
	Persona      string
}

// Mode reports outbound when the job carries a phone number
func (j CallJob) Mode() Mode {
	if j.PhoneNumber != "" {
		return ModeOutbound
	}
	return ModeInbound
}

// JobMetadata is the decoded form of the job metadata bag
type JobMetadata struct {
	PhoneNumber  string
	CustomerName string
	Persona      string
	Raw          map[string]any
}

var errNotObject = errors.New("metadata is not a JSON object")

// ParseJobMetadata decodes the metadata bag. Only string values are taken
// for the known keys; anything else is left in Raw.
func ParseJobMetadata(metadata string) (JobMetadata, error) {
	var md JobMetadata
	if strings.TrimSpace(metadata) == "" {
		return md, nil
	}

	var raw any
	if err := json.Unmarshal([]byte(metadata), &raw); err != nil {
		return md, err
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return md, errNotObject
	}

	md.Raw = obj
	md.PhoneNumber = stringField(obj, "phone_number")
	md.CustomerName = stringField(obj, "customer_name")
	md.Persona = stringField(obj, "persona")
	return md, nil
}

// ResolveMode decides the call direction from the job metadata. A non-blank
// string phone_number means outbound to exactly that value; every other
// input, malformed ones included, means inbound. It never fails.
func ResolveMode(metadata string, logger *zap.Logger) (Mode, string) {
	if logger == nil {
		logger = zap.NewNop()
	}

	md, err := ParseJobMetadata(metadata)
	if err != nil {
		logger.Info("[Resolver] unreadable job metadata, treating as inbound", zap.Error(err))
		return ModeInbound, ""
	}
	if strings.TrimSpace(md.PhoneNumber) == "" {
		if _, present := md.Raw["phone_number"]; present {
			logger.Info("[Resolver] phone_number present but unusable, treating as inbound")
		}
		return ModeInbound, ""
	}
	return ModeOutbound, md.PhoneNumber
}

// NewCallJob builds the job for room from its raw metadata
func NewCallJob(roomName, metadata string, logger *zap.Logger) CallJob {
	job := CallJob{RoomName: roomName, Metadata: metadata}
	if _, phone := ResolveMode(metadata, logger); phone != "" {
		job.PhoneNumber = phone
	}
	if md, err := ParseJobMetadata(metadata); err == nil {
		job.CustomerName = md.CustomerName
		job.Persona = md.Persona
	}
	return job
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
