package callsession

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		mode     Mode
		phone    string
	}{
		{"empty", "", ModeInbound, ""},
		{"whitespace", "   ", ModeInbound, ""},
		{"empty object", "{}", ModeInbound, ""},
		{"phone number", `{"phone_number":"+15551234567"}`, ModeOutbound, "+15551234567"},
		{"phone kept verbatim", `{"phone_number":" +44 20 7946 0958"}`, ModeOutbound, " +44 20 7946 0958"},
		{"blank phone", `{"phone_number":""}`, ModeInbound, ""},
		{"spaces only phone", `{"phone_number":"   "}`, ModeInbound, ""},
		{"numeric phone", `{"phone_number":15551234567}`, ModeInbound, ""},
		{"null phone", `{"phone_number":null}`, ModeInbound, ""},
		{"other keys", `{"customer_name":"Ritav"}`, ModeInbound, ""},
		{"malformed json", `{"phone_number":`, ModeInbound, ""},
		{"array", `["+15551234567"]`, ModeInbound, ""},
		{"string", `"+15551234567"`, ModeInbound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, phone := ResolveMode(tt.metadata, nil)
			assert.Equal(t, tt.mode, mode)
			assert.Equal(t, tt.phone, phone)
		})
	}
}

func TestResolveMode_LogsFallback(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	mode, _ := ResolveMode("not json", zap.New(core))
	assert.Equal(t, ModeInbound, mode)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "treating as inbound")
}

func TestNewCallJob(t *testing.T) {
	job := NewCallJob("debt-collection-1", `{"phone_number":"+15551234567","customer_name":"Ritav Das","persona":"anjali"}`, nil)
	assert.Equal(t, "debt-collection-1", job.RoomName)
	assert.Equal(t, "+15551234567", job.PhoneNumber)
	assert.Equal(t, "Ritav Das", job.CustomerName)
	assert.Equal(t, "anjali", job.Persona)
	assert.Equal(t, ModeOutbound, job.Mode())

	inbound := NewCallJob("lobby", "", nil)
	assert.Equal(t, ModeInbound, inbound.Mode())
	assert.Empty(t, inbound.PhoneNumber)
}

func TestParseJobMetadata(t *testing.T) {
	md, err := ParseJobMetadata(`{"phone_number":"+1","account":{"last4":"4729"}}`)
	require.NoError(t, err)
	assert.Equal(t, "+1", md.PhoneNumber)
	assert.Contains(t, md.Raw, "account")

	_, err = ParseJobMetadata(`[1]`)
	assert.Error(t, err)
}
