package controlplane

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 6 * time.Hour

// VideoGrant carries room permissions
type VideoGrant struct {
	RoomCreate   bool   `json:"roomCreate,omitempty"`
	RoomList     bool   `json:"roomList,omitempty"`
	RoomRecord   bool   `json:"roomRecord,omitempty"`
	RoomAdmin    bool   `json:"roomAdmin,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
}

// SIPGrant carries telephony permissions
type SIPGrant struct {
	Admin bool `json:"admin,omitempty"`
	Call  bool `json:"call,omitempty"`
}

// Claims is the token body understood by the control plane and the media bridge
type Claims struct {
	jwt.RegisteredClaims
	Name     string      `json:"name,omitempty"`
	Metadata string      `json:"metadata,omitempty"`
	Video    *VideoGrant `json:"video,omitempty"`
	SIP      *SIPGrant   `json:"sip,omitempty"`
}

// AccessToken builds HS256 tokens signed with the API secret
type AccessToken struct {
	apiKey    string
	apiSecret string
	identity  string
	name      string
	metadata  string
	validFor  time.Duration
	video     *VideoGrant
	sip       *SIPGrant
	now       func() time.Time
}

func NewAccessToken(apiKey, apiSecret string) *AccessToken {
	return &AccessToken{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		validFor:  defaultTokenTTL,
		now:       time.Now,
	}
}

func (t *AccessToken) SetIdentity(identity string) *AccessToken {
	t.identity = identity
	return t
}

func (t *AccessToken) SetName(name string) *AccessToken {
	t.name = name
	return t
}

func (t *AccessToken) SetMetadata(md string) *AccessToken {
	t.metadata = md
	return t
}

func (t *AccessToken) SetValidFor(d time.Duration) *AccessToken {
	t.validFor = d
	return t
}

func (t *AccessToken) AddGrant(grant *VideoGrant) *AccessToken {
	t.video = grant
	return t
}

func (t *AccessToken) AddSIPGrant(grant *SIPGrant) *AccessToken {
	t.sip = grant
	return t
}

// ToJWT signs the token
func (t *AccessToken) ToJWT() (string, error) {
	if t.apiKey == "" || t.apiSecret == "" {
		return "", errors.New("api key and secret are required")
	}
	if t.video != nil && t.video.RoomJoin && t.identity == "" {
		return "", errors.New("identity is required for room join")
	}

	now := t.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.apiKey,
			Subject:   t.identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.validFor)),
		},
		Name:     t.name,
		Metadata: t.metadata,
		Video:    t.video,
		SIP:      t.sip,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.apiSecret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies a token issued by ToJWT and returns its claims
func ParseToken(token, apiSecret string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// RoomJoinToken issues a token allowing identity to join room and exchange audio
func RoomJoinToken(apiKey, apiSecret, room, identity, name string) (string, error) {
	yes := true
	return NewAccessToken(apiKey, apiSecret).
		SetIdentity(identity).
		SetName(name).
		AddGrant(&VideoGrant{RoomJoin: true, Room: room, CanPublish: &yes, CanSubscribe: &yes}).
		ToJWT()
}
