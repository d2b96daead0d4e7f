package controlplane

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const twirpPrefix = "/twirp/livekit."

// Options configures a Client
type Options struct {
	URL       string
	APIKey    string
	APISecret string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// Client talks to the room, SIP, egress and dispatch services over Twirp JSON.
// It holds no per-call state and is safe for concurrent use.
type Client struct {
	http      *resty.Client
	timeout   time.Duration
	apiKey    string
	apiSecret string
	logger    *zap.Logger
}

// TwirpError is the error body returned by the control plane
type TwirpError struct {
	Code   string            `json:"code"`
	Msg    string            `json:"msg"`
	Meta   map[string]string `json:"meta,omitempty"`
	Status int               `json:"-"`
}

func (e *TwirpError) Error() string {
	return fmt.Sprintf("twirp error %s: %s", e.Code, e.Msg)
}

// IsNotFound reports whether err is a Twirp not_found error
func IsNotFound(err error) bool {
	var te *TwirpError
	return errors.As(err, &te) && te.Code == "not_found"
}

// NewClient creates a control plane client
func NewClient(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("control plane url is required")
	}
	if opts.APIKey == "" || opts.APISecret == "" {
		return nil, errors.New("control plane api key and secret are required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient := resty.New().
		SetBaseURL(HTTPURL(opts.URL)).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:      httpClient,
		timeout:   opts.Timeout,
		apiKey:    opts.APIKey,
		apiSecret: opts.APISecret,
		logger:    opts.Logger,
	}, nil
}

// HTTPURL maps a websocket server URL to its HTTP API base
func HTTPURL(u string) string {
	u = strings.TrimRight(u, "/")
	switch {
	case strings.HasPrefix(u, "wss://"):
		return "https://" + strings.TrimPrefix(u, "wss://")
	case strings.HasPrefix(u, "ws://"):
		return "http://" + strings.TrimPrefix(u, "ws://")
	}
	return u
}

// Token returns a builder preloaded with this client's credentials
func (c *Client) Token() *AccessToken {
	return NewAccessToken(c.apiKey, c.apiSecret)
}

// bounded applies the client timeout. Calls that block on the far side
// (wait_until_answered) skip it and rely on ctx alone.
func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) call(ctx context.Context, service, method string, token *AccessToken, in, out any) error {
	jwtToken, err := token.ToJWT()
	if err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(jwtToken).
		SetBody(in).
		SetResult(out).
		SetError(&TwirpError{}).
		Post(twirpPrefix + service + "/" + method)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", service, method, err)
	}

	if resp.IsError() {
		twirpErr, ok := resp.Error().(*TwirpError)
		if !ok || twirpErr.Code == "" {
			twirpErr = &TwirpError{Code: codeForStatus(resp.StatusCode()), Msg: strings.TrimSpace(string(resp.Body()))}
		}
		twirpErr.Status = resp.StatusCode()
		c.logger.Debug("[ControlPlane] request rejected",
			zap.String("method", service+"."+method),
			zap.Int("status", resp.StatusCode()),
			zap.String("code", twirpErr.Code))
		return twirpErr
	}
	return nil
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusBadRequest:
		return "invalid_argument"
	}
	return "unknown"
}
