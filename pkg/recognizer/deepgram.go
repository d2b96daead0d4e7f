package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultDeepgramURL = "wss://api.deepgram.com/v1/listen"

// Deepgram closes a socket that carries no audio for about 10s
const deepgramKeepAlive = 5 * time.Second

// Deepgram streams caller audio over a websocket and receives interim and
// final transcripts while the caller is still talking.
type Deepgram struct {
	apiKey   string
	endpoint string
	language string
	dialer   *websocket.Dialer
	logger   *zap.Logger

	writeTimeout time.Duration
	keepAlive    time.Duration
}

func NewDeepgram(cfg Config) (*Deepgram, error) {
	if cfg.DeepgramKey == "" {
		return nil, errors.New("DEEPGRAM_API_KEY is required for deepgram")
	}
	endpoint := cfg.DeepgramURL
	if endpoint == "" {
		endpoint = defaultDeepgramURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deepgram{
		apiKey:       cfg.DeepgramKey,
		endpoint:     endpoint,
		language:     cfg.Language,
		dialer:       websocket.DefaultDialer,
		logger:       logger,
		writeTimeout: 10 * time.Second,
		keepAlive:    deepgramKeepAlive,
	}, nil
}

// ListenURL is the streaming endpoint with the telephony query parameters
func (d *Deepgram) ListenURL() (string, error) {
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", "nova-2-phonecall")
	q.Set("language", d.language)
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", fmt.Sprint(media.SampleRate))
	q.Set("channels", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (d *Deepgram) Stream(ctx context.Context) (conversation.RecognizerStream, error) {
	endpoint, err := d.ListenURL()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Token "+d.apiKey)

	conn, resp, err := d.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial deepgram: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial deepgram: %w", err)
	}
	requestID := ""
	if resp != nil {
		requestID = resp.Header.Get("dg-request-id")
	}

	s := &deepgramStream{
		transcriptSink: newTranscriptSink(),
		conn:           conn,
		writeTimeout:   d.writeTimeout,
		logger:         d.logger.With(zap.String("requestId", requestID)),
	}
	s.wg.Add(1)
	go s.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.stop(ctx.Err())
			_ = s.conn.Close()
		case <-s.done:
		}
	}()
	go s.keepAliveLoop(d.keepAlive)
	return s, nil
}

type deepgramStream struct {
	*transcriptSink
	conn         *websocket.Conn
	writeTimeout time.Duration
	logger       *zap.Logger

	writeMu sync.Mutex
	wg      sync.WaitGroup

	// is_final pieces of the utterance not yet closed by speech_final
	pending []string
}

type deepgramControl struct {
	Type string `json:"type"`
}

type deepgramResult struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) write(messageType int, data []byte) error {
	if s.stopped() {
		return ErrStreamClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(messageType, data)
}

func (s *deepgramStream) control(kind string) error {
	data, _ := json.Marshal(deepgramControl{Type: kind})
	return s.write(websocket.TextMessage, data)
}

// keepAliveLoop holds the socket open while the agent speaks and no caller
// audio is flowing.
func (s *deepgramStream) keepAliveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.control("KeepAlive"); err != nil {
				if !errors.Is(err, ErrStreamClosed) && !isNormalCloseError(err) {
					s.logger.Debug("[Deepgram] keepalive failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (s *deepgramStream) SendAudio(pcm []byte) error {
	return s.write(websocket.BinaryMessage, pcm)
}

// EndUtterance asks Deepgram to flush what it has heard as final
func (s *deepgramStream) EndUtterance() error {
	return s.control("Finalize")
}

func (s *deepgramStream) Close() error {
	if !s.stopped() {
		if err := s.control("CloseStream"); err != nil && !isNormalCloseError(err) {
			s.logger.Debug("[Deepgram] close stream message failed", zap.Error(err))
		}
	}
	s.stop(nil)
	err := s.conn.Close()
	s.wg.Wait()
	if err != nil && !isNormalCloseError(err) {
		return err
	}
	return nil
}

func (s *deepgramStream) readLoop() {
	defer s.wg.Done()
	defer close(s.out)

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.stopped() || isNormalCloseError(err) {
				s.stop(nil)
			} else {
				s.logger.Error("[Deepgram] read failed", zap.Error(err))
				s.stop(err)
			}
			return
		}

		var res deepgramResult
		if err := json.Unmarshal(msg, &res); err != nil {
			s.logger.Warn("[Deepgram] undecodable message", zap.Error(err))
			continue
		}
		t, ok := s.collect(res)
		if !ok {
			continue
		}
		if !s.emit(t) {
			return
		}
	}
}

// collect folds Deepgram results into caller turns: pieces marked is_final
// accumulate until speech_final (or a Finalize flush) closes the turn.
func (s *deepgramStream) collect(res deepgramResult) (conversation.Transcript, bool) {
	if res.Type != "" && res.Type != "Results" {
		return conversation.Transcript{}, false
	}
	text := ""
	if len(res.Channel.Alternatives) > 0 {
		text = strings.TrimSpace(res.Channel.Alternatives[0].Transcript)
	}

	if !res.IsFinal {
		if text == "" {
			return conversation.Transcript{}, false
		}
		return conversation.Transcript{Text: strings.Join(append(append([]string(nil), s.pending...), text), " ")}, true
	}

	if text != "" {
		s.pending = append(s.pending, text)
	}
	if !res.SpeechFinal && !res.FromFinalize {
		return conversation.Transcript{}, false
	}
	if len(s.pending) == 0 {
		return conversation.Transcript{}, false
	}
	turn := strings.Join(s.pending, " ")
	s.pending = nil
	return conversation.Transcript{Text: turn, Final: true}, true
}

func isNormalCloseError(err error) bool {
	var closeError *websocket.CloseError
	if errors.As(err, &closeError) {
		switch closeError.Code {
		case websocket.CloseNormalClosure,
			websocket.CloseGoingAway,
			websocket.CloseNoStatusReceived:
			return true
		}
	}
	return errors.Is(err, ErrStreamClosed) || strings.Contains(err.Error(), "use of closed network connection")
}
