package recognizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/conversation"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

func nextTranscript(t *testing.T, ch <-chan conversation.Transcript) conversation.Transcript {
	t.Helper()
	select {
	case tr, ok := <-ch:
		require.True(t, ok, "transcripts closed")
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("no transcript")
		return conversation.Transcript{}
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "sphinx"})
	assert.Error(t, err)

	_, err = New(Config{Provider: "whisper"})
	assert.ErrorContains(t, err, "OPENAI_API_KEY")

	_, err = New(Config{Provider: "Deepgram", DeepgramKey: "dg"})
	assert.NoError(t, err)
}

func TestEncodeWAV(t *testing.T) {
	pcm := media.PCMBytes([]int16{0, 1000, -1000, 32767})
	data, err := EncodeWAV(pcm, media.SampleRate)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))

	r := wav.NewReader(bytes.NewReader(data))
	format, err := r.Format()
	require.NoError(t, err)
	assert.Equal(t, uint32(media.SampleRate), format.SampleRate)
	assert.Equal(t, uint16(1), format.NumChannels)
	assert.Equal(t, uint16(16), format.BitsPerSample)
}

func TestWhisper_TranscribesUtterance(t *testing.T) {
	var (
		mu     sync.Mutex
		models []string
		sizes  []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		file, _, err := r.FormFile("file")
		if assert.NoError(t, err) {
			data, _ := io.ReadAll(file)
			mu.Lock()
			sizes = append(sizes, len(data))
			models = append(models, r.FormValue("model"))
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" Yes, this is Ritav. "}`))
	}))
	defer srv.Close()

	rec, err := NewWhisper(Config{OpenAIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1", Language: "en"})
	require.NoError(t, err)
	stream, err := rec.Stream(context.Background())
	require.NoError(t, err)

	// too short to be speech
	require.NoError(t, stream.SendAudio(make([]byte, 320)))
	require.NoError(t, stream.EndUtterance())

	for i := 0; i < 25; i++ {
		require.NoError(t, stream.SendAudio(make([]byte, media.DurationBytes(20))))
	}
	require.NoError(t, stream.EndUtterance())

	tr := nextTranscript(t, stream.Transcripts())
	assert.Equal(t, conversation.Transcript{Text: "Yes, this is Ritav.", Final: true}, tr)

	require.NoError(t, stream.Close())
	_, ok := <-stream.Transcripts()
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
	assert.ErrorIs(t, stream.SendAudio([]byte{0, 0}), ErrStreamClosed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"whisper-1"}, models)
	require.Len(t, sizes, 1)
	assert.Greater(t, sizes[0], 25*media.DurationBytes(20))
}

func TestWhisper_FailureEndsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	rec, err := NewWhisper(Config{OpenAIKey: "sk-test", OpenAIBaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	stream, err := rec.Stream(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.SendAudio(make([]byte, minUtteranceBytes)))
	require.NoError(t, stream.EndUtterance())

	select {
	case _, ok := <-stream.Transcripts():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
	assert.ErrorContains(t, stream.Err(), "slow down")
}

type deepgramServer struct {
	*httptest.Server
	mu       sync.Mutex
	auth     string
	query    string
	audio    int
	controls []string
}

// newDeepgramServer answers every Finalize with the scripted results
func newDeepgramServer(t *testing.T, results []string) *deepgramServer {
	ds := &deepgramServer{}
	upgrader := websocket.Upgrader{}
	ds.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ds.mu.Lock()
		ds.auth = r.Header.Get("Authorization")
		ds.query = r.URL.RawQuery
		ds.mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				ds.mu.Lock()
				ds.audio += len(msg)
				ds.mu.Unlock()
				continue
			}
			var ctl deepgramControl
			_ = json.Unmarshal(msg, &ctl)
			ds.mu.Lock()
			ds.controls = append(ds.controls, ctl.Type)
			ds.mu.Unlock()
			switch ctl.Type {
			case "Finalize":
				for _, res := range results {
					if err := conn.WriteMessage(websocket.TextMessage, []byte(res)); err != nil {
						return
					}
				}
			case "CloseStream":
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
		}
	}))
	return ds
}

func (ds *deepgramServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ds.URL, "http") + "/v1/listen"
}

func TestDeepgram_StreamsTurns(t *testing.T) {
	ds := newDeepgramServer(t, []string{
		`{"type":"Metadata","request_id":"abc"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"yes"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"Yes, speaking."}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"Who is this?"}]}}`,
	})
	defer ds.Close()

	rec, err := NewDeepgram(Config{DeepgramKey: "dg-key", DeepgramURL: ds.wsURL(), Language: "en"})
	require.NoError(t, err)
	stream, err := rec.Stream(context.Background())
	require.NoError(t, err)

	require.NoError(t, stream.SendAudio(make([]byte, 320)))
	require.NoError(t, stream.EndUtterance())

	assert.Equal(t, conversation.Transcript{Text: "yes"}, nextTranscript(t, stream.Transcripts()))
	assert.Equal(t, conversation.Transcript{Text: "Yes, speaking. Who is this?", Final: true}, nextTranscript(t, stream.Transcripts()))

	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Err())

	ds.mu.Lock()
	defer ds.mu.Unlock()
	assert.Equal(t, "Token dg-key", ds.auth)
	assert.Contains(t, ds.query, "model=nova-2-phonecall")
	assert.Contains(t, ds.query, "encoding=linear16")
	assert.Contains(t, ds.query, "sample_rate=8000")
	assert.Equal(t, 320, ds.audio)
	assert.Equal(t, "Finalize", ds.controls[0])
}

func TestDeepgram_FinalizeFlushesPending(t *testing.T) {
	ds := newDeepgramServer(t, []string{
		`{"type":"Results","is_final":true,"from_finalize":true,"channel":{"alternatives":[{"transcript":"I can pay Friday"}]}}`,
	})
	defer ds.Close()

	rec, err := NewDeepgram(Config{DeepgramKey: "dg-key", DeepgramURL: ds.wsURL()})
	require.NoError(t, err)
	stream, err := rec.Stream(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.EndUtterance())
	assert.Equal(t, conversation.Transcript{Text: "I can pay Friday", Final: true}, nextTranscript(t, stream.Transcripts()))
}

func TestDeepgram_KeepAliveWithoutAudio(t *testing.T) {
	ds := newDeepgramServer(t, nil)
	defer ds.Close()

	rec, err := NewDeepgram(Config{DeepgramKey: "dg-key", DeepgramURL: ds.wsURL()})
	require.NoError(t, err)
	rec.keepAlive = 20 * time.Millisecond
	stream, err := rec.Stream(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		ds.mu.Lock()
		defer ds.mu.Unlock()
		n := 0
		for _, c := range ds.controls {
			if c == "KeepAlive" {
				n++
			}
		}
		return n >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, stream.Close())
	ds.mu.Lock()
	defer ds.mu.Unlock()
	assert.Zero(t, ds.audio)
}

func TestDeepgram_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rec, err := NewDeepgram(Config{DeepgramKey: "bad", DeepgramURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)
	_, err = rec.Stream(context.Background())
	assert.ErrorContains(t, err, "401")
}
