package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/callsession"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"github.com/code-100-precent/LingCollect/pkg/middleware"
	"github.com/code-100-precent/LingCollect/pkg/monitor"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRunner blocks each job until release is closed
type fakeRunner struct {
	mu      sync.Mutex
	jobs    []callsession.CallJob
	release chan struct{}
	state   callsession.State
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, job callsession.CallJob) (*callsession.CallSession, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	session := callsession.NewCallSession(job)
	select {
	case <-f.release:
	case <-ctx.Done():
		_ = session.Transition(callsession.StateEnded, "cancelled")
		return session, ctx.Err()
	}
	if f.state == callsession.StateFailed {
		_ = session.Fail("dial failed")
	} else {
		_ = session.Transition(callsession.StateEnded, "done")
	}
	return session, f.err
}

func (f *fakeRunner) submitted() []callsession.CallJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]callsession.CallJob(nil), f.jobs...)
}

type fakeStatus struct {
	snap       monitor.StatusSnapshot
	latest     map[string]monitor.StatusSnapshot
	remembered int
}

func (f *fakeStatus) Check(ctx context.Context, room string) monitor.StatusSnapshot {
	s := f.snap
	s.RoomName = room
	return s
}

func (f *fakeStatus) Latest(ctx context.Context, room string) (monitor.StatusSnapshot, bool) {
	s, ok := f.latest[room]
	return s, ok
}

func (f *fakeStatus) Remember(ctx context.Context, snap monitor.StatusSnapshot) {
	f.remembered++
	if f.latest == nil {
		f.latest = map[string]monitor.StatusSnapshot{}
	}
	f.latest[snap.RoomName] = snap
}

type envelope struct {
	Code  int             `json:"code"`
	Msg   string          `json:"msg"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func newServer(t *testing.T, opts Options) (*gin.Engine, *Handlers) {
	t.Helper()
	h := NewHandlers(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	engine := gin.New()
	h.Register(engine)
	return engine, h
}

func do(engine *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestSubmitJob_RunsInBackground(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	engine, h := newServer(t, Options{Jobs: runner})

	w, env := do(engine, http.MethodPost, "/api/jobs",
		`{"room_name":"outbound-0123456789","metadata":"{\"phone_number\":\"+15551234567\",\"customer_name\":\"Dana\"}"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, http.StatusAccepted, env.Code)

	var rec JobRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "outbound", rec.Mode)
	assert.Equal(t, JobRunning, rec.Status)

	require.Eventually(t, func() bool { return len(runner.submitted()) == 1 }, time.Second, 5*time.Millisecond)
	job := runner.submitted()[0]
	assert.Equal(t, "+15551234567", job.PhoneNumber)
	assert.Equal(t, "Dana", job.CustomerName)
	assert.Equal(t, 1, h.Running())

	// same room while running
	w, env = do(engine, http.MethodPost, "/api/jobs", `{"room_name":"outbound-0123456789"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "JOB_RUNNING", env.Error)

	close(runner.release)
	require.Eventually(t, func() bool { return h.Running() == 0 }, time.Second, 5*time.Millisecond)

	w, env = do(engine, http.MethodGet, "/api/jobs/outbound-0123456789", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, JobEnded, rec.Status)
	assert.Equal(t, "ended", rec.State)
	assert.NotNil(t, rec.FinishedAt)
}

func TestSubmitJob_FailedJobRecorded(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{}), state: callsession.StateFailed, err: errors.New("dial failed: busy")}
	close(runner.release)
	engine, h := newServer(t, Options{Jobs: runner})

	w, _ := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"r1","metadata":"{\"phone_number\":\"+1555\"}"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		rec, ok := h.record("r1")
		return ok && rec.Status != JobRunning
	}, time.Second, 5*time.Millisecond)

	rec, _ := h.record("r1")
	assert.Equal(t, JobFailed, rec.Status)
	assert.Equal(t, "dial failed: busy", rec.Error)
}

// jsonCache hands values back as JSON the way a shared backend does
type jsonCache struct {
	cache.Cache
}

func (j jsonCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return j.Cache.Set(ctx, key, json.RawMessage(b), expiration)
}

func TestSubmitJob_RecordsFromJSONBackend(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	close(runner.release)
	engine, h := newServer(t, Options{Jobs: runner, Records: jsonCache{cache.NewGoCache(cache.DefaultConfig())}})

	w, _ := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"r2","metadata":"{\"phone_number\":\"+1555\"}"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool {
		rec, ok := h.record("r2")
		return ok && rec.Status == JobEnded
	}, time.Second, 5*time.Millisecond)

	w, env := do(engine, http.MethodGet, "/api/jobs/r2", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec JobRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "outbound", rec.Mode)
}

func TestSubmitJob_RateLimited(t *testing.T) {
	l, err := middleware.NewRateLimiter("1-M")
	require.NoError(t, err)
	runner := &fakeRunner{release: make(chan struct{})}
	engine, _ := newServer(t, Options{Jobs: runner, JobLimiter: l})

	w, _ := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"a"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	w, env := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"b"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", env.Error)

	// reads are not limited
	w, _ = do(engine, http.MethodGet, "/api/jobs/a", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitJob_InboundWithoutMetadata(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	engine, _ := newServer(t, Options{Jobs: runner})

	w, env := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"support-line"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var rec JobRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, "inbound", rec.Mode)
}

func TestSubmitJob_Validation(t *testing.T) {
	engine, _ := newServer(t, Options{Jobs: &fakeRunner{release: make(chan struct{})}})

	w, env := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ROOM_REQUIRED", env.Error)

	w, env = do(engine, http.MethodPost, "/api/jobs", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UNKNOWN_ERROR", env.Error)

	w, env = do(engine, http.MethodGet, "/api/jobs/nobody", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "JOB_NOT_FOUND", env.Error)
}

func TestShutdown_CancelsRunningJobs(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	h := NewHandlers(Options{Jobs: runner})
	engine := gin.New()
	h.Register(engine)

	w, _ := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"inbound-1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(runner.submitted()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))
	assert.Zero(t, h.Running())

	rec, ok := h.record("inbound-1")
	require.True(t, ok)
	assert.Equal(t, "context canceled", rec.Error)
}

// ctxCache refuses calls made with a finished context, as a network backend does
type ctxCache struct {
	cache.Cache
}

func (c ctxCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Cache.Set(ctx, key, value, expiration)
}

func (c ctxCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	return c.Cache.Get(ctx, key)
}

func TestShutdown_FinalRecordSurvivesCancellation(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	core, logs := observer.New(zapcore.WarnLevel)
	h := NewHandlers(Options{
		Jobs:    runner,
		Records: ctxCache{cache.NewGoCache(cache.DefaultConfig())},
		Logger:  zap.New(core),
	})
	engine := gin.New()
	h.Register(engine)

	w, _ := do(engine, http.MethodPost, "/api/jobs", `{"room_name":"outbound-7","metadata":"{\"phone_number\":\"+1555\"}"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, func() bool { return len(runner.submitted()) == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	rec, ok := h.record("outbound-7")
	require.True(t, ok)
	assert.Equal(t, JobEnded, rec.Status)
	assert.Equal(t, string(callsession.StateEnded), rec.State)
	assert.Equal(t, "context canceled", rec.Error)
	assert.NotNil(t, rec.FinishedAt)
	assert.Zero(t, logs.FilterMessage("[Worker] store job record").Len())
}

func TestCallStatus(t *testing.T) {
	status := &fakeStatus{snap: monitor.StatusSnapshot{
		State:            monitor.StateError,
		Err:              &monitor.StatusQueryError{Op: "list_rooms", Err: errors.New("connection refused")},
		ParticipantCount: 0,
	}}
	engine, _ := newServer(t, Options{Status: status})

	w, env := do(engine, http.MethodGet, "/api/calls/outbound-1/status/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "STATUS_NOT_FOUND", env.Error)

	w, env = do(engine, http.MethodGet, "/api/calls/outbound-1/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "error", view["state"])
	assert.Equal(t, "outbound-1", view["room_name"])
	assert.Contains(t, view["error"], "connection refused")
	assert.Equal(t, 1, status.remembered)

	w, env = do(engine, http.MethodGet, "/api/calls/outbound-1/status/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "error", view["state"])
}

func TestCallStatus_NotConfigured(t *testing.T) {
	engine, _ := newServer(t, Options{})
	w, _ := do(engine, http.MethodGet, "/api/calls/x/status", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.JobFinished("outbound", "ended")

	core, recorded := observer.New(zapcore.InfoLevel)
	engine, _ := newServer(t, Options{Gatherer: reg, Logger: zap.New(core)})

	w, _ := do(engine, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w, _ = do(engine, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `mode="outbound"`))

	// GET traffic is not request-logged
	assert.Zero(t, recorded.FilterMessage("Request").Len())
}
