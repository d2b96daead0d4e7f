package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/callsession"
	"github.com/code-100-precent/LingCollect/pkg/middleware"
	"github.com/code-100-precent/LingCollect/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	JobRunning = "running"
	JobEnded   = "ended"
	JobFailed  = "failed"
)

// recordTimeout bounds a job record read or write against the store
const recordTimeout = 5 * time.Second

// SubmitJobRequest is the body of POST /jobs
type SubmitJobRequest struct {
	RoomName string `json:"room_name"`
	Metadata string `json:"metadata"`
}

// JobRecord is what the worker remembers about a submitted job
type JobRecord struct {
	RoomName    string     `json:"room_name"`
	Mode        string     `json:"mode"`
	Status      string     `json:"status"`
	State       string     `json:"state,omitempty"`
	Error       string     `json:"error,omitempty"`
	Recording   string     `json:"recording,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

type jobError struct {
	code string
	msg  string
}

func (e *jobError) Error() string     { return e.msg }
func (e *jobError) ErrorCode() string { return e.code }

var (
	errRoomRequired = &jobError{code: "ROOM_REQUIRED", msg: "room_name is required"}
	errJobRunning   = &jobError{code: "JOB_RUNNING", msg: "a job is already running for this room"}
	errJobNotFound  = &jobError{code: "JOB_NOT_FOUND", msg: "no job recorded for this room"}
)

func (h *Handlers) registerJobRoutes(r *gin.RouterGroup) {
	jobs := r.Group("jobs")
	{
		submit := []gin.HandlerFunc{h.SubmitJob}
		if h.opts.JobLimiter != nil {
			submit = append([]gin.HandlerFunc{middleware.RateLimitMiddleware(h.opts.JobLimiter, h.logger)}, submit...)
		}
		jobs.POST("", submit...)
		jobs.GET(":room", h.GetJob)
	}
}

// SubmitJob accepts a call job and runs it in the background
func (h *Handlers) SubmitJob(c *gin.Context) {
	var req SubmitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, err)
		return
	}
	req.RoomName = strings.TrimSpace(req.RoomName)
	if req.RoomName == "" {
		response.AbortWithStatusJSON(c, http.StatusBadRequest, errRoomRequired)
		return
	}

	if !h.claim(req.RoomName) {
		response.AbortWithStatusJSON(c, http.StatusConflict, errJobRunning)
		return
	}

	job := callsession.NewCallJob(req.RoomName, req.Metadata, h.logger)
	rec := JobRecord{
		RoomName:    job.RoomName,
		Mode:        string(job.Mode()),
		Status:      JobRunning,
		State:       string(callsession.StatePending),
		SubmittedAt: h.opts.Now(),
	}
	h.store(rec)

	h.wg.Add(1)
	go h.runJob(job, rec)

	response.Result(c, http.StatusAccepted, http.StatusAccepted, "job accepted", rec)
}

// GetJob returns the job record for a room
func (h *Handlers) GetJob(c *gin.Context) {
	rec, ok := h.record(c.Param("room"))
	if !ok {
		response.AbortWithStatusJSON(c, http.StatusNotFound, errJobNotFound)
		return
	}
	response.Success(c, "ok", rec)
}

func (h *Handlers) runJob(job callsession.CallJob, rec JobRecord) {
	defer h.wg.Done()
	defer h.release(job.RoomName)
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("[Worker] job panicked", zap.String("room", job.RoomName), zap.Any("panic", r))
			finished := h.opts.Now()
			rec.Status = JobFailed
			rec.Error = "internal error"
			rec.FinishedAt = &finished
			h.store(rec)
		}
	}()

	session, err := h.opts.Jobs.Run(h.base, job)

	finished := h.opts.Now()
	rec.FinishedAt = &finished
	rec.Status = JobEnded
	if session != nil {
		rec.State = string(session.State())
		if session.State() == callsession.StateFailed {
			rec.Status = JobFailed
		}
		if hd := session.Recording(); hd != nil {
			rec.Recording = hd.TargetPath
		}
	}
	if err != nil {
		rec.Error = err.Error()
		if h.base.Err() != nil && errors.Is(err, context.Canceled) {
			h.logger.Info("[Worker] job cancelled by shutdown", zap.String("room", job.RoomName))
		}
	}
	h.store(rec)
}

func (h *Handlers) claim(room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, busy := h.running[room]; busy {
		return false
	}
	h.running[room] = struct{}{}
	return true
}

func (h *Handlers) release(room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.running, room)
}

// recordContext outlives Shutdown so the final record of a cancelled job
// still reaches the store.
func (h *Handlers) recordContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(h.base), recordTimeout)
}

func (h *Handlers) store(rec JobRecord) {
	ctx, cancel := h.recordContext()
	defer cancel()
	if err := h.opts.Records.Set(ctx, jobKey(rec.RoomName), rec, h.opts.RecordTTL); err != nil {
		h.logger.Warn("[Worker] store job record", zap.String("room", rec.RoomName), zap.Error(err))
	}
}

func (h *Handlers) record(room string) (JobRecord, bool) {
	ctx, cancel := h.recordContext()
	defer cancel()
	v, ok := h.opts.Records.Get(ctx, jobKey(room))
	if !ok {
		return JobRecord{}, false
	}
	return cache.As[JobRecord](v)
}

func jobKey(room string) string { return "job:" + room }
