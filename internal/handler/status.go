package handlers

import (
	"errors"
	"net/http"

	"github.com/code-100-precent/LingCollect/pkg/monitor"
	"github.com/code-100-precent/LingCollect/pkg/response"
	"github.com/gin-gonic/gin"
)

var (
	errNoStatus       = &jobError{code: "STATUS_NOT_FOUND", msg: "no status recorded for this room"}
	errNoStatusReader = errors.New("status monitoring is not configured")
)

// StatusView is a snapshot as the API returns it
type StatusView struct {
	monitor.StatusSnapshot
	Error string `json:"error,omitempty"`
}

func viewOf(s monitor.StatusSnapshot) StatusView {
	v := StatusView{StatusSnapshot: s}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}

func (h *Handlers) registerStatusRoutes(r *gin.RouterGroup) {
	calls := r.Group("calls")
	{
		calls.GET(":room/status", h.CallStatus)
		calls.GET(":room/status/latest", h.LatestCallStatus)
	}
}

// CallStatus reads the room once and remembers the result. A failed read is
// still a 200; the snapshot says state "error".
func (h *Handlers) CallStatus(c *gin.Context) {
	if h.opts.Status == nil {
		response.AbortWithStatusJSON(c, http.StatusServiceUnavailable, errNoStatusReader)
		return
	}
	snap := h.opts.Status.Check(c.Request.Context(), c.Param("room"))
	h.opts.Status.Remember(c.Request.Context(), snap)
	response.Success(c, "ok", viewOf(snap))
}

// LatestCallStatus returns the last recorded snapshot without querying
func (h *Handlers) LatestCallStatus(c *gin.Context) {
	if h.opts.Status == nil {
		response.AbortWithStatusJSON(c, http.StatusServiceUnavailable, errNoStatusReader)
		return
	}
	snap, ok := h.opts.Status.Latest(c.Request.Context(), c.Param("room"))
	if !ok {
		response.AbortWithStatusJSON(c, http.StatusNotFound, errNoStatus)
		return
	}
	response.Success(c, "ok", viewOf(snap))
}
