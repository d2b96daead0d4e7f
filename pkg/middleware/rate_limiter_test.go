package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRateLimitMiddleware(t *testing.T) {
	l, err := NewRateLimiter("2-M")
	require.NoError(t, err)

	core, recorded := observer.New(zapcore.WarnLevel)
	r := gin.New()
	r.POST("/api/jobs", RateLimitMiddleware(l, zap.New(core)), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	submit := func(ip string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/jobs", nil)
		req.RemoteAddr = ip + ":40000"
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusAccepted, submit("10.0.0.1").Code)
	w := submit("10.0.0.1")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = submit("10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body["error"])
	assert.Equal(t, 1, recorded.FilterMessage("[HTTP] rate limit reached").Len())

	// other callers keep their own budget
	assert.Equal(t, http.StatusAccepted, submit("10.0.0.2").Code)
}

func TestNewRateLimiter_BadRate(t *testing.T) {
	_, err := NewRateLimiter("lots")
	assert.Error(t, err)
}
