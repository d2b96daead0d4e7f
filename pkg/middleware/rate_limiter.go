package middleware

import (
	"net/http"

	"github.com/code-100-precent/LingCollect/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

type rateLimitError struct{}

func (rateLimitError) Error() string     { return "too many requests, slow down" }
func (rateLimitError) ErrorCode() string { return "RATE_LIMITED" }

// NewRateLimiter builds an in-memory limiter from a rate such as "60-M"
func NewRateLimiter(rate string) (*limiter.Limiter, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return limiter.New(memory.NewStore(), r), nil
}

// RateLimitMiddleware limits requests per client IP
func RateLimitMiddleware(l *limiter.Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return mgin.NewMiddleware(l,
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			logger.Warn("[HTTP] rate limit reached",
				zap.String("ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path))
			response.AbortWithStatusJSON(c, http.StatusTooManyRequests, rateLimitError{})
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			// fail open
			logger.Error("[HTTP] rate limiter failed", zap.Error(err))
			c.Next()
		}),
	)
}
