package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/callsession"
	"github.com/code-100-precent/LingCollect/pkg/middleware"
	"github.com/code-100-precent/LingCollect/pkg/monitor"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// JobRunner runs one call job to completion
type JobRunner interface {
	Run(ctx context.Context, job callsession.CallJob) (*callsession.CallSession, error)
}

// StatusReader answers room status queries
type StatusReader interface {
	Check(ctx context.Context, room string) monitor.StatusSnapshot
	Latest(ctx context.Context, room string) (monitor.StatusSnapshot, bool)
	Remember(ctx context.Context, snap monitor.StatusSnapshot)
}

// Options configures Handlers
type Options struct {
	Jobs     JobRunner
	Status   StatusReader
	Gatherer prometheus.Gatherer
	// Records keeps job records; a private in-memory cache is used when nil
	Records   cache.Cache
	RecordTTL time.Duration
	// JobLimiter throttles job submission per client when set
	JobLimiter *limiter.Limiter

	APIPrefix   string
	MetricsPath string
	Logger      *zap.Logger
	Now         func() time.Time
}

// Handlers is the worker HTTP surface
type Handlers struct {
	opts   Options
	logger *zap.Logger

	// jobs outlive the request that submitted them
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	running map[string]struct{}
}

func NewHandlers(opts Options) *Handlers {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	if opts.Records == nil {
		opts.Records = cache.NewGoCache(cache.DefaultConfig())
	}
	if opts.RecordTTL <= 0 {
		opts.RecordTTL = time.Hour
	}
	base, cancel := context.WithCancel(context.Background())
	return &Handlers{
		opts:    opts,
		logger:  opts.Logger,
		base:    base,
		cancel:  cancel,
		running: make(map[string]struct{}),
	}
}

// Register mounts every route on engine
func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(middleware.RecoveryMiddleware(h.logger), middleware.LoggerMiddleware(h.logger), middleware.CorsMiddleware())

	engine.GET("/healthz", h.HealthCheck)
	if h.opts.Gatherer != nil {
		engine.GET(h.opts.MetricsPath, gin.WrapH(promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r := engine.Group(h.opts.APIPrefix)
	h.registerJobRoutes(r)
	h.registerStatusRoutes(r)
}

// Shutdown cancels running jobs and waits for them to wind down
func (h *Handlers) Shutdown(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports how many jobs are in flight
func (h *Handlers) Running() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.running)
}

// HealthCheck health check endpoint
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{"status": "healthy", "running_jobs": h.Running()})
}
