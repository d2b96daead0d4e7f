package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	handlers "github.com/code-100-precent/LingCollect/internal/handler"
	"github.com/code-100-precent/LingCollect/pkg/cache"
	"github.com/code-100-precent/LingCollect/pkg/callsession"
	"github.com/code-100-precent/LingCollect/pkg/config"
	"github.com/code-100-precent/LingCollect/pkg/controlplane"
	"github.com/code-100-precent/LingCollect/pkg/events"
	"github.com/code-100-precent/LingCollect/pkg/media"
	"github.com/code-100-precent/LingCollect/pkg/metrics"
	"github.com/code-100-precent/LingCollect/pkg/middleware"
	"github.com/code-100-precent/LingCollect/pkg/monitor"
	"github.com/code-100-precent/LingCollect/pkg/orchestrator"
	"github.com/code-100-precent/LingCollect/pkg/recording"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ulule/limiter/v3"
	"go.uber.org/zap"
)

// Worker is the assembled call worker
type Worker struct {
	Config       *config.Config
	Registry     *prometheus.Registry
	Bus          *events.EventBus
	Cache        cache.Cache
	Orchestrator *orchestrator.Orchestrator
	Poller       *monitor.Poller
	Handlers     *handlers.Handlers
	Engine       *gin.Engine

	logger *zap.Logger
}

// NewWorker wires every component from cfg. Nothing touches the network
// until a job arrives.
func NewWorker(cfg *config.Config, logger *zap.Logger) (*Worker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bus := events.NewEventBus(logger)
	bus.Subscribe(events.CallStateChanged, logTransition(logger))

	store, err := cache.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	client, err := controlplane.NewClient(controlplane.Options{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		Timeout:   cfg.LiveKit.Timeout,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create control plane client: %w", err)
	}

	connector := media.NewConnector(media.ConnectorOptions{
		BridgeURL: cfg.Media.BridgeURL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		Identity:  cfg.LiveKit.AgentName,
		Logger:    logger,
	})

	recorder := recording.NewManager(client, recording.Options{
		Enabled:     cfg.Recording.Enabled,
		Dir:         cfg.Recording.Dir,
		Layout:      cfg.Recording.Layout,
		StopTimeout: cfg.Recording.StopTimeout,
		Logger:      logger,
		Metrics:     m,
	})

	orch, err := orchestrator.New(orchestrator.Options{
		ControlPlane:       client,
		Rooms:              orchestrator.MediaConnector(connector),
		Recorder:           recorder,
		Pipelines:          orchestrator.NewPipelineFactory(cfg, store, m, logger),
		SIPTrunkID:         cfg.LiveKit.SIPTrunkID,
		DefaultPersona:     cfg.Agent.Persona,
		DefaultParticipant: cfg.Agent.DefaultParticipant,
		Observer:           callsession.EventObserver(bus),
		Metrics:            m,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	poller := monitor.NewPoller(client, monitor.Options{
		ActiveThreshold: cfg.Monitor.ActiveThreshold,
		Cache:           store,
		SnapshotTTL:     cfg.Monitor.SnapshotTTL,
		Bus:             bus,
		Metrics:         m,
		Logger:          logger,
	})

	var jobLimiter *limiter.Limiter
	if cfg.Server.JobRateLimit != "" {
		jobLimiter, err = middleware.NewRateLimiter(cfg.Server.JobRateLimit)
		if err != nil {
			return nil, fmt.Errorf("job rate limit: %w", err)
		}
	}

	h := handlers.NewHandlers(handlers.Options{
		Jobs:        orch,
		Status:      poller,
		Gatherer:    reg,
		Records:     store,
		JobLimiter:  jobLimiter,
		APIPrefix:   cfg.Server.APIPrefix,
		MetricsPath: cfg.Server.MonitorPrefix,
		Logger:      logger,
	})

	if cfg.Server.Mode != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	h.Register(engine)

	return &Worker{
		Config:       cfg,
		Registry:     reg,
		Bus:          bus,
		Cache:        store,
		Orchestrator: orch,
		Poller:       poller,
		Handlers:     h,
		Engine:       engine,
		logger:       logger,
	}, nil
}

// Serve listens until ctx is cancelled, then drains running jobs
func (w *Worker) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              w.Config.Server.Addr,
		Handler:           w.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("[Worker] listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	w.logger.Info("[Worker] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("[Worker] http shutdown", zap.Error(err))
	}
	if err := w.Handlers.Shutdown(shutdownCtx); err != nil {
		w.logger.Warn("[Worker] jobs did not finish in time", zap.Error(err))
	}
	return w.Cache.Close()
}

func logTransition(logger *zap.Logger) events.EventHandler {
	return func(e events.Event) error {
		logger.Info("[Worker] call state changed",
			zap.Any("room", e.Data["room"]),
			zap.Any("from", e.Data["from"]),
			zap.Any("to", e.Data["to"]),
			zap.Any("reason", e.Data["reason"]))
		return nil
	}
}
