package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/code-100-precent/LingCollect/cmd/bootstrap"
	"github.com/code-100-precent/LingCollect/pkg/config"
	"github.com/code-100-precent/LingCollect/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := logger.Init(&cfg.Log, cfg.Server.Mode); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	bootstrap.PrintBanner(os.Stdout, bootstrap.Banner)
	bootstrap.LogConfigInfo(logger.Lg, cfg)

	worker, err := bootstrap.NewWorker(cfg, logger.Lg)
	if err != nil {
		logger.Lg.Fatal("build worker", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := worker.Serve(ctx); err != nil {
		logger.Lg.Error("worker stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
