package main

import (
	"context"
	"os/signal"
	"syscall"

	"volspike/config"
	"volspike/internal/monitor"
	"volspike/logger"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg := config.Load()

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	// SIGINT/SIGTERM cancel the context; the monitor drains and exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := monitor.Run(ctx, cfg, log); err != nil {
		log.Fatal("monitor failed", zap.Error(err))
	}
}
