package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/uptime-monitor/config"
	"github.com/angeloszaimis/uptime-monitor/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment, cfg.Logging.File)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize monitor", slog.Any("err", err))
		os.Exit(1)
	}

	runErr := a.run(ctx)

	log.Info("Shutting down gracefully...")
	a.Close()
	<-a.collector.Done()

	if runErr != nil {
		log.Error("Monitor stopped with error", slog.Any("err", runErr))
		os.Exit(1)
	}
}
