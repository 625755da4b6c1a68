package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/forolibre/telegram-nodebb-sync/internal/app"
	"github.com/forolibre/telegram-nodebb-sync/internal/config"
	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to configuration file")
	once := flag.Bool("once", false, "run a single sync and exit")
	flag.Parse()

	// Missing .env is fine, environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Production)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", logger.Error(err))
		os.Exit(1)
	}

	if *once {
		summary, err := application.RunOnce(ctx)
		if err != nil {
			log.Error("sync run failed", logger.Error(err))
			os.Exit(1)
		}
		log.Info("sync run complete",
			logger.Int("seen", summary.Seen),
			logger.Int("published", summary.Published),
			logger.Int("skipped", summary.Skipped),
			logger.Int("invalid", summary.Invalid),
			logger.Int("publish_failed", summary.PublishFailed))
		return
	}

	if err := application.Run(ctx); err != nil {
		log.Error("service exited with error", logger.Error(err))
		os.Exit(1)
	}
}
