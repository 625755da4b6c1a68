// Package app wires the service together: configuration, clients, the
// scheduler, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/forolibre/telegram-nodebb-sync/internal/api"
	"github.com/forolibre/telegram-nodebb-sync/internal/config"
	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
	"github.com/forolibre/telegram-nodebb-sync/internal/metrics"
	"github.com/forolibre/telegram-nodebb-sync/internal/nodebb"
	"github.com/forolibre/telegram-nodebb-sync/internal/secrets"
	"github.com/forolibre/telegram-nodebb-sync/internal/syncer"
	"github.com/forolibre/telegram-nodebb-sync/internal/telegram"
	"github.com/forolibre/telegram-nodebb-sync/internal/tracker"
)

const (
	startupPingTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
	runTimeout         = 10 * time.Minute
)

// App is the assembled service.
type App struct {
	cfg      *config.Config
	logger   logger.Logger
	redis    *redis.Client
	resolver *secrets.Resolver
	service  *syncer.Service
	runner   *runner
	server   *http.Server
	cron     *cron.Cron
	location *time.Location
}

// New builds the application from configuration. It connects to Redis and
// verifies it is reachable, but a failed ping only degrades health: the
// tracker is best-effort by design.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Sync.Timezone, err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable at startup, processed-message tracking degraded",
			logger.String("addr", cfg.Redis.Addr),
			logger.Error(err))
	}

	processed := tracker.New(rdb, cfg.Tracker.Collection, log)

	registry := prometheus.NewRegistry()
	counters := metrics.New(registry)

	resolver := secrets.NewResolver(cfg.Secrets.GCPProjectID, cfg.Production, log)

	source := telegram.NewClient("", log)
	factory := func(apiToken string) (syncer.TopicPublisher, error) {
		return nodebb.NewClient(cfg.NodeBB.URL, apiToken, log)
	}

	service := syncer.New(
		syncer.Config{
			ChatID:              cfg.Telegram.ChatID,
			Hashtags:            cfg.Telegram.Hashtags,
			CategoryID:          cfg.NodeBB.CategoryID,
			WindowDays:          cfg.Sync.WindowDays,
			TelegramTokenSecret: cfg.Secrets.TelegramTokenSecretName,
			NodeBBTokenSecret:   cfg.Secrets.NodeBBTokenSecretName,
			TelegramToken:       cfg.Telegram.Token,
			NodeBBToken:         cfg.NodeBB.Token,
			Location:            loc,
		},
		resolver,
		source,
		factory,
		processed,
		counters,
		log,
	)

	run := &runner{service: service, logger: log}

	webhookPublisher := buildWebhookPublisher(ctx, cfg, resolver, log)
	router := api.NewRouter(cfg, run, webhookPublisher, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, registry, log)

	return &App{
		cfg:      cfg,
		logger:   log,
		redis:    rdb,
		resolver: resolver,
		service:  service,
		runner:   run,
		server:   router.NewServer(),
		cron:     cron.New(cron.WithLocation(loc)),
		location: loc,
	}, nil
}

// buildWebhookPublisher resolves a forum token at startup for the push
// path. Resolution failure is not fatal: the webhook answers
// "unconfigured" and scheduled runs resolve their own credentials.
func buildWebhookPublisher(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver, log logger.Logger) syncer.TopicPublisher {
	creds, err := resolver.Resolve(ctx, []secrets.Ref{
		{Name: cfg.Secrets.NodeBBTokenSecretName, Direct: cfg.NodeBB.Token},
	})
	if err != nil {
		log.Warn("forum token unavailable at startup, webhook publishing disabled", logger.Error(err))
		return nil
	}
	token := creds[cfg.Secrets.NodeBBTokenSecretName]
	if token == "" {
		return nil
	}
	client, err := nodebb.NewClient(cfg.NodeBB.URL, token, log)
	if err != nil {
		log.Warn("building webhook forum client failed", logger.Error(err))
		return nil
	}
	return client
}

// RunOnce executes a single sync run and returns its summary. Used by the
// one-shot mode.
func (a *App) RunOnce(ctx context.Context) (*syncer.Summary, error) {
	return a.service.RunOnce(ctx)
}

// Run starts the scheduler and HTTP server, then blocks until ctx is
// cancelled and shutdown completes.
func (a *App) Run(ctx context.Context) error {
	entryID, err := a.cron.AddFunc(a.cfg.Sync.Schedule, func() {
		if err := a.runner.Trigger(); err != nil {
			a.logger.Warn("scheduled sync skipped", logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("registering schedule %q: %w", a.cfg.Sync.Schedule, err)
	}
	a.cron.Start()
	a.logger.Info("scheduler started",
		logger.String("schedule", a.cfg.Sync.Schedule),
		logger.String("timezone", a.location.String()),
		logger.Int("entry_id", int(entryID)))

	if a.cfg.Sync.RunOnStart {
		if err := a.runner.Trigger(); err != nil {
			a.logger.Warn("startup sync skipped", logger.Error(err))
		}
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", logger.String("address", a.cfg.Server.Address))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		a.shutdown()
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
		a.shutdown()
		return nil
	}
}

func (a *App) shutdown() {
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	a.runner.wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warn("http server shutdown", logger.Error(err))
	}

	if err := a.resolver.Close(); err != nil {
		a.logger.Warn("closing secret store", logger.Error(err))
	}
	if err := a.redis.Close(); err != nil {
		a.logger.Warn("closing redis client", logger.Error(err))
	}
	a.logger.Info("shutdown complete")
}

// runner serializes sync runs: at most one executes at a time.
type runner struct {
	service *syncer.Service
	logger  logger.Logger
	busy    atomic.Bool
	wg      sync.WaitGroup
}

// Trigger starts a run in the background, or reports that one is already
// in flight.
func (r *runner) Trigger() error {
	if !r.busy.CompareAndSwap(false, true) {
		return syncer.ErrRunInFlight
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		if _, err := r.service.RunOnce(ctx); err != nil {
			r.logger.Error("sync run failed", logger.Error(err))
		}
	}()
	return nil
}

func (r *runner) wait() {
	r.wg.Wait()
}
