// Package api exposes the service's HTTP surface: health, metrics, a
// manual sync trigger, and the Telegram webhook.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forolibre/telegram-nodebb-sync/internal/config"
	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
	"github.com/forolibre/telegram-nodebb-sync/internal/syncer"
)

const (
	healthStatusHealthy  = "healthy"
	healthStatusDegraded = "degraded"
	healthCheckTimeout   = 2 * time.Second
	webhookSecretHeader  = "X-Telegram-Bot-Api-Secret-Token"
	corsMaxAge           = 12 * time.Hour
)

// SyncTrigger starts a sync run. It returns syncer.ErrRunInFlight when one
// is already executing.
type SyncTrigger interface {
	Trigger() error
}

// Router holds the API dependencies.
type Router struct {
	cfg       *config.Config
	trigger   SyncTrigger
	publisher syncer.TopicPublisher
	healthy   func(ctx context.Context) error
	gatherer  prometheus.Gatherer
	logger    logger.Logger
}

// NewRouter creates the API router. publisher handles webhook posts and may
// be nil when no direct forum token is configured; healthy checks the
// tracker store.
func NewRouter(
	cfg *config.Config,
	trigger SyncTrigger,
	publisher syncer.TopicPublisher,
	healthy func(ctx context.Context) error,
	gatherer prometheus.Gatherer,
	log logger.Logger,
) *Router {
	return &Router{
		cfg:       cfg,
		trigger:   trigger,
		publisher: publisher,
		healthy:   healthy,
		gatherer:  gatherer,
		logger:    log,
	}
}

// Engine builds the gin engine with all routes registered.
func (r *Router) Engine() *gin.Engine {
	if r.cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	engine.GET("/healthz", r.health)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/sync", r.triggerSync)
		v1.POST("/webhook", r.webhook)
	}

	return engine
}

// NewServer wraps the engine in an http.Server with the configured
// timeouts.
func (r *Router) NewServer() *http.Server {
	return &http.Server{
		Addr:         r.cfg.Server.Address,
		Handler:      r.Engine(),
		ReadTimeout:  r.cfg.Server.ReadTimeout,
		WriteTimeout: r.cfg.Server.WriteTimeout,
	}
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       corsMaxAge,
	})
}
