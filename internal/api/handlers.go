package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
	"github.com/forolibre/telegram-nodebb-sync/internal/nodebb"
	"github.com/forolibre/telegram-nodebb-sync/internal/qualify"
	"github.com/forolibre/telegram-nodebb-sync/internal/syncer"
	"github.com/forolibre/telegram-nodebb-sync/internal/telegram"
)

const webhookPublishTimeout = 25 * time.Second

// health reports overall service health. A failing tracker store degrades
// the service but keeps the endpoint at 200 so orchestrators don't restart
// a process that can still run syncs.
func (r *Router) health(c *gin.Context) {
	status := healthStatusHealthy
	checks := gin.H{}

	if r.healthy != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.healthy(ctx); err != nil {
			status = healthStatusDegraded
			checks["tracker"] = err.Error()
		} else {
			checks["tracker"] = "ok"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// triggerSync starts a manual sync run.
// POST /api/v1/sync
func (r *Router) triggerSync(c *gin.Context) {
	if err := r.trigger.Trigger(); err != nil {
		if errors.Is(err, syncer.ErrRunInFlight) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "a sync run is already in progress",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "failed to start sync run",
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// webhook receives Telegram update pushes. Qualifying messages are
// published immediately, without the tracker: Telegram delivers each
// update once, and scheduled runs have the tracker for replays. The
// response is 200 for every accepted update so Telegram never retries.
// POST /api/v1/webhook
func (r *Router) webhook(c *gin.Context) {
	if r.cfg.Server.WebhookSecret != "" {
		got := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(r.cfg.Server.WebhookSecret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook secret"})
			return
		}
	}

	var update telegram.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update payload"})
		return
	}

	if update.Message == nil || update.Message.Chat.ID != r.cfg.Telegram.ChatID {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	content, ok := qualify.Parse(*update.Message, r.cfg.Telegram.Hashtags)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "not_qualifying"})
		return
	}

	if r.publisher == nil {
		r.logger.Warn("webhook message qualifies but no direct forum token is configured",
			logger.Int64("message_id", content.MessageID))
		c.JSON(http.StatusOK, gin.H{"status": "unconfigured"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), webhookPublishTimeout)
	defer cancel()

	ref, err := r.publisher.CreateTopic(ctx, nodebb.TopicRequest{
		CategoryID: r.cfg.NodeBB.CategoryID,
		Title:      content.Title,
		Content:    syncer.BuildTopicContent(content, webhookLocation(r.cfg.Sync.Timezone)),
	})
	if err != nil {
		r.logger.Error("webhook publish failed",
			logger.Int64("message_id", content.MessageID),
			logger.Error(err))
		c.JSON(http.StatusOK, gin.H{"status": "publish_failed"})
		return
	}

	r.logger.Info("webhook message published",
		logger.Int64("message_id", content.MessageID),
		logger.Int64("topic_id", ref.TopicID))
	c.JSON(http.StatusOK, gin.H{"status": "published", "topic_id": ref.TopicID})
}

func webhookLocation(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
