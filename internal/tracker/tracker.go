// Package tracker records per-message processing outcomes in Redis, keyed by
// message id, so later runs can skip already-handled messages.
package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
)

// Status is the recorded outcome of one message.
type Status string

const (
	// StatusSuccess marks a message published as a forum topic.
	StatusSuccess Status = "success"
	// StatusErrorNodeBB marks a message whose publish attempt failed.
	StatusErrorNodeBB Status = "error_nodebb"
	// StatusInvalid marks a message that did not qualify.
	StatusInvalid Status = "invalid"
)

// Field names of a processing record.
const (
	fieldProcessedAt   = "processedAt"
	fieldChatID        = "chatId"
	fieldStatus        = "status"
	fieldNodeBBTopicID = "nodebbTopicId"
)

// Record is one processing outcome to persist.
type Record struct {
	MessageID int64
	ChatID    int64
	Status    Status
	// TopicID is stored only when Status is StatusSuccess.
	TopicID int64
}

// Tracker is the processed-state store. One hash per message id under
// <collection>:<id>; HSET gives the upsert-merge semantics, so a retried
// run overwrites rather than duplicates. Records are never deleted.
//
// Known race: IsProcessed and Record are separate round-trips with no lock,
// so two overlapping runs can both publish a message neither has recorded
// yet. The merge-write keeps that safe, not prevented.
type Tracker struct {
	client     redis.UniversalClient
	collection string
	logger     logger.Logger
}

// New creates a Tracker storing records under the given collection prefix.
func New(client redis.UniversalClient, collection string, log logger.Logger) *Tracker {
	return &Tracker{
		client:     client,
		collection: collection,
		logger:     log,
	}
}

func (t *Tracker) key(messageID int64) string {
	return fmt.Sprintf("%s:%d", t.collection, messageID)
}

// IsProcessed reports whether a record exists for the message id. A read
// failure is logged and reported as "not processed": reprocessing a message
// is preferred over silently dropping one.
func (t *Tracker) IsProcessed(ctx context.Context, messageID int64) bool {
	key := t.key(messageID)

	exists, err := t.client.Exists(ctx, key).Result()
	if err != nil {
		t.logger.Error("Tracker read failed, assuming not processed",
			logger.Int64("message_id", messageID),
			logger.String("redis_key", key),
			logger.Error(err),
		)
		return false
	}

	processed := exists == 1
	t.logger.Debug("Tracker existence check",
		logger.Int64("message_id", messageID),
		logger.String("redis_key", key),
		logger.Bool("processed", processed),
	)
	return processed
}

// Record upserts the processing record for a message. The processedAt
// timestamp is taken from the Redis server clock when available. Callers
// treat failures as best-effort: logged, non-fatal, caught by the next
// run's IsProcessed check.
func (t *Tracker) Record(ctx context.Context, rec Record) error {
	key := t.key(rec.MessageID)

	processedAt := t.serverTime(ctx)

	fields := map[string]any{
		fieldProcessedAt: processedAt.UTC().Format(time.RFC3339),
		fieldChatID:      strconv.FormatInt(rec.ChatID, 10),
		fieldStatus:      string(rec.Status),
	}
	if rec.Status == StatusSuccess && rec.TopicID != 0 {
		fields[fieldNodeBBTopicID] = strconv.FormatInt(rec.TopicID, 10)
	}

	if err := t.client.HSet(ctx, key, fields).Err(); err != nil {
		t.logger.Error("Tracker write failed",
			logger.Int64("message_id", rec.MessageID),
			logger.String("redis_key", key),
			logger.String("status", string(rec.Status)),
			logger.Error(err),
		)
		return fmt.Errorf("record message %d: %w", rec.MessageID, err)
	}

	t.logger.Debug("Message recorded",
		logger.Int64("message_id", rec.MessageID),
		logger.String("redis_key", key),
		logger.String("status", string(rec.Status)),
	)
	return nil
}

// serverTime prefers the Redis server clock so processedAt stays
// server-assigned; the client clock is the fallback.
func (t *Tracker) serverTime(ctx context.Context) time.Time {
	if now, err := t.client.Time(ctx).Result(); err == nil {
		return now
	}
	return time.Now()
}
