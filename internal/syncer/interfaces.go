package syncer

import (
	"context"
	"time"

	"github.com/forolibre/telegram-nodebb-sync/internal/nodebb"
	"github.com/forolibre/telegram-nodebb-sync/internal/secrets"
	"github.com/forolibre/telegram-nodebb-sync/internal/telegram"
	"github.com/forolibre/telegram-nodebb-sync/internal/tracker"
)

// CredentialResolver resolves the run's secret tokens.
type CredentialResolver interface {
	Resolve(ctx context.Context, refs []secrets.Ref) (map[string]string, error)
}

// MessageSource retrieves candidate messages from the source chat.
type MessageSource interface {
	RecentMessages(ctx context.Context, botToken string, chatID int64, window time.Duration) ([]telegram.Message, error)
}

// TopicPublisher creates forum topics.
type TopicPublisher interface {
	CreateTopic(ctx context.Context, req nodebb.TopicRequest) (*nodebb.TopicRef, error)
}

// PublisherFactory builds a TopicPublisher for the forum token resolved at
// the start of a run.
type PublisherFactory func(apiToken string) (TopicPublisher, error)

// ProcessedTracker is the durable per-message processing record.
type ProcessedTracker interface {
	IsProcessed(ctx context.Context, messageID int64) bool
	Record(ctx context.Context, rec tracker.Record) error
}

// MetricsTracker counts run outcomes. Implementations must never fail the
// run; a nil tracker disables metrics.
type MetricsTracker interface {
	AddSeen(n int)
	IncSkipped()
	IncPublished()
	IncPublishFailed()
	IncInvalid()
	IncUnexpected()
	ObserveRun(result string, finished time.Time)
}
