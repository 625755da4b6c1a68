// Package syncer orchestrates one synchronization run: resolve credentials,
// pull the recent message window, and publish each qualifying message as a
// forum topic exactly once.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
	"github.com/forolibre/telegram-nodebb-sync/internal/nodebb"
	"github.com/forolibre/telegram-nodebb-sync/internal/qualify"
	"github.com/forolibre/telegram-nodebb-sync/internal/secrets"
	"github.com/forolibre/telegram-nodebb-sync/internal/telegram"
	"github.com/forolibre/telegram-nodebb-sync/internal/tracker"
)

const (
	trackerTimeout = 5 * time.Second
	publishTimeout = 25 * time.Second
)

// ErrRunInFlight is returned by run triggers when a sync run is already
// executing. Runs never overlap.
var ErrRunInFlight = errors.New("sync run already in flight")

// Config carries the per-run parameters of the orchestrator.
type Config struct {
	ChatID     int64
	Hashtags   []string
	CategoryID string
	WindowDays int

	// Secret names resolved at the start of every run. Direct values,
	// when set, take precedence and skip the secret store.
	TelegramTokenSecret string
	NodeBBTokenSecret   string
	TelegramToken       string
	NodeBBToken         string

	// Location renders attribution timestamps. Nil means UTC.
	Location *time.Location

	// PublishRPS caps topic creation calls per second. Zero means the
	// default of one per second.
	PublishRPS float64
}

// Service runs the sync pipeline. It is safe for a single caller; runs are
// not concurrent by design.
type Service struct {
	cfg          Config
	resolver     CredentialResolver
	source       MessageSource
	newPublisher PublisherFactory
	tracker      ProcessedTracker
	metrics      MetricsTracker
	limiter      *rate.Limiter
	logger       logger.Logger
}

// New wires a Service. metrics may be nil.
func New(
	cfg Config,
	resolver CredentialResolver,
	source MessageSource,
	newPublisher PublisherFactory,
	processed ProcessedTracker,
	metrics MetricsTracker,
	log logger.Logger,
) *Service {
	rps := cfg.PublishRPS
	if rps <= 0 {
		rps = 1
	}
	return &Service{
		cfg:          cfg,
		resolver:     resolver,
		source:       source,
		newPublisher: newPublisher,
		tracker:      processed,
		metrics:      metrics,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		logger:       log,
	}
}

// RunOnce executes a full sync run. It returns an error only for fatal
// conditions: credential resolution and message intake. Per-message
// failures are absorbed into the Summary.
func (s *Service) RunOnce(ctx context.Context) (*Summary, error) {
	runID := uuid.New().String()
	started := time.Now()
	log := s.logger.With(logger.String("run_id", runID))

	log.Info("sync run started",
		logger.Int64("chat_id", s.cfg.ChatID),
		logger.Int("window_days", s.cfg.WindowDays))

	botToken, apiToken, err := s.resolveCredentials(ctx)
	if err != nil {
		s.observeRun("fatal", log, nil, started, err)
		return nil, err
	}

	publisher, err := s.newPublisher(apiToken)
	if err != nil {
		err = fmt.Errorf("building forum client: %w", err)
		s.observeRun("fatal", log, nil, started, err)
		return nil, err
	}

	window := time.Duration(s.cfg.WindowDays) * 24 * time.Hour
	messages, err := s.source.RecentMessages(ctx, botToken, s.cfg.ChatID, window)
	if err != nil {
		err = fmt.Errorf("retrieving recent messages: %w", err)
		s.observeRun("fatal", log, nil, started, err)
		return nil, err
	}

	summary := &Summary{Seen: len(messages)}
	if s.metrics != nil {
		s.metrics.AddSeen(len(messages))
	}

	for _, msg := range messages {
		outcome := s.processMessage(ctx, log, publisher, msg)
		summary.add(outcome)
		s.countOutcome(outcome)
	}

	s.observeRun("ok", log, summary, started, nil)
	return summary, nil
}

func (s *Service) resolveCredentials(ctx context.Context) (botToken, apiToken string, err error) {
	refs := []secrets.Ref{
		{Name: s.cfg.TelegramTokenSecret, Direct: s.cfg.TelegramToken},
		{Name: s.cfg.NodeBBTokenSecret, Direct: s.cfg.NodeBBToken},
	}
	creds, err := s.resolver.Resolve(ctx, refs)
	if err != nil {
		return "", "", fmt.Errorf("resolving credentials: %w", err)
	}
	botToken = creds[s.cfg.TelegramTokenSecret]
	apiToken = creds[s.cfg.NodeBBTokenSecret]
	if botToken == "" || apiToken == "" {
		return "", "", fmt.Errorf("resolving credentials: missing token value")
	}
	return botToken, apiToken, nil
}

// processMessage handles one message end to end. Publication and tracker
// failures never escape: they become outcomes, and every non-skipped
// message gets a tracker record regardless of what happened.
func (s *Service) processMessage(ctx context.Context, log logger.Logger, publisher TopicPublisher, msg telegram.Message) (outcome Outcome) {
	mlog := log.With(logger.Int64("message_id", msg.MessageID))

	defer func() {
		if r := recover(); r != nil {
			outcome = Outcome{Kind: OutcomeUnexpectedFailure, Err: fmt.Errorf("processing message %d: %v", msg.MessageID, r)}
			mlog.Error("unexpected failure while processing message", logger.Any("panic", r))
			s.record(ctx, mlog, msg, tracker.StatusErrorNodeBB, 0)
		}
	}()

	readCtx, cancel := context.WithTimeout(ctx, trackerTimeout)
	processed := s.tracker.IsProcessed(readCtx, msg.MessageID)
	cancel()
	if processed {
		mlog.Debug("message already processed, skipping")
		return Outcome{Kind: OutcomeSkipped}
	}

	content, ok := qualify.Parse(msg, s.cfg.Hashtags)
	if !ok {
		mlog.Debug("message does not qualify")
		s.record(ctx, mlog, msg, tracker.StatusInvalid, 0)
		return Outcome{Kind: OutcomeInvalid}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		mlog.Error("rate limiter wait interrupted", logger.Error(err))
		s.record(ctx, mlog, msg, tracker.StatusErrorNodeBB, 0)
		return Outcome{Kind: OutcomeUnexpectedFailure, Err: err}
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	ref, err := publisher.CreateTopic(pubCtx, nodebb.TopicRequest{
		CategoryID: s.cfg.CategoryID,
		Title:      content.Title,
		Content:    BuildTopicContent(content, s.cfg.Location),
	})
	cancel()
	if err != nil {
		mlog.Error("topic creation failed", logger.Error(err))
		s.record(ctx, mlog, msg, tracker.StatusErrorNodeBB, 0)
		return Outcome{Kind: OutcomePublishFailed, Err: err}
	}

	mlog.Info("topic published",
		logger.String("title", content.Title),
		logger.Int64("topic_id", ref.TopicID))
	s.record(ctx, mlog, msg, tracker.StatusSuccess, ref.TopicID)
	return Outcome{Kind: OutcomePublished, TopicID: ref.TopicID}
}

// record writes the processing record. Tracker write failures are logged
// and swallowed: losing a record risks a duplicate next run, which is
// preferable to failing the message.
func (s *Service) record(ctx context.Context, log logger.Logger, msg telegram.Message, status tracker.Status, topicID int64) {
	writeCtx, cancel := context.WithTimeout(ctx, trackerTimeout)
	defer cancel()

	err := s.tracker.Record(writeCtx, tracker.Record{
		MessageID: msg.MessageID,
		ChatID:    msg.Chat.ID,
		Status:    status,
		TopicID:   topicID,
	})
	if err != nil {
		log.Warn("recording processed message failed",
			logger.String("status", string(status)),
			logger.Error(err))
	}
}

func (s *Service) countOutcome(o Outcome) {
	if s.metrics == nil {
		return
	}
	switch o.Kind {
	case OutcomeSkipped:
		s.metrics.IncSkipped()
	case OutcomeInvalid:
		s.metrics.IncInvalid()
	case OutcomePublished:
		s.metrics.IncPublished()
	case OutcomePublishFailed:
		s.metrics.IncPublishFailed()
	case OutcomeUnexpectedFailure:
		s.metrics.IncUnexpected()
	}
}

func (s *Service) observeRun(result string, log logger.Logger, summary *Summary, started time.Time, runErr error) {
	finished := time.Now()
	if s.metrics != nil {
		s.metrics.ObserveRun(result, finished)
	}
	if runErr != nil {
		log.Error("sync run aborted",
			logger.Duration("duration", finished.Sub(started)),
			logger.Error(runErr))
		return
	}
	log.Info("sync run finished",
		logger.Duration("duration", finished.Sub(started)),
		logger.Int("seen", summary.Seen),
		logger.Int("skipped", summary.Skipped),
		logger.Int("published", summary.Published),
		logger.Int("publish_failed", summary.PublishFailed),
		logger.Int("invalid", summary.Invalid),
		logger.Int("unexpected", summary.Unexpected))
}
