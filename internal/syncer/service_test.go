package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
	"github.com/forolibre/telegram-nodebb-sync/internal/nodebb"
	"github.com/forolibre/telegram-nodebb-sync/internal/qualify"
	"github.com/forolibre/telegram-nodebb-sync/internal/secrets"
	"github.com/forolibre/telegram-nodebb-sync/internal/telegram"
	"github.com/forolibre/telegram-nodebb-sync/internal/tracker"
)

type fakeResolver struct {
	values map[string]string
	err    error
}

func (f *fakeResolver) Resolve(_ context.Context, _ []secrets.Ref) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.values, nil
}

type fakeSource struct {
	messages []telegram.Message
	err      error
	gotToken string
}

func (f *fakeSource) RecentMessages(_ context.Context, botToken string, _ int64, _ time.Duration) ([]telegram.Message, error) {
	f.gotToken = botToken
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

type fakePublisher struct {
	failTitles map[string]error
	created    []nodebb.TopicRequest
	nextTopic  int64
}

func (f *fakePublisher) CreateTopic(_ context.Context, req nodebb.TopicRequest) (*nodebb.TopicRef, error) {
	if err, ok := f.failTitles[req.Title]; ok {
		return nil, err
	}
	f.created = append(f.created, req)
	f.nextTopic++
	return &nodebb.TopicRef{TopicID: f.nextTopic, PostID: f.nextTopic + 100}, nil
}

type fakeTracker struct {
	processed map[int64]bool
	records   []tracker.Record
	writeErr  error
}

func (f *fakeTracker) IsProcessed(_ context.Context, messageID int64) bool {
	return f.processed[messageID]
}

func (f *fakeTracker) Record(_ context.Context, rec tracker.Record) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.records = append(f.records, rec)
	f.processed[rec.MessageID] = true
	return nil
}

func qualifyingMessage(id int64, title string) telegram.Message {
	return telegram.Message{
		MessageID: id,
		Chat:      telegram.Chat{ID: -100},
		From:      &telegram.User{Username: "alice"},
		Date:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix(),
		Text:      fmt.Sprintf("hello #sync\nTitulo: %s\nbody text", title),
	}
}

func newTestService(resolver CredentialResolver, source MessageSource, pub TopicPublisher, tr ProcessedTracker) *Service {
	factory := func(string) (TopicPublisher, error) { return pub, nil }
	cfg := Config{
		ChatID:              -100,
		Hashtags:            []string{"sync"},
		CategoryID:          "5",
		WindowDays:          3,
		TelegramTokenSecret: "TELEGRAM_BOT_TOKEN",
		NodeBBTokenSecret:   "NODEBB_API_USER_TOKEN",
		PublishRPS:          1000,
	}
	return New(cfg, resolver, source, factory, tr, nil, logger.NewNop())
}

func resolverWithTokens() *fakeResolver {
	return &fakeResolver{values: map[string]string{
		"TELEGRAM_BOT_TOKEN":    "bot-token",
		"NODEBB_API_USER_TOKEN": "api-token",
	}}
}

func TestRunOncePublishesQualifyingMessages(t *testing.T) {
	source := &fakeSource{messages: []telegram.Message{
		qualifyingMessage(1, "First"),
		{MessageID: 2, Chat: telegram.Chat{ID: -100}, Date: 100, Text: "no tag here"},
		qualifyingMessage(3, "Third"),
	}}
	pub := &fakePublisher{}
	tr := &fakeTracker{processed: map[int64]bool{}}

	svc := newTestService(resolverWithTokens(), source, pub, tr)
	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Seen)
	assert.Equal(t, 2, summary.Published)
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, "bot-token", source.gotToken)

	require.Len(t, pub.created, 2)
	assert.Equal(t, "First", pub.created[0].Title)
	assert.Contains(t, pub.created[0].Content, "hello #sync\nbody text")
	assert.Contains(t, pub.created[0].Content, "_Publicado originalmente por @alice el 01/06/2024 12:00_")

	require.Len(t, tr.records, 3)
	assert.Equal(t, tracker.StatusSuccess, tr.records[0].Status)
	assert.Equal(t, tracker.StatusInvalid, tr.records[1].Status)
	assert.Equal(t, tracker.StatusSuccess, tr.records[2].Status)
	assert.NotZero(t, tr.records[0].TopicID)
}

func TestRunOnceSkipsAlreadyProcessed(t *testing.T) {
	source := &fakeSource{messages: []telegram.Message{qualifyingMessage(7, "Repeat")}}
	pub := &fakePublisher{}
	tr := &fakeTracker{processed: map[int64]bool{7: true}}

	svc := newTestService(resolverWithTokens(), source, pub, tr)
	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Empty(t, pub.created)
	assert.Empty(t, tr.records, "skipped messages get no new record")
}

func TestRunOnceSecondRunSkipsEverything(t *testing.T) {
	source := &fakeSource{messages: []telegram.Message{
		qualifyingMessage(1, "First"),
		{MessageID: 2, Chat: telegram.Chat{ID: -100}, Date: 100, Text: "no tag here"},
		qualifyingMessage(3, "Third"),
	}}
	pub := &fakePublisher{}
	tr := &fakeTracker{processed: map[int64]bool{}}

	svc := newTestService(resolverWithTokens(), source, pub, tr)

	first, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, first.Published)
	require.Equal(t, 1, first.Invalid)

	second, err := svc.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, second.Skipped)
	assert.Zero(t, second.Published)
	assert.Zero(t, second.Invalid)
	assert.Len(t, pub.created, 2, "re-running the same batch publishes nothing new")
	assert.Len(t, tr.records, 3, "no additional records on the second run")
}

func TestRunOnceIsolatesPublishFailures(t *testing.T) {
	source := &fakeSource{messages: []telegram.Message{
		qualifyingMessage(1, "Good"),
		qualifyingMessage(2, "Bad"),
		qualifyingMessage(3, "Also Good"),
	}}
	pub := &fakePublisher{failTitles: map[string]error{"Bad": errors.New("forum down")}}
	tr := &fakeTracker{processed: map[int64]bool{}}

	svc := newTestService(resolverWithTokens(), source, pub, tr)
	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err, "a publish failure must not abort the run")

	assert.Equal(t, 2, summary.Published)
	assert.Equal(t, 1, summary.PublishFailed)

	require.Len(t, tr.records, 3)
	assert.Equal(t, tracker.StatusErrorNodeBB, tr.records[1].Status)
	assert.Zero(t, tr.records[1].TopicID)
}

func TestRunOnceFatalOnIntakeFailure(t *testing.T) {
	source := &fakeSource{err: errors.New("telegram unreachable")}
	tr := &fakeTracker{processed: map[int64]bool{}}

	svc := newTestService(resolverWithTokens(), source, &fakePublisher{}, tr)
	summary, err := svc.RunOnce(context.Background())

	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, tr.records, "nothing is recorded when intake fails")
}

func TestRunOnceFatalOnCredentialFailure(t *testing.T) {
	tests := []struct {
		name     string
		resolver *fakeResolver
	}{
		{"resolver error", &fakeResolver{err: errors.New("store unavailable")}},
		{"missing bot token", &fakeResolver{values: map[string]string{"NODEBB_API_USER_TOKEN": "x"}}},
		{"empty api token", &fakeResolver{values: map[string]string{
			"TELEGRAM_BOT_TOKEN":    "x",
			"NODEBB_API_USER_TOKEN": "",
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := &fakeSource{messages: []telegram.Message{qualifyingMessage(1, "T")}}
			svc := newTestService(tt.resolver, source, &fakePublisher{}, &fakeTracker{processed: map[int64]bool{}})

			_, err := svc.RunOnce(context.Background())
			require.Error(t, err)
			assert.Empty(t, source.gotToken, "intake must not run without credentials")
		})
	}
}

type panickingPublisher struct{}

func (panickingPublisher) CreateTopic(context.Context, nodebb.TopicRequest) (*nodebb.TopicRef, error) {
	panic("nil map write")
}

func TestRunOnceRecoversUnexpectedFailures(t *testing.T) {
	source := &fakeSource{messages: []telegram.Message{
		qualifyingMessage(1, "Boom"),
		qualifyingMessage(2, "Fine"),
	}}
	tr := &fakeTracker{processed: map[int64]bool{}}

	svc := newTestService(resolverWithTokens(), source, panickingPublisher{}, tr)

	summary, err := svc.RunOnce(context.Background())
	require.NoError(t, err, "an unexpected failure must not abort the run")

	assert.Equal(t, 2, summary.Unexpected)
	require.Len(t, tr.records, 2)
	assert.Equal(t, tracker.StatusErrorNodeBB, tr.records[0].Status)
	assert.Equal(t, tracker.StatusErrorNodeBB, tr.records[1].Status)
}

func TestRunOnceSwallowsTrackerWriteFailures(t *testing.T) {
	source := &fakeSource{messages: []telegram.Message{qualifyingMessage(1, "Durable")}}
	pub := &fakePublisher{}
	tr := &fakeTracker{processed: map[int64]bool{}, writeErr: errors.New("redis down")}

	svc := newTestService(resolverWithTokens(), source, pub, tr)
	summary, err := svc.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Published, "the topic still counts as published")
	require.Len(t, pub.created, 1)
}

func TestBuildTopicContent(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	base := time.Date(2024, 12, 25, 13, 30, 0, 0, time.UTC).Unix()

	content := func(body string, author *telegram.User) *qualify.Content {
		return &qualify.Content{Title: "T", Body: body, Author: author, Date: base}
	}

	t.Run("named author in configured zone", func(t *testing.T) {
		got := BuildTopicContent(content("body here", &telegram.User{Username: "bob"}), madrid)
		assert.Equal(t, "body here\n\n_Publicado originalmente por @bob el 25/12/2024 14:30_", got)
	})

	t.Run("first name fallback", func(t *testing.T) {
		got := BuildTopicContent(content("body", &telegram.User{FirstName: "Ana"}), time.UTC)
		assert.Contains(t, got, "_Publicado originalmente por Ana el 25/12/2024 13:30_")
	})

	t.Run("anonymous post", func(t *testing.T) {
		got := BuildTopicContent(content("body", nil), nil)
		assert.Contains(t, got, "_Publicado originalmente el 25/12/2024 13:30_")
	})
}
