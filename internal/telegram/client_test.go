package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
)

const testChatID int64 = -100200300

func updatesServer(t *testing.T, updates []Update) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottest-token/getUpdates" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": updates,
		}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
}

func msg(id int64, chatID int64, age time.Duration, text string) *Message {
	return &Message{
		MessageID: id,
		Chat:      Chat{ID: chatID, Type: "supergroup"},
		Date:      time.Now().Add(-age).Unix(),
		Text:      text,
	}
}

func TestRecentMessagesFilters(t *testing.T) {
	updates := []Update{
		{UpdateID: 1, Message: msg(10, testChatID, time.Hour, "recent in-chat")},
		{UpdateID: 2, Message: msg(11, 999, time.Hour, "other chat")},
		{UpdateID: 3, Message: msg(12, testChatID, 100*24*time.Hour, "too old")},
		{UpdateID: 4, Message: msg(13, testChatID, time.Hour, "")},
		{UpdateID: 5}, // non-message update
		{UpdateID: 6, Message: msg(14, testChatID, 2*time.Hour, "also recent")},
	}
	srv := updatesServer(t, updates)
	defer srv.Close()

	c := NewClient(srv.URL, logger.NewNop())
	got, err := c.RecentMessages(context.Background(), "test-token", testChatID, 3*24*time.Hour)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].MessageID != 10 || got[1].MessageID != 14 {
		t.Errorf("message ids = [%d %d], want [10 14]", got[0].MessageID, got[1].MessageID)
	}
}

func TestRecentMessagesPreconditions(t *testing.T) {
	c := NewClient("http://unused.invalid", logger.NewNop())

	if _, err := c.RecentMessages(context.Background(), "", testChatID, time.Hour); err == nil {
		t.Error("missing token: want error")
	}
	if _, err := c.RecentMessages(context.Background(), "tok", 0, time.Hour); err == nil {
		t.Error("missing chat id: want error")
	}
}

func TestRecentMessagesAPINotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logger.NewNop())
	if _, err := c.RecentMessages(context.Background(), "test-token", testChatID, time.Hour); err == nil {
		t.Error("ok=false: want error")
	}
}

func TestRecentMessagesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logger.NewNop())
	if _, err := c.RecentMessages(context.Background(), "test-token", testChatID, time.Hour); err == nil {
		t.Error("502: want error")
	}
}

func TestRecentMessagesRedactsTokenFromTransportErrors(t *testing.T) {
	const token = "123456:SECRET-BOT-TOKEN"

	// Nothing listens on port 1; the dial failure embeds the request URL,
	// token included, unless the client scrubs it.
	c := NewClient("http://127.0.0.1:1", logger.NewNop())
	_, err := c.RecentMessages(context.Background(), token, testChatID, time.Hour)
	if err == nil {
		t.Fatal("unreachable endpoint: want error")
	}
	if strings.Contains(err.Error(), token) {
		t.Errorf("error leaks bot token: %v", err)
	}
	if !strings.Contains(err.Error(), "<redacted>") {
		t.Errorf("error = %v, want token replaced with <redacted>", err)
	}
}

func TestRecentMessagesMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, logger.NewNop())
	if _, err := c.RecentMessages(context.Background(), "test-token", testChatID, time.Hour); err == nil {
		t.Error("malformed payload: want error")
	}
}
