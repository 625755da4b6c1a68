// Package telegram retrieves candidate messages from the source chat via the
// Bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
)

const (
	// DefaultBaseURL is the Bot API endpoint prefix; the bot token is
	// embedded in the URL path after "bot".
	DefaultBaseURL = "https://api.telegram.org"

	// updatesBatchLimit is the maximum batch the API returns per call.
	// getUpdates is not a queryable history, so intake over-fetches this
	// fixed maximum and filters client-side.
	updatesBatchLimit = 100

	requestTimeout = 15 * time.Second
)

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

// NewClient creates a Telegram client. An empty baseURL selects the public
// Bot API endpoint; tests point it at a local server.
func NewClient(baseURL string, log logger.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  log,
	}
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool     `json:"ok"`
	Result      []Update `json:"result"`
	Description string   `json:"description,omitempty"`
}

// RecentMessages returns the messages of the target chat created at or after
// now-window that carry text content.
//
// The underlying getUpdates primitive returns a bounded batch of the most
// recent updates; very high-traffic chats may miss messages older than the
// batch boundary even within the window. That is an accepted limitation of
// the intake design, not an error.
func (c *Client) RecentMessages(ctx context.Context, botToken string, chatID int64, window time.Duration) ([]Message, error) {
	if botToken == "" {
		return nil, errors.New("bot token is required")
	}
	if chatID == 0 {
		return nil, errors.New("chat id is required")
	}

	cutoff := time.Now().Add(-window).Unix()

	endpoint := fmt.Sprintf("%s/bot%s/getUpdates", c.baseURL, botToken)
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", updatesBatchLimit))
	params.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", redactToken(err, botToken))
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching Telegram updates",
		logger.Int64("chat_id", chatID),
		logger.Int("limit", updatesBatchLimit),
		logger.Time("cutoff", time.Unix(cutoff, 0).UTC()),
	)

	requestStart := time.Now()
	resp, err := c.client.Do(req)
	requestDuration := time.Since(requestStart)
	if err != nil {
		// Transport errors carry the request URL, and the URL carries
		// the bot token in its path. Scrub it before the error is
		// logged or propagated.
		err = redactToken(err, botToken)
		c.logger.Error("Telegram request failed",
			logger.Int64("chat_id", chatID),
			logger.Duration("request_duration", requestDuration),
			logger.Error(err),
		)
		return nil, fmt.Errorf("telegram request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read telegram response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Telegram API error",
			logger.Int64("chat_id", chatID),
			logger.Int("status_code", resp.StatusCode),
			logger.String("body", string(body)),
			logger.Duration("request_duration", requestDuration),
		)
		return nil, fmt.Errorf("telegram API error: %d %s", resp.StatusCode, string(body))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("decode telegram response: %w", err)
	}
	if !apiResp.OK {
		c.logger.Error("Telegram API rejected getUpdates",
			logger.Int64("chat_id", chatID),
			logger.String("description", apiResp.Description),
		)
		return nil, fmt.Errorf("telegram API not ok: %s", apiResp.Description)
	}

	c.logger.Debug("Received Telegram updates",
		logger.Int64("chat_id", chatID),
		logger.Int("update_count", len(apiResp.Result)),
		logger.Duration("request_duration", requestDuration),
	)
	if len(apiResp.Result) == updatesBatchLimit {
		c.logger.Debug("Update batch is full; messages older than the batch boundary may be missed",
			logger.Int64("chat_id", chatID),
		)
	}

	messages := make([]Message, 0, len(apiResp.Result))
	for _, update := range apiResp.Result {
		msg := update.Message
		if msg == nil {
			continue
		}
		if msg.Chat.ID != chatID || msg.Date < cutoff || msg.Text == "" {
			continue
		}
		messages = append(messages, *msg)
	}

	c.logger.Info("Fetched relevant messages",
		logger.Int64("chat_id", chatID),
		logger.Int("message_count", len(messages)),
		logger.Int("update_count", len(apiResp.Result)),
	)

	return messages, nil
}

// redactToken replaces any occurrence of the bot token in an error message.
// Tokens must never appear in logs or propagated errors.
func redactToken(err error, botToken string) error {
	if botToken == "" || !strings.Contains(err.Error(), botToken) {
		return err
	}
	return errors.New(strings.ReplaceAll(err.Error(), botToken, "<redacted>"))
}
