// Package nodebb creates forum topics through the NodeBB Write API.
package nodebb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/forolibre/telegram-nodebb-sync/internal/logger"
)

// requestTimeout bounds one topic-creation call; a timeout is treated the
// same as any other network failure.
const requestTimeout = 20 * time.Second

// Client talks to one NodeBB instance.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  logger.Logger
}

// TopicRequest describes the topic to create.
type TopicRequest struct {
	CategoryID string
	Title      string
	Content    string
}

// TopicRef identifies a created topic and its initial post.
type TopicRef struct {
	TopicID int64
	PostID  int64
}

// topicPayload is the JSON body of POST /api/v3/topics.
type topicPayload struct {
	CID     int64  `json:"cid"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// topicResponse is the expected success shape, identifiers nested under
// payload.topicData.tid and payload.postData.pid.
type topicResponse struct {
	Payload struct {
		TopicData struct {
			TID int64 `json:"tid"`
		} `json:"topicData"`
		PostData struct {
			PID int64 `json:"pid"`
		} `json:"postData"`
	} `json:"payload"`
}

// NewClient creates a NodeBB client. Base URL and token are required; the
// trailing slash of the base URL is stripped.
func NewClient(baseURL, token string, log logger.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("nodebb URL is required")
	}
	if token == "" {
		return nil, errors.New("nodebb API token is required")
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: requestTimeout},
		logger:  log,
	}, nil
}

// CreateTopic creates one forum topic and returns its durable identifiers.
//
// Errors are one of: a local validation error (before any network call), an
// *APIError for a rejected request, a wrapped transport error, or
// ErrUnexpectedResponse when a success status lacks the identifiers. No
// retries happen at this layer.
func (c *Client) CreateTopic(ctx context.Context, req TopicRequest) (*TopicRef, error) {
	if req.CategoryID == "" {
		return nil, errors.New("category id is required")
	}
	if req.Title == "" {
		return nil, errors.New("title is required")
	}

	cid, err := strconv.ParseInt(req.CategoryID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("category id %q is not numeric: %w", req.CategoryID, err)
	}

	payload, err := json.Marshal(topicPayload{
		CID:     cid,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	endpoint := c.baseURL + "/api/v3/topics"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Creating NodeBB topic",
		logger.String("endpoint", endpoint),
		logger.String("title", req.Title),
		logger.Int64("cid", cid),
		logger.Int("payload_size", len(payload)),
	)

	requestStart := time.Now()
	resp, err := c.client.Do(httpReq)
	requestDuration := time.Since(requestStart)
	if err != nil {
		c.logger.Error("NodeBB request failed",
			logger.String("endpoint", endpoint),
			logger.String("title", req.Title),
			logger.Duration("request_duration", requestDuration),
			logger.Error(err),
		)
		return nil, fmt.Errorf("nodebb request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read nodebb response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("NodeBB API rejected topic creation",
			logger.String("endpoint", endpoint),
			logger.String("title", req.Title),
			logger.Int("status_code", resp.StatusCode),
			logger.String("body", string(body)),
			logger.Duration("request_duration", requestDuration),
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var topicResp topicResponse
	if err := json.Unmarshal(body, &topicResp); err != nil {
		c.logger.Error("Failed to decode NodeBB response",
			logger.String("endpoint", endpoint),
			logger.String("title", req.Title),
			logger.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}

	tid := topicResp.Payload.TopicData.TID
	pid := topicResp.Payload.PostData.PID
	if tid == 0 || pid == 0 {
		c.logger.Error("NodeBB response missing topic or post id",
			logger.String("endpoint", endpoint),
			logger.String("title", req.Title),
			logger.String("body", string(body)),
		)
		return nil, fmt.Errorf("%w: missing tid or pid", ErrUnexpectedResponse)
	}

	c.logger.Info("NodeBB topic created",
		logger.String("title", req.Title),
		logger.Int64("tid", tid),
		logger.Int64("pid", pid),
		logger.Duration("request_duration", requestDuration),
	)

	return &TopicRef{TopicID: tid, PostID: pid}, nil
}
