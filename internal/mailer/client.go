package mailer

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/domain"
	"github.com/codedrip/codedrip-server/internal/ratelimit"
)

const (
	defaultTimeout = 30 * time.Second

	// Single limiter key: the provider throttles per API key, not per recipient.
	limiterKey = "send"
)

// Client is a rate-limited HTTP client for a transactional email provider.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	cfg     config.MailerConfig
	logger  *slog.Logger
}

// NewClient creates a provider client from config.
func NewClient(cfg config.MailerConfig, logger *slog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter: ratelimit.New(cfg.RPS, cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// sendRequest is the provider's message payload.
type sendRequest struct {
	From     string `json:"from"`
	FromName string `json:"from_name,omitempty"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	Text     string `json:"text,omitempty"`
	// Echoed back in webhook events so the reconciler can match them.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// sendResponse is the provider's acknowledgement.
type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Send submits one email to the provider and returns its message id.
func (c *Client) Send(ctx context.Context, item *domain.EmailQueueItem) (string, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	payload := sendRequest{
		From:          c.cfg.FromEmail,
		FromName:      c.cfg.FromName,
		To:            item.Recipient,
		Subject:       item.Subject,
		HTML:          item.BodyHTML,
		Text:          item.BodyText,
		CorrelationID: item.ID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("User-Agent", "CodeDrip/1.0")

	c.logger.Debug("mailer send",
		"email_id", item.ID,
		"kind", item.Kind,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		var ack sendResponse
		if err := json.Unmarshal(respBody, &ack); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		return ack.MessageID, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrRateLimited
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, string(respBody))
	default:
		return "", fmt.Errorf("%w: status %d", ErrProvider, resp.StatusCode)
	}
}
