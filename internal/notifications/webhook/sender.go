// Package webhook delivers status change notifications to incoming webhooks
// (Mattermost and Slack compatible).
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/bissquit/uptime-garden/internal/notifications"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUsername  = "UptimeGarden"
	defaultRateLimit = 5
)

// Config holds webhook sender configuration. Webhook URLs are channel
// targets, so they are not part of it.
type Config struct {
	Username string
	IconURL  string
	Timeout  time.Duration
	// RateLimit is the maximum number of requests per second across all webhooks.
	RateLimit float64
	Burst     int
}

// Sender posts notifications to webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a new webhook sender.
func NewSender(config Config) *Sender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
	}
}

// Type returns the channel type.
func (s *Sender) Type() notifications.ChannelType {
	return notifications.ChannelTypeWebhook
}

type webhookPayload struct {
	Text     string              `json:"text"`
	Username string              `json:"username,omitempty"`
	IconURL  string              `json:"icon_url,omitempty"`
	Change   domain.StatusChange `json:"change"`
}

// Send posts the notification. notification.To contains the webhook URL.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	webhookURL := notification.To
	if webhookURL == "" {
		return &PermanentError{Message: notifications.ErrEmptyTarget.Error()}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return &RetryableError{Message: fmt.Sprintf("rate limiter: %v", err)}
	}

	payload := webhookPayload{
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
		Change:   notification.Payload.Change,
	}

	if notification.Subject != "" {
		payload.Text = fmt.Sprintf("### %s\n\n%s", notification.Subject, notification.Body)
	} else {
		payload.Text = notification.Body
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return &PermanentError{Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp, webhookURL)
}

func (s *Sender) handleResponse(resp *http.Response, webhookURL string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("webhook delivered", "webhook", maskWebhookURL(webhookURL))
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid or expired webhook",
		}

	case resp.StatusCode == http.StatusNotFound:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "webhook not found",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "rate limited",
		}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("server error: %s", string(body)),
		}

	default:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("unexpected status: %s", string(body)),
		}
	}
}

// maskWebhookURL hides part of the URL for logging.
func maskWebhookURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// PermanentError indicates a permanent error that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
