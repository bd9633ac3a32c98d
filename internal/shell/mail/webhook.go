package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/dochero/dochero/internal/core/domain"
)

// =============================================================================
// Forwarder Interface
// =============================================================================

// Delivery is one message handed to the automation webhook.
type Delivery struct {
	UserID   string          `json:"user_id"`
	Provider domain.Provider `json:"provider"`
	Message  json.RawMessage `json:"message"`
}

// Forwarder delivers new messages downstream.
type Forwarder interface {
	Forward(ctx context.Context, d Delivery) error
}

// =============================================================================
// Webhook Forwarder
// =============================================================================

// WebhookConfig holds configuration for the webhook forwarder.
type WebhookConfig struct {
	URL          string
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultWebhookConfig returns default webhook settings.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:      20 * time.Second,
		RetryMax:     2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// WebhookForwarder posts deliveries as JSON with bounded retries.
type WebhookForwarder struct {
	url    string
	client *retryablehttp.Client
}

// NewForwarder returns a WebhookForwarder, or a NoOpForwarder when no URL is
// configured.
func NewForwarder(cfg WebhookConfig, logger *slog.Logger) Forwarder {
	if cfg.URL == "" {
		return NoOpForwarder{}
	}
	return NewWebhookForwarder(cfg, logger)
}

// NewWebhookForwarder creates a forwarder for cfg.URL.
func NewWebhookForwarder(cfg WebhookConfig, logger *slog.Logger) *WebhookForwarder {
	def := DefaultWebhookConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = def.RetryWaitMin
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = def.RetryWaitMax
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = cfg.RetryWaitMin
	client.RetryWaitMax = cfg.RetryWaitMax
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = logger.With("component", "webhook")

	return &WebhookForwarder{url: cfg.URL, client: client}
}

// Forward posts d. Every delivery carries a unique X-Delivery-ID header.
func (f *WebhookForwarder) Forward(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, f.url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", uuid.NewString())

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send delivery: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned error %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// =============================================================================
// No-Op Forwarder
// =============================================================================

// NoOpForwarder drops deliveries (no webhook configured).
type NoOpForwarder struct{}

// Forward does nothing.
func (NoOpForwarder) Forward(context.Context, Delivery) error {
	return nil
}
