package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
)

type WebhookProvider struct {
	config *config.WebhooksConfig
	client *http.Client
}

func NewWebhookProvider(cfg *config.WebhooksConfig) *WebhookProvider {
	return &WebhookProvider{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (wp *WebhookProvider) Name() string {
	return "webhook"
}

func (wp *WebhookProvider) IsEnabled() bool {
	return wp.config.Enabled && len(wp.config.Endpoints) > 0
}

// Send fires the notification to every configured endpoint with retry.
func (wp *WebhookProvider) Send(notification *Notification) error {
	payloadJSON, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for _, endpoint := range wp.config.Endpoints {
		if err := wp.fireWebhook(endpoint, payloadJSON, notification); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (wp *WebhookProvider) fireWebhook(endpoint config.WebhookEndpoint, payload []byte, notification *Notification) error {
	var lastErr error
	for attempt := 1; attempt <= wp.config.RetryCount; attempt++ {
		err := wp.sendRequest(endpoint, payload)
		if err == nil {
			logging.Info("[WEBHOOK] Fired to %s (threat: %s/%.2f)",
				endpoint.URL, notification.ThreatLevel, notification.Score)
			return nil
		}

		lastErr = err
		logging.Error("[WEBHOOK] Attempt %d/%d to %s failed: %v",
			attempt, wp.config.RetryCount, endpoint.URL, err)

		if attempt < wp.config.RetryCount {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return lastErr
}

func (wp *WebhookProvider) sendRequest(endpoint config.WebhookEndpoint, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, endpoint.URL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mirage/1.0")
	if endpoint.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+endpoint.AuthToken)
	}

	resp, err := wp.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
