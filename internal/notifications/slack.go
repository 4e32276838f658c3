package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
)

type SlackProvider struct {
	config *config.SlackConfig
	client *http.Client
}

func NewSlackProvider(cfg *config.SlackConfig) *SlackProvider {
	return &SlackProvider{
		config: cfg,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

func (sp *SlackProvider) Name() string {
	return "slack"
}

func (sp *SlackProvider) IsEnabled() bool {
	return sp.config.Enabled && sp.config.WebhookURL != "" && sp.config.WebhookURL != "${SLACK_WEBHOOK_URL}"
}

func (sp *SlackProvider) Send(notification *Notification) error {
	if !sp.IsEnabled() {
		return nil
	}

	payload := sp.buildSlackPayload(notification)

	if err := sp.sendToSlack(payload); err != nil {
		logging.Error("[SLACK] Failed to send Slack message: %v", err)
		return err
	}

	logging.Info("[SLACK] Slack message sent (threat: %s/%.2f)", notification.ThreatLevel, notification.Score)
	return nil
}

func (sp *SlackProvider) sendToSlack(payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, sp.config.WebhookURL, bytes.NewBuffer(payloadJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mirage/1.0")

	resp, err := sp.client.Do(req)
	if err != nil {
		return fmt.Errorf("Slack webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("Slack webhook returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

func (sp *SlackProvider) buildSlackPayload(notification *Notification) map[string]interface{} {
	color := "#36a64f"
	emoji := ":information_source:"
	switch notification.ThreatLevel {
	case "CRITICAL":
		color = "#d00000"
		emoji = ":rotating_light:"
	case "HIGH":
		color = "#e85d04"
		emoji = ":warning:"
	case "MEDIUM":
		color = "#ffba08"
		emoji = ":eyes:"
	}

	text := fmt.Sprintf("%s *%s* threat from `%s`", emoji, notification.ThreatLevel, notification.SourceIP)

	attachment := map[string]interface{}{
		"color": color,
		"fields": []map[string]interface{}{
			{"title": "Threat Type", "value": notification.ThreatType, "short": true},
			{"title": "Score", "value": fmt.Sprintf("%.2f", notification.Score), "short": true},
			{"title": "Incident", "value": notification.IncidentID, "short": false},
			{"title": "Detail", "value": notification.Message, "short": false},
		},
	}

	payload := map[string]interface{}{
		"text":        text,
		"attachments": []interface{}{attachment},
	}
	if sp.config.Channel != "" {
		payload["channel"] = sp.config.Channel
	}
	return payload
}
