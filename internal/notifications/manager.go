package notifications

import (
	"strings"
	"sync"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
	"github.com/0tSystemsPublicRepos/mirage/internal/scoring"
)

// Notification is one admin alert raised by the response controller.
type Notification struct {
	IncidentID  string  `json:"incident_id"`
	ThreatType  string  `json:"threat_type"`
	SourceIP    string  `json:"source_ip"`
	Score       float64 `json:"score"`
	ThreatLevel string  `json:"threat_level"`
	Message     string  `json:"message"`
}

type Provider interface {
	Name() string
	IsEnabled() bool
	Send(notification *Notification) error
}

type Manager struct {
	providers []Provider
	rules     config.NotificationRules
	mu        sync.RWMutex
}

func NewManager(cfg *config.NotificationsConfig) *Manager {
	manager := &Manager{rules: cfg.Rules}

	if cfg.Webhooks.Enabled {
		manager.providers = append(manager.providers, NewWebhookProvider(&cfg.Webhooks))
		logging.Info("[NOTIFICATIONS] Webhook provider initialized")
	}

	if cfg.Slack.Enabled {
		manager.providers = append(manager.providers, NewSlackProvider(&cfg.Slack))
		logging.Info("[NOTIFICATIONS] Slack provider initialized")
	}

	if len(manager.providers) == 0 {
		logging.Info("[NOTIFICATIONS] No notification providers enabled")
	}

	return manager
}

// NotifyIncident satisfies the controller's Notifier contract.
func (m *Manager) NotifyIncident(incidentID, threatType, sourceIP, message string, score float64) error {
	return m.Send(&Notification{
		IncidentID:  incidentID,
		ThreatType:  threatType,
		SourceIP:    sourceIP,
		Score:       score,
		ThreatLevel: strings.ToUpper(scoring.SeverityLabel(score)),
		Message:     message,
	})
}

// Send fans the notification out to every enabled provider in parallel.
// Provider failures are logged, never propagated to the caller's incident.
func (m *Manager) Send(notification *Notification) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.providers) == 0 {
		return nil
	}

	if !m.shouldSend(notification.ThreatLevel) {
		logging.Debug("[NOTIFICATIONS] Skipped notification for %s threat (rule-based filtering)", notification.ThreatLevel)
		return nil
	}

	logging.Info("[NOTIFICATIONS] Sending notification for threat: %s/%.2f from %s",
		notification.ThreatLevel, notification.Score, notification.SourceIP)

	var wg sync.WaitGroup
	for _, provider := range m.providers {
		if !provider.IsEnabled() {
			continue
		}

		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			if err := p.Send(notification); err != nil {
				logging.Error("[NOTIFICATIONS] Error from %s provider: %v", p.Name(), err)
			}
		}(provider)
	}
	wg.Wait()

	return nil
}

func (m *Manager) shouldSend(threatLevel string) bool {
	switch threatLevel {
	case "CRITICAL":
		return m.rules.AlertOnCritical
	case "HIGH":
		return m.rules.AlertOnHigh
	case "MEDIUM":
		return m.rules.AlertOnMedium
	case "LOW":
		return m.rules.AlertOnLow
	default:
		return false
	}
}

// GetProviderStatus returns status of all providers.
func (m *Manager) GetProviderStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]bool)
	for _, provider := range m.providers {
		status[provider.Name()] = provider.IsEnabled()
	}
	return status
}
