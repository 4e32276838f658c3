package response

import (
	"errors"
	"fmt"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
)

// actionContext carries what a handler needs about its incident.
type actionContext struct {
	IncidentID string
	Event      ThreatEvent
	Score      float64
}

type actionFunc func(c *Controller, actx actionContext) (detail string, err error)

// defaultHandlers is the action-name → handler table. Every handler is
// idempotent and independently retryable.
func defaultHandlers() map[Action]actionFunc {
	return map[Action]actionFunc{
		ActionBlockIP:            (*Controller).blockIP,
		ActionAlertAdmin:         (*Controller).alertAdmin,
		ActionIsolateNetwork:     (*Controller).isolateNetwork,
		ActionBackupData:         (*Controller).backupData,
		ActionIncreaseMonitoring: (*Controller).increaseMonitoring,
	}
}

func (c *Controller) blockIP(actx actionContext) (string, error) {
	ip := actx.Event.SourceIP
	if ip == "" {
		return "", errors.New("no source address")
	}

	if already := c.blocked.Block(ip); already {
		return "already_blocked", nil
	}

	logging.Info("[RESPONSE] Blocked IP %s (incident %s)", ip, actx.IncidentID)
	return "blocked", nil
}

func (c *Controller) alertAdmin(actx actionContext) (string, error) {
	msg := fmt.Sprintf("Response alert: %s from %s (score %.2f)",
		actx.Event.Type, actx.Event.SourceIP, actx.Score)
	logging.Info("[RESPONSE] %s", msg)

	// External delivery is best-effort: a notifier failure must never turn
	// alerting into a containment failure.
	if c.notifier != nil {
		if err := c.notifier.NotifyIncident(actx.IncidentID, actx.Event.Type, actx.Event.SourceIP, msg, actx.Score); err != nil {
			logging.Error("[RESPONSE] Alert delivery failed for incident %s: %v", actx.IncidentID, err)
		}
	}

	return "alert raised", nil
}

func (c *Controller) isolateNetwork(actx actionContext) (string, error) {
	segment := "192.168.1.0/24"
	c.simulateLongOp()
	logging.Info("[RESPONSE] Isolated network segment %s (incident %s)", segment, actx.IncidentID)
	return fmt.Sprintf("isolated segment %s", segment), nil
}

func (c *Controller) backupData(actx actionContext) (string, error) {
	backupID := fmt.Sprintf("backup_%d", time.Now().Unix())
	c.simulateLongOp()
	logging.Info("[RESPONSE] Completed %s (incident %s)", backupID, actx.IncidentID)
	return backupID, nil
}

func (c *Controller) increaseMonitoring(actx actionContext) (string, error) {
	c.simulateLongOp()
	logging.Info("[RESPONSE] Monitoring level raised (incident %s)", actx.IncidentID)
	return "monitoring increased", nil
}

// simulateLongOp stands in for the long-running half of an action. The
// per-incident join timeout bounds it either way.
func (c *Controller) simulateLongOp() {
	if c.longOpDelay > 0 {
		time.Sleep(c.longOpDelay)
	}
}
