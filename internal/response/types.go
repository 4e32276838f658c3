package response

import (
	"fmt"
	"strings"
	"time"
)

// Posture governs which actions a policy row may select.
type Posture string

const (
	PostureConservative Posture = "CONSERVATIVE"
	PostureModerate     Posture = "MODERATE"
	PostureAggressive   Posture = "AGGRESSIVE"
)

func ParsePosture(s string) (Posture, error) {
	switch Posture(strings.ToUpper(s)) {
	case PostureConservative:
		return PostureConservative, nil
	case PostureModerate:
		return PostureModerate, nil
	case PostureAggressive:
		return PostureAggressive, nil
	}
	return "", fmt.Errorf("unknown response posture: %q", s)
}

// ThreatEvent is the generalized input to the controller. Deception is one
// producer among several; anything can submit a ThreatEvent directly.
type ThreatEvent struct {
	Type       string    `json:"type"`
	SourceIP   string    `json:"source_ip"`
	HoneypotID string    `json:"honeypot_id,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Action is a containment action name. Unknown names surviving in a policy
// row fail at execution time without aborting their incident.
type Action string

const (
	ActionBlockIP            Action = "BLOCK_IP"
	ActionAlertAdmin         Action = "ALERT_ADMIN"
	ActionIsolateNetwork     Action = "ISOLATE_NETWORK"
	ActionBackupData         Action = "BACKUP_DATA"
	ActionIncreaseMonitoring Action = "INCREASE_MONITORING"
)

// Per-action lifecycle states.
const (
	ActionPending = "PENDING"
	ActionRunning = "RUNNING"
	ActionDone    = "DONE"
	ActionFailed  = "FAILED"
)

type ActionResult struct {
	Action Action `json:"action"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Incident lifecycle states.
const (
	IncidentCreated   = "CREATED"
	IncidentExecuting = "EXECUTING"
	IncidentClosed    = "CLOSED"
)

// Incident is the unit of response work created from one threat event. The
// action list is fixed at creation time; only results are annotated after.
type Incident struct {
	ID        string         `json:"id"`
	Event     ThreatEvent    `json:"event"`
	Score     float64        `json:"score"`
	Rationale string         `json:"rationale"`
	Posture   Posture        `json:"posture"`
	Actions   []Action       `json:"actions"`
	Results   []ActionResult `json:"results"`
	State     string         `json:"state"`
	OpenedAt  time.Time      `json:"opened_at"`
	ClosedAt  time.Time      `json:"closed_at,omitempty"`
}

// Handle outcomes.
const (
	StatusInactive  = "inactive"
	StatusHandled   = "handled"
	StatusDuplicate = "duplicate"
)

type IncidentResult struct {
	Status   string    `json:"status"`
	Incident *Incident `json:"incident,omitempty"`
}

type ResponseStats struct {
	Active           bool      `json:"active"`
	Posture          Posture   `json:"posture"`
	BlockedIPCount   int       `json:"blocked_ip_count"`
	TotalIncidents   int64     `json:"total_incidents"`
	LastIncidentTime time.Time `json:"last_incident_time"`
}

// IncidentRecord is the persistence contract for a closed incident. A
// failed write is logged and the incident still closes.
type IncidentRecord struct {
	ID         string
	ThreatType string
	SourceIP   string
	Score      float64
	Actions    []ActionResult
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// IncidentStore durably stores closed incidents. Implemented by the
// database layer; the controller never retries a failed save.
type IncidentStore interface {
	SaveIncident(rec IncidentRecord) error
}

// Notifier delivers admin alerts to external channels, best-effort.
type Notifier interface {
	NotifyIncident(incidentID, threatType, sourceIP, message string, score float64) error
}
