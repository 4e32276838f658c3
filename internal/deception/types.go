package deception

import (
	"fmt"
	"strings"
	"time"
)

// Posture controls which honeypots run.
type Posture string

const (
	PostureOff      Posture = "OFF"
	PostureLow      Posture = "LOW"
	PostureMedium   Posture = "MEDIUM"
	PostureHigh     Posture = "HIGH"
	PostureParanoid Posture = "PARANOID"
)

func ParsePosture(s string) (Posture, error) {
	switch Posture(strings.ToUpper(s)) {
	case PostureOff:
		return PostureOff, nil
	case PostureLow:
		return PostureLow, nil
	case PostureMedium:
		return PostureMedium, nil
	case PostureHigh:
		return PostureHigh, nil
	case PostureParanoid:
		return PostureParanoid, nil
	}
	return "", fmt.Errorf("unknown deception posture: %q", s)
}

// HoneypotSpec describes one emulated service. Immutable after the manager
// is configured.
type HoneypotSpec struct {
	ID          string
	Name        string
	Protocol    string
	Port        int
	Banner      string
	Sensitivity string
}

// ConnectionEvent is emitted once per accepted connection.
type ConnectionEvent struct {
	HoneypotID string    `json:"honeypot_id"`
	SourceIP   string    `json:"source_ip"`
	Timestamp  time.Time `json:"timestamp"`
	BytesRead  int       `json:"bytes_read"`
	Details    string    `json:"details"`
}

// DeceptionStats is a point-in-time snapshot of the manager.
type DeceptionStats struct {
	Posture         Posture          `json:"posture"`
	HoneypotsActive int              `json:"honeypots_active"`
	Connections     map[string]int64 `json:"connections"`
	TotalEvents     int64            `json:"total_events"`
	DroppedEvents   int64            `json:"dropped_events"`
	LogLength       int              `json:"log_length"`
}

// Report describes the outcome of a SetPosture call. A honeypot that could
// not bind its port appears in Failed; the rest of the set keeps running.
type Report struct {
	Posture Posture           `json:"posture"`
	Started []string          `json:"started"`
	Stopped []string          `json:"stopped"`
	Failed  map[string]string `json:"failed,omitempty"`
	Running []string          `json:"running"`
}

// Summary renders the partial-availability line shown to operators,
// e.g. "2/3 honeypots running, 1 failed: fake_ssh: address in use".
func (r Report) Summary() string {
	total := len(r.Running) + len(r.Failed)
	if len(r.Failed) == 0 {
		return fmt.Sprintf("%d/%d honeypots running", len(r.Running), total)
	}
	parts := make([]string, 0, len(r.Failed))
	for id, reason := range r.Failed {
		parts = append(parts, fmt.Sprintf("%s: %s", id, reason))
	}
	return fmt.Sprintf("%d/%d honeypots running, %d failed: %s",
		len(r.Running), total, len(r.Failed), strings.Join(parts, "; "))
}
