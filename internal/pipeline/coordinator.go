// Package pipeline wires the deception manager's event stream into the
// response controller.
package pipeline

import (
	"sync"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/deception"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
	"github.com/0tSystemsPublicRepos/mirage/internal/response"
)

// ThreatTypeDeceptionTrap is the threat type connection events are lifted
// to. Honeypots have no legitimate callers, so any connection is a trap
// trigger.
const ThreatTypeDeceptionTrap = "deception_trap_triggered"

type Status struct {
	Deception deception.DeceptionStats `json:"deception"`
	Response  response.ResponseStats   `json:"response"`
}

// EventStore persists connection events for audit. Writes are best-effort
// and never retried.
type EventStore interface {
	SaveConnectionEvent(ev deception.ConnectionEvent) error
}

// Coordinator owns the worker pool draining the fan-in channel. One slow
// incident occupies one worker; it never stalls ingestion of new events.
type Coordinator struct {
	manager    *deception.Manager
	controller *response.Controller
	store      EventStore
	workers    int

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewCoordinator wires the manager's output into the controller. store may
// be nil when persistence is unavailable.
func NewCoordinator(manager *deception.Manager, controller *response.Controller, store EventStore, workers int) *Coordinator {
	if workers <= 0 {
		workers = 8
	}
	return &Coordinator{
		manager:    manager,
		controller: controller,
		store:      store,
		workers:    workers,
	}
}

func (c *Coordinator) Deception() *deception.Manager  { return c.manager }
func (c *Coordinator) Response() *response.Controller { return c.controller }

// Start launches the worker pool. Events are forwarded only while the
// controller is active; while it is inactive the manager still logs them
// but no scoring work happens.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		for i := 0; i < c.workers; i++ {
			c.wg.Add(1)
			go c.worker()
		}
		logging.Info("[PIPELINE] Started %d workers", c.workers)
	})
}

func (c *Coordinator) worker() {
	defer c.wg.Done()

	for ev := range c.manager.Events() {
		if c.store != nil {
			if err := c.store.SaveConnectionEvent(ev); err != nil {
				logging.Error("[PIPELINE] Failed to persist event from %s: %v", ev.SourceIP, err)
			}
		}

		if !c.controller.Active() {
			continue
		}
		c.controller.Handle(c.lift(ev))
	}
}

// lift turns a connection event into the generalized threat event, with
// severity taken from the honeypot's configured sensitivity.
func (c *Coordinator) lift(ev deception.ConnectionEvent) response.ThreatEvent {
	severity := "medium"
	if spec, ok := c.manager.SpecFor(ev.HoneypotID); ok && spec.Sensitivity != "" {
		severity = spec.Sensitivity
	}

	return response.ThreatEvent{
		Type:       ThreatTypeDeceptionTrap,
		SourceIP:   ev.SourceIP,
		HoneypotID: ev.HoneypotID,
		Severity:   severity,
		Details:    ev.Details,
		Timestamp:  ev.Timestamp,
	}
}

// SetDeceptionPosture delegates to the manager.
func (c *Coordinator) SetDeceptionPosture(p deception.Posture) deception.Report {
	return c.manager.SetPosture(p)
}

// ActivateResponse / DeactivateResponse delegate to the controller.
func (c *Coordinator) ActivateResponse(level response.Posture) {
	c.controller.Activate(level)
}

func (c *Coordinator) DeactivateResponse() {
	c.controller.Deactivate()
}

// TestIncident submits a synthetic threat event straight to the
// controller, bypassing the deception layer.
func (c *Coordinator) TestIncident() response.IncidentResult {
	return c.controller.Handle(response.ThreatEvent{
		Type:      "test_threat",
		SourceIP:  "192.168.1.100",
		Severity:  "high",
		Details:   "synthetic test incident",
		Timestamp: time.Now(),
	})
}

func (c *Coordinator) Status() Status {
	return Status{
		Deception: c.manager.Stats(),
		Response:  c.controller.Stats(),
	}
}

// Stop joins every listener via the manager, drains the workers, then
// deactivates the controller. In-flight incidents complete first.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.manager.Stop()
		c.wg.Wait()
		c.controller.Deactivate()
		logging.Info("[PIPELINE] Stopped")
	})
}
