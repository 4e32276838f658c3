package response

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
	"github.com/0tSystemsPublicRepos/mirage/internal/scoring"
)

// incidentEntry wraps one incident with its own lock so unrelated
// incidents never serialize on each other.
type incidentEntry struct {
	mu  sync.Mutex
	inc Incident
}

func (e *incidentEntry) snapshot() Incident {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.inc
	out.Actions = append([]Action(nil), e.inc.Actions...)
	out.Results = append([]ActionResult(nil), e.inc.Results...)
	return out
}

func (e *incidentEntry) setRunning(i int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inc.Results[i].Status == ActionPending {
		e.inc.Results[i].Status = ActionRunning
	}
}

// finishAction records a terminal state unless the join timeout already
// marked this slot failed.
func (e *incidentEntry) finishAction(i int, status, detail string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if terminal(e.inc.Results[i].Status) {
		return
	}
	e.inc.Results[i].Status = status
	e.inc.Results[i].Detail = detail
}

func (e *incidentEntry) timeoutPending() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.inc.Results {
		if !terminal(e.inc.Results[i].Status) {
			e.inc.Results[i].Status = ActionFailed
			e.inc.Results[i].Detail = "timeout"
		}
	}
}

func terminal(status string) bool {
	return status == ActionDone || status == ActionFailed
}

// idRing retains closed incident ids, oldest evicted first, so duplicate
// detection stays bounded along with the incident log.
type idRing struct {
	ids  []string
	next int
	size int
}

func newIDRing(capacity int) *idRing {
	if capacity <= 0 {
		capacity = 200
	}
	return &idRing{ids: make([]string, capacity)}
}

// push returns the evicted id, if any.
func (r *idRing) push(id string) string {
	evicted := ""
	if r.size == len(r.ids) {
		evicted = r.ids[r.next]
	}
	r.ids[r.next] = id
	r.next = (r.next + 1) % len(r.ids)
	if r.size < len(r.ids) {
		r.size++
	}
	return evicted
}

// recent returns up to limit ids, newest last.
func (r *idRing) recent(limit int) []string {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]string, 0, limit)
	start := r.next - limit
	if start < 0 {
		start += len(r.ids)
	}
	for i := 0; i < limit; i++ {
		out = append(out, r.ids[(start+i)%len(r.ids)])
	}
	return out
}

// Controller consumes threat events, scores them, resolves a posture-gated
// action list and executes each action exactly once per incident.
type Controller struct {
	scorer   scoring.Scorer
	policy   *PolicyTable
	blocked  *BlockedIPSet
	store    IncidentStore
	notifier Notifier
	tracker  *sourceTracker
	handlers map[Action]actionFunc

	actionTimeout time.Duration
	longOpDelay   time.Duration

	stateMu      sync.RWMutex
	active       bool
	posture      Posture
	lastIncident time.Time

	incMu     sync.Mutex
	incidents map[string]*incidentEntry
	closed    *idRing

	totalIncidents int64
}

// NewController builds an inactive controller at MODERATE posture. store
// and notifier may be nil.
func NewController(cfg *config.ResponseConfig, scorer scoring.Scorer, store IncidentStore, notifier Notifier) *Controller {
	return &Controller{
		scorer:        scorer,
		policy:        NewPolicyTable(cfg),
		blocked:       NewBlockedIPSet(),
		store:         store,
		notifier:      notifier,
		tracker:       newSourceTracker(5 * time.Minute),
		handlers:      defaultHandlers(),
		actionTimeout: time.Duration(cfg.ActionTimeoutSeconds) * time.Second,
		longOpDelay:   100 * time.Millisecond,
		posture:       PostureModerate,
		incidents:     make(map[string]*incidentEntry),
		closed:        newIDRing(cfg.IncidentLogCapacity),
	}
}

// Activate enables Handle at the given posture. The posture takes effect
// for the next incident; in-flight incidents keep the posture captured at
// their creation.
func (c *Controller) Activate(level Posture) {
	c.stateMu.Lock()
	c.active = true
	c.posture = level
	c.stateMu.Unlock()
	logging.Info("[RESPONSE] Activated at %s level", level)
}

// Deactivate stops new incidents from starting. In-flight incidents run to
// completion or timeout; partially executed containment is never abandoned.
func (c *Controller) Deactivate() {
	c.stateMu.Lock()
	c.active = false
	c.stateMu.Unlock()
	logging.Info("[RESPONSE] Deactivated")
}

func (c *Controller) Active() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.active
}

func (c *Controller) Posture() Posture {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.posture
}

// IncidentID derives a deterministic incident id from event content so
// replayed and duplicated events collapse onto one incident. Events from
// the same source and type inside one minute share an id.
func IncidentID(ev ThreatEvent) string {
	bucket := ev.Timestamp.Truncate(time.Minute).Unix()
	data := fmt.Sprintf("%s|%s|%d", strings.ToLower(ev.Type), ev.SourceIP, bucket)
	sum := md5.Sum([]byte(data))
	return hex.EncodeToString(sum[:])
}

// Handle is the primary entry point. It scores the event, resolves the
// action list for the posture captured now, executes the actions
// concurrently and returns the closed incident. Duplicate delivery of the
// same derived id returns the existing incident's state instead.
func (c *Controller) Handle(ev ThreatEvent) IncidentResult {
	c.stateMu.RLock()
	active, posture := c.active, c.posture
	c.stateMu.RUnlock()

	if !active {
		return IncidentResult{Status: StatusInactive}
	}

	ev.Type = strings.ToLower(strings.TrimSpace(ev.Type))
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	id := IncidentID(ev)

	c.incMu.Lock()
	if existing, ok := c.incidents[id]; ok {
		c.incMu.Unlock()
		snap := existing.snapshot()
		return IncidentResult{Status: StatusDuplicate, Incident: &snap}
	}
	entry := &incidentEntry{inc: Incident{
		ID:       id,
		Event:    ev,
		Posture:  posture,
		State:    IncidentCreated,
		OpenedAt: time.Now(),
	}}
	c.incidents[id] = entry
	c.incMu.Unlock()

	atomic.AddInt64(&c.totalIncidents, 1)
	c.stateMu.Lock()
	c.lastIncident = time.Now()
	c.stateMu.Unlock()

	repeats, recent, distinct := c.tracker.observe(ev.SourceIP, ev.Timestamp)
	score, rationale := c.scorer.Score(scoring.IncidentContext{
		ThreatType:      ev.Type,
		SourceIP:        ev.SourceIP,
		Severity:        ev.Severity,
		RepeatCount:     repeats,
		RecentIncidents: recent,
		DistinctSources: distinct,
	})

	actions := c.policy.Resolve(ev.Type, posture, ev.SourceIP != "")

	entry.mu.Lock()
	entry.inc.Score = score
	entry.inc.Rationale = rationale
	entry.inc.Actions = actions
	entry.inc.Results = make([]ActionResult, len(actions))
	for i, a := range actions {
		entry.inc.Results[i] = ActionResult{Action: a, Status: ActionPending}
	}
	entry.inc.State = IncidentExecuting
	entry.mu.Unlock()

	logging.Threat(ev.SourceIP, ev.Type, rationale, score)

	c.execute(entry)

	entry.mu.Lock()
	entry.inc.State = IncidentClosed
	entry.inc.ClosedAt = time.Now()
	entry.mu.Unlock()

	c.persist(entry)

	c.incMu.Lock()
	if evicted := c.closed.push(id); evicted != "" {
		delete(c.incidents, evicted)
	}
	c.incMu.Unlock()

	snap := entry.snapshot()
	return IncidentResult{Status: StatusHandled, Incident: &snap}
}

// execute runs every resolved action concurrently and joins them with the
// configured timeout. Laggards are marked FAILED("timeout") and the
// incident closes anyway; the late goroutine's result is discarded.
func (c *Controller) execute(entry *incidentEntry) {
	entry.mu.Lock()
	actx := actionContext{
		IncidentID: entry.inc.ID,
		Event:      entry.inc.Event,
		Score:      entry.inc.Score,
	}
	actions := append([]Action(nil), entry.inc.Actions...)
	entry.mu.Unlock()

	var wg sync.WaitGroup
	for i, a := range actions {
		wg.Add(1)
		go func(i int, a Action) {
			defer wg.Done()

			handler, ok := c.handlers[a]
			if !ok {
				logging.Error("[RESPONSE] Unknown action %q in policy for %s", a, actx.Event.Type)
				entry.finishAction(i, ActionFailed, "unknown_action")
				return
			}

			entry.setRunning(i)
			detail, err := handler(c, actx)
			if err != nil {
				entry.finishAction(i, ActionFailed, err.Error())
				return
			}
			entry.finishAction(i, ActionDone, detail)
		}(i, a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(c.actionTimeout):
		entry.timeoutPending()
	}
}

func (c *Controller) persist(entry *incidentEntry) {
	if c.store == nil {
		return
	}

	snap := entry.snapshot()
	rec := IncidentRecord{
		ID:         snap.ID,
		ThreatType: snap.Event.Type,
		SourceIP:   snap.Event.SourceIP,
		Score:      snap.Score,
		Actions:    snap.Results,
		OpenedAt:   snap.OpenedAt,
		ClosedAt:   snap.ClosedAt,
	}
	if err := c.store.SaveIncident(rec); err != nil {
		logging.Error("[RESPONSE] Failed to persist incident %s: %v", snap.ID, err)
	}
}

// Log returns up to limit recently closed incidents, newest last.
func (c *Controller) Log(limit int) []Incident {
	c.incMu.Lock()
	ids := c.closed.recent(limit)
	entries := make([]*incidentEntry, 0, len(ids))
	for _, id := range ids {
		if e, ok := c.incidents[id]; ok {
			entries = append(entries, e)
		}
	}
	c.incMu.Unlock()

	out := make([]Incident, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot())
	}
	return out
}

func (c *Controller) BlockedIPs() []string { return c.blocked.List() }

func (c *Controller) Stats() ResponseStats {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	return ResponseStats{
		Active:           c.active,
		Posture:          c.posture,
		BlockedIPCount:   c.blocked.Len(),
		TotalIncidents:   atomic.LoadInt64(&c.totalIncidents),
		LastIncidentTime: c.lastIncident,
	}
}
