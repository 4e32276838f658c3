package deception

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
)

// Manager owns the honeypot catalog, starts and stops listeners per the
// requested posture, and fans all listener events into one ordered output
// channel. It also keeps the bounded audit log of connection events.
type Manager struct {
	specs        map[string]HoneypotSpec
	postureTable map[Posture][]string
	grace        time.Duration

	postureMu sync.Mutex // serializes SetPosture / Stop (real sockets open and close here)
	mu        sync.RWMutex
	running   map[string]*Listener
	posture   Posture

	intake chan ConnectionEvent
	out    chan ConnectionEvent
	ring   *eventRing

	total   int64
	dropped int64 // events dropped because the output channel was full

	pumpWG   sync.WaitGroup
	stopOnce sync.Once
}

func NewManager(cfg *config.DeceptionConfig) *Manager {
	specs := make(map[string]HoneypotSpec, len(cfg.Honeypots))
	for id, tpl := range cfg.Honeypots {
		specs[id] = HoneypotSpec{
			ID:          id,
			Name:        tpl.Name,
			Protocol:    tpl.Protocol,
			Port:        tpl.Port,
			Banner:      tpl.Banner,
			Sensitivity: tpl.Sensitivity,
		}
	}

	table := make(map[Posture][]string, len(cfg.PostureTable))
	for name, ids := range cfg.PostureTable {
		if p, err := ParsePosture(name); err == nil {
			table[p] = ids
		}
	}

	m := &Manager{
		specs:        specs,
		postureTable: table,
		grace:        time.Duration(cfg.SendGraceMS) * time.Millisecond,
		running:      make(map[string]*Listener),
		posture:      PostureOff,
		intake:       make(chan ConnectionEvent, cfg.EventBufferSize),
		out:          make(chan ConnectionEvent, cfg.EventBufferSize),
		ring:         newEventRing(cfg.LogCapacity),
	}

	m.pumpWG.Add(1)
	go m.pump()

	return m
}

// pump drains the listener fan-in channel: every event is appended to the
// audit log, then forwarded to the output channel. The forward never
// blocks; a full output channel drops the event and counts it.
func (m *Manager) pump() {
	defer m.pumpWG.Done()

	for ev := range m.intake {
		m.ring.Append(ev)
		atomic.AddInt64(&m.total, 1)

		select {
		case m.out <- ev:
		default:
			atomic.AddInt64(&m.dropped, 1)
		}
	}
	close(m.out)
}

// Events is the fan-in stream consumed by the pipeline workers. The channel
// is closed after Stop.
func (m *Manager) Events() <-chan ConnectionEvent {
	return m.out
}

// SpecFor returns the catalog entry for a honeypot id.
func (m *Manager) SpecFor(id string) (HoneypotSpec, bool) {
	spec, ok := m.specs[id]
	return spec, ok
}

// PortFor returns the bound port of a running honeypot. The bound port can
// differ from the spec when the spec asked for an ephemeral port.
func (m *Manager) PortFor(id string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.running[id]
	if !ok {
		return 0, false
	}
	return l.Port(), true
}

// SetPosture diffs the honeypot set required by p against what is running,
// stops extras and starts missing ones. Concurrent calls are serialized; a
// call in progress completes fully before the next begins. A honeypot whose
// port cannot be bound is reported as failed and the rest keep running.
func (m *Manager) SetPosture(p Posture) Report {
	m.postureMu.Lock()
	defer m.postureMu.Unlock()

	want := make(map[string]bool)
	for _, id := range m.postureTable[p] {
		if _, ok := m.specs[id]; ok {
			want[id] = true
		}
	}

	report := Report{Posture: p, Failed: make(map[string]string)}

	m.mu.RLock()
	current := make(map[string]*Listener, len(m.running))
	for id, l := range m.running {
		current[id] = l
	}
	m.mu.RUnlock()

	// Stop extras first so their ports are free before anything new binds.
	for id, l := range current {
		if want[id] {
			continue
		}
		l.Stop()
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
		report.Stopped = append(report.Stopped, id)
		logging.Info("[DECEPTION] Stopped honeypot %s", id)
	}

	for id := range want {
		if _, ok := current[id]; ok {
			continue
		}
		l, err := StartListener(m.specs[id], m.intake, m.grace)
		if err != nil {
			report.Failed[id] = err.Error()
			logging.Error("[DECEPTION] Failed to start honeypot %s: %v", id, err)
			continue
		}
		m.mu.Lock()
		m.running[id] = l
		m.mu.Unlock()
		report.Started = append(report.Started, id)
	}

	m.mu.Lock()
	m.posture = p
	for id := range m.running {
		report.Running = append(report.Running, id)
	}
	m.mu.Unlock()

	sort.Strings(report.Started)
	sort.Strings(report.Stopped)
	sort.Strings(report.Running)
	if len(report.Failed) == 0 {
		report.Failed = nil
	}

	logging.Info("[DECEPTION] Posture %s: %s", p, report.Summary())
	return report
}

// Posture returns the current deception posture.
func (m *Manager) Posture() Posture {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.posture
}

// Stats snapshots the manager without blocking on listener internals.
func (m *Manager) Stats() DeceptionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := make(map[string]int64, len(m.running))
	for id, l := range m.running {
		conns[id] = l.Connections()
	}

	return DeceptionStats{
		Posture:         m.posture,
		HoneypotsActive: len(m.running),
		Connections:     conns,
		TotalEvents:     atomic.LoadInt64(&m.total),
		DroppedEvents:   m.droppedTotal(),
		LogLength:       m.ring.Len(),
	}
}

// droppedTotal sums forward drops with per-listener sink drops.
// Caller holds at least a read lock.
func (m *Manager) droppedTotal() int64 {
	total := atomic.LoadInt64(&m.dropped)
	for _, l := range m.running {
		total += l.Dropped()
	}
	return total
}

// Log returns the most recent limit events, newest last.
func (m *Manager) Log(limit int) []ConnectionEvent {
	return m.ring.Recent(limit)
}

// Stop stops every listener, fully joining each accept loop, then shuts
// down the fan-in pump and closes the event stream.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.postureMu.Lock()
		defer m.postureMu.Unlock()

		m.mu.RLock()
		listeners := make([]*Listener, 0, len(m.running))
		for _, l := range m.running {
			listeners = append(listeners, l)
		}
		m.mu.RUnlock()

		for _, l := range listeners {
			l.Stop()
		}

		m.mu.Lock()
		m.running = make(map[string]*Listener)
		m.posture = PostureOff
		m.mu.Unlock()

		close(m.intake)
		m.pumpWG.Wait()

		logging.Info("[DECEPTION] Manager stopped")
	})
}
