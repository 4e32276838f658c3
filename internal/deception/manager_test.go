package deception

import (
	"net"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/config"
)

func testDeceptionConfig() *config.DeceptionConfig {
	return &config.DeceptionConfig{
		Honeypots: map[string]config.HoneypotTemplate{
			"fake_ssh": {Name: "Fake SSH Server", Protocol: "ssh", Port: 0, Banner: "SSH-2.0-OpenSSH_8.9p1", Sensitivity: "high"},
			"fake_web": {Name: "Fake Web Admin Panel", Protocol: "http", Port: 0, Sensitivity: "medium"},
			"fake_db":  {Name: "Fake MySQL Database", Protocol: "mysql", Port: 0, Sensitivity: "high"},
		},
		PostureTable: map[string][]string{
			"OFF":    {},
			"LOW":    {"fake_web"},
			"MEDIUM": {"fake_ssh", "fake_web"},
			"HIGH":   {"fake_ssh", "fake_web", "fake_db"},
		},
		EventBufferSize: 16,
		LogCapacity:     8,
		SendGraceMS:     100,
	}
}

func TestSetPostureDiffs(t *testing.T) {
	m := NewManager(testDeceptionConfig())
	defer m.Stop()

	report := m.SetPosture(PostureMedium)
	wantStarted := []string{"fake_ssh", "fake_web"}
	if !equalStrings(report.Started, wantStarted) {
		t.Errorf("Started = %v, want %v", report.Started, wantStarted)
	}
	if len(report.Stopped) != 0 {
		t.Errorf("Stopped = %v, want none", report.Stopped)
	}

	// MEDIUM -> LOW keeps fake_web running and stops only fake_ssh.
	report = m.SetPosture(PostureLow)
	if !equalStrings(report.Stopped, []string{"fake_ssh"}) {
		t.Errorf("Stopped = %v, want [fake_ssh]", report.Stopped)
	}
	if len(report.Started) != 0 {
		t.Errorf("Started = %v, want none", report.Started)
	}
	if !equalStrings(report.Running, []string{"fake_web"}) {
		t.Errorf("Running = %v, want [fake_web]", report.Running)
	}

	report = m.SetPosture(PostureOff)
	if len(report.Running) != 0 {
		t.Errorf("OFF left honeypots running: %v", report.Running)
	}
	if m.Posture() != PostureOff {
		t.Errorf("Posture = %s, want OFF", m.Posture())
	}
}

func TestSetPostureReportsBindFailure(t *testing.T) {
	occupier, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("setup listener: %v", err)
	}
	defer occupier.Close()

	cfg := testDeceptionConfig()
	tpl := cfg.Honeypots["fake_db"]
	tpl.Port = occupier.Addr().(*net.TCPAddr).Port
	cfg.Honeypots["fake_db"] = tpl

	m := NewManager(cfg)
	defer m.Stop()

	report := m.SetPosture(PostureHigh)
	if _, failed := report.Failed["fake_db"]; !failed {
		t.Errorf("Failed = %v, want fake_db present", report.Failed)
	}

	// The conflicting honeypot must not take the others down.
	if !equalStrings(report.Running, []string{"fake_ssh", "fake_web"}) {
		t.Errorf("Running = %v, want the two healthy honeypots", report.Running)
	}
}

func TestManagerForwardsEvents(t *testing.T) {
	m := NewManager(testDeceptionConfig())
	defer m.Stop()

	m.SetPosture(PostureLow)

	port, ok := m.PortFor("fake_web")
	if !ok {
		t.Fatal("fake_web not running")
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Write([]byte("GET / HTTP/1.1\r\n"))
	conn.Close()

	select {
	case ev := <-m.Events():
		if ev.HoneypotID != "fake_web" {
			t.Errorf("HoneypotID = %q, want fake_web", ev.HoneypotID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event forwarded")
	}

	if got := len(m.Log(10)); got != 1 {
		t.Errorf("log length = %d, want 1", got)
	}

	stats := m.Stats()
	if stats.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1", stats.TotalEvents)
	}
	if stats.HoneypotsActive != 1 {
		t.Errorf("HoneypotsActive = %d, want 1", stats.HoneypotsActive)
	}
}

func TestManagerStopClosesStream(t *testing.T) {
	m := NewManager(testDeceptionConfig())
	m.SetPosture(PostureMedium)

	m.Stop()
	m.Stop() // idempotent

	select {
	case _, open := <-m.Events():
		if open {
			t.Error("event stream delivered after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event stream not closed after Stop")
	}
}

func TestParseDeceptionPosture(t *testing.T) {
	tests := []struct {
		in      string
		want    Posture
		wantErr bool
	}{
		{"OFF", PostureOff, false},
		{"low", PostureLow, false},
		{"Medium", PostureMedium, false},
		{"HIGH", PostureHigh, false},
		{"paranoid", PostureParanoid, false},
		{"stealth", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePosture(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePosture(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePosture(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEventRingEviction(t *testing.T) {
	ring := newEventRing(3)

	for i := 0; i < 5; i++ {
		ring.Append(ConnectionEvent{HoneypotID: "hp", BytesRead: i})
	}

	if ring.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ring.Len())
	}

	recent := ring.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("Recent returned %d events, want 3", len(recent))
	}
	// Oldest evicted first; newest last.
	for i, ev := range recent {
		if want := i + 2; ev.BytesRead != want {
			t.Errorf("recent[%d].BytesRead = %d, want %d", i, ev.BytesRead, want)
		}
	}

	if got := ring.Recent(2); len(got) != 2 || got[1].BytesRead != 4 {
		t.Errorf("Recent(2) = %v, want the two newest", got)
	}
}

func equalStrings(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	g := append([]string(nil), got...)
	w := append([]string(nil), want...)
	sort.Strings(g)
	sort.Strings(w)
	for i := range g {
		if g[i] != w[i] {
			return false
		}
	}
	return true
}
