package deception

import (
	"bufio"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

func testSpec() HoneypotSpec {
	return HoneypotSpec{
		ID:          "fake_ssh",
		Name:        "Fake SSH Server",
		Protocol:    "ssh",
		Port:        0, // ephemeral
		Banner:      "SSH-2.0-OpenSSH_8.9p1 Ubuntu-3ubuntu0.1",
		Sensitivity: "high",
	}
}

func dialListener(t *testing.T, l *Listener) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(l.Port())), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestListenerEmitsEvent(t *testing.T) {
	sink := make(chan ConnectionEvent, 4)
	l, err := StartListener(testSpec(), sink, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}
	defer l.Stop()

	conn := dialListener(t, l)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	banner, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read banner: %v", err)
	}
	if !strings.HasPrefix(banner, "SSH-2.0-OpenSSH") {
		t.Errorf("banner = %q, want SSH banner", banner)
	}

	conn.Write([]byte("probe payload"))

	select {
	case ev := <-sink:
		if ev.HoneypotID != "fake_ssh" {
			t.Errorf("HoneypotID = %q, want fake_ssh", ev.HoneypotID)
		}
		if ev.SourceIP != "127.0.0.1" {
			t.Errorf("SourceIP = %q, want 127.0.0.1", ev.SourceIP)
		}
		if ev.Timestamp.IsZero() {
			t.Error("event has zero timestamp")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event emitted")
	}

	if l.Connections() != 1 {
		t.Errorf("Connections = %d, want 1", l.Connections())
	}
}

func TestListenerCountsBytes(t *testing.T) {
	sink := make(chan ConnectionEvent, 4)
	spec := testSpec()
	spec.Banner = ""
	l, err := StartListener(spec, sink, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}
	defer l.Stop()

	conn := dialListener(t, l)
	payload := "GET /admin HTTP/1.1\r\n"
	conn.Write([]byte(payload))
	conn.Close()

	select {
	case ev := <-sink:
		if ev.BytesRead != len(payload) {
			t.Errorf("BytesRead = %d, want %d", ev.BytesRead, len(payload))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event emitted")
	}
}

func TestListenerSilentConnection(t *testing.T) {
	sink := make(chan ConnectionEvent, 4)
	l, err := StartListener(testSpec(), sink, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}
	defer l.Stop()

	// Connect and send nothing; the read deadline expires and the event is
	// emitted with a zero byte count.
	conn := dialListener(t, l)
	defer conn.Close()

	select {
	case ev := <-sink:
		if ev.BytesRead != 0 {
			t.Errorf("BytesRead = %d, want 0", ev.BytesRead)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event emitted for silent connection")
	}
}

func TestListenerDropsWhenSinkFull(t *testing.T) {
	sink := make(chan ConnectionEvent) // unbuffered and never drained
	l, err := StartListener(testSpec(), sink, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}
	defer l.Stop()

	conn := dialListener(t, l)
	conn.Write([]byte("x"))
	conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for l.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if l.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", l.Dropped())
	}
}

func TestListenerStopIdempotent(t *testing.T) {
	sink := make(chan ConnectionEvent, 1)
	l, err := StartListener(testSpec(), sink, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("StartListener: %v", err)
	}

	l.Stop()
	l.Stop() // second call must not panic or hang

	if _, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(l.Port())), 500*time.Millisecond); err == nil {
		t.Error("port still accepting after Stop")
	}
}

func TestBindConflictClassified(t *testing.T) {
	occupier, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("setup listener: %v", err)
	}
	defer occupier.Close()

	spec := testSpec()
	spec.Port = occupier.Addr().(*net.TCPAddr).Port

	sink := make(chan ConnectionEvent, 1)
	_, err = StartListener(spec, sink, 250*time.Millisecond)
	if err == nil {
		t.Fatal("expected bind error on occupied port")
	}
	if !errors.Is(err, ErrAddressInUse) {
		t.Errorf("error = %v, want ErrAddressInUse", err)
	}
}
