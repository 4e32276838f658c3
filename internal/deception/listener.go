package deception

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
)

var (
	ErrAddressInUse     = errors.New("address in use")
	ErrPermissionDenied = errors.New("permission denied")
)

const (
	acceptDeadline = 1 * time.Second
	bannerDeadline = 2 * time.Second
	readDeadline   = 300 * time.Millisecond
)

// Listener binds one honeypot port, writes the configured banner to every
// connection and emits one ConnectionEvent per accept. It owns no state
// beyond its counters.
type Listener struct {
	spec     HoneypotSpec
	ln       *net.TCPListener
	sink     chan<- ConnectionEvent
	grace    time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	connections int64
	dropped     int64
}

// StartListener binds the spec's port and starts the accept loop. A bind
// failure is fatal to this honeypot only; the error is classified so the
// manager can report it.
func StartListener(spec HoneypotSpec, sink chan<- ConnectionEvent, grace time.Duration) (*Listener, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", spec.Port))
	if err != nil {
		return nil, classifyBindError(spec.Port, err)
	}

	if grace <= 0 {
		grace = 250 * time.Millisecond
	}

	l := &Listener{
		spec:  spec,
		ln:    ln.(*net.TCPListener),
		sink:  sink,
		grace: grace,
		done:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.acceptLoop()

	logging.Info("[HONEYPOT] %s listening on port %d", spec.ID, l.Port())
	return l, nil
}

func classifyBindError(port int, err error) error {
	switch {
	case errors.Is(err, syscall.EADDRINUSE):
		return fmt.Errorf("bind port %d: %w", port, ErrAddressInUse)
	case errors.Is(err, syscall.EACCES):
		return fmt.Errorf("bind port %d: %w", port, ErrPermissionDenied)
	}
	return fmt.Errorf("bind port %d: %w", port, err)
}

// Port returns the actual bound port. Useful when the spec asked for an
// ephemeral port.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

func (l *Listener) Connections() int64 { return atomic.LoadInt64(&l.connections) }
func (l *Listener) Dropped() int64     { return atomic.LoadInt64(&l.dropped) }

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		select {
		case <-l.done:
			return
		default:
		}

		// Short deadline so Stop is observed promptly.
		l.ln.SetDeadline(time.Now().Add(acceptDeadline))

		conn, err := l.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-l.done:
				return
			default:
			}
			logging.Error("[HONEYPOT] %s accept: %v", l.spec.ID, err)
			continue
		}

		l.handleConn(conn)
	}
}

func (l *Listener) handleConn(conn net.Conn) {
	atomic.AddInt64(&l.connections, 1)

	sourceIP := remoteIP(conn)

	// Banner write is best-effort; the connection is closed regardless.
	if l.spec.Banner != "" {
		conn.SetWriteDeadline(time.Now().Add(bannerDeadline))
		conn.Write([]byte(l.spec.Banner + "\n"))
	}

	// Read whatever the client sends first, only to record a byte count.
	var buf [1024]byte
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	n, _ := conn.Read(buf[:])
	conn.Close()

	ev := ConnectionEvent{
		HoneypotID: l.spec.ID,
		SourceIP:   sourceIP,
		Timestamp:  time.Now(),
		BytesRead:  n,
		Details:    fmt.Sprintf("Connection to %s on port %d", l.spec.Name, l.spec.Port),
	}

	// Favor listener availability over lossless delivery: if the sink is
	// still full after the grace period, the event is dropped and counted.
	select {
	case l.sink <- ev:
	case <-time.After(l.grace):
		atomic.AddInt64(&l.dropped, 1)
	case <-l.done:
	}
}

func remoteIP(conn net.Conn) string {
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return addr.IP.String()
	}
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		return host
	}
	return conn.RemoteAddr().String()
}

// Stop closes the listening socket and joins the accept loop. Calling it
// twice is a no-op.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.ln.Close()
	})
	l.wg.Wait()
}
