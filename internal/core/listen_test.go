package core

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"forumd/internal/capability"
	"forumd/internal/metrics"
	"forumd/internal/transport"
	"forumd/util"
)

// echoLine answers one line and returns.
var echoLine = capability.Func(func(_ context.Context, conn transport.Conn) error {
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	_, err = conn.Write([]byte("echo " + line))
	return err
})

func startListen(t *testing.T, mode *ListenMode) (addr string, done <-chan error, cancel context.CancelFunc) {
	t.Helper()
	ln, err := transport.ListenTCP(context.Background(), "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	mode.Listener = ln
	if mode.Logger == nil {
		mode.Logger = util.NewLogger(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- mode.Run(ctx) }()
	t.Cleanup(cancel)
	return ln.Addr().String(), errc, cancel
}

func roundTrip(t *testing.T, addr, msg string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	conn.Write([]byte(msg))                            //nolint:errcheck
	data, _ := io.ReadAll(conn)
	return string(data)
}

// TestListenMode_Concurrent verifies that many connections are served
// side by side.
func TestListenMode_Concurrent(t *testing.T) {
	m := metrics.New()
	addr, _, _ := startListen(t, &ListenMode{Handler: echoLine, Metrics: m})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := roundTrip(t, addr, "ping\n"); got != "echo ping\n" {
				t.Errorf("got %q", got)
			}
		}()
	}
	wg.Wait()
}

// TestListenMode_Cap verifies that connections over the cap are told
// the server is busy and closed.
func TestListenMode_Cap(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	hold := capability.Func(func(ctx context.Context, conn transport.Conn) error {
		entered <- struct{}{}
		<-release
		return nil
	})

	m := metrics.New()
	addr, _, _ := startListen(t, &ListenMode{
		Handler:        hold,
		MaxConnections: 1,
		BusyMessage:    "busy\r\n",
		Metrics:        m,
	})

	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	<-entered

	if got := roundTrip(t, addr, ""); got != "busy\r\n" {
		t.Errorf("second connection got %q, want busy message", got)
	}
	if m.RefusedConnections() != 1 {
		t.Errorf("refused = %d, want 1", m.RefusedConnections())
	}

	// Once the slot frees up, new connections are served again.
	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatal(err)
		}
		select {
		case <-entered:
			c.Close()
			return
		case <-time.After(50 * time.Millisecond):
			c.Close()
		}
		if time.Now().After(deadline) {
			t.Fatal("slot was never released")
		}
	}
}

// TestListenMode_PanicIsolated verifies that a panicking session does
// not take the listener down.
func TestListenMode_PanicIsolated(t *testing.T) {
	handler := capability.Func(func(ctx context.Context, conn transport.Conn) error {
		line, _ := bufio.NewReader(conn).ReadString('\n')
		if strings.TrimSpace(line) == "boom" {
			panic("boom")
		}
		_, err := conn.Write([]byte("ok\n"))
		return err
	})
	m := metrics.New()
	addr, _, _ := startListen(t, &ListenMode{Handler: handler, Metrics: m})

	if got := roundTrip(t, addr, "boom\n"); got != "" {
		t.Errorf("panicking session wrote %q", got)
	}
	if got := roundTrip(t, addr, "fine\n"); got != "ok\n" {
		t.Errorf("got %q after a panic, want ok", got)
	}
	if m.ErrorCount() != 1 {
		t.Errorf("errors = %d, want 1", m.ErrorCount())
	}
}

// TestListenMode_CancelClosesSessions verifies shutdown: Run returns
// and live sessions are disconnected.
func TestListenMode_CancelClosesSessions(t *testing.T) {
	block := capability.Func(func(ctx context.Context, conn transport.Conn) error {
		_, err := io.Copy(io.Discard, conn)
		return err
	})
	addr, done, cancel := startListen(t, &ListenMode{Handler: block})

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("session should have been closed")
	}
}

// flakyListener fails a few accepts with a transient error and then
// reports itself closed.
type flakyListener struct {
	failures int
	calls    int
}

func (l *flakyListener) Accept() (transport.Conn, error) {
	l.calls++
	if l.calls <= l.failures {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.EMFILE}
	}
	return nil, net.ErrClosed
}
func (l *flakyListener) Close() error   { return nil }
func (l *flakyListener) Addr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

// TestListenMode_AcceptErrorsAreLogged verifies that transient accept
// failures do not end the loop.
func TestListenMode_AcceptErrorsAreLogged(t *testing.T) {
	ln := &flakyListener{failures: 3}
	m := metrics.New()
	mode := &ListenMode{Listener: ln, Handler: echoLine, Metrics: m, Logger: util.NewLogger(0)}

	if err := mode.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ln.calls != 4 {
		t.Errorf("accept calls = %d, want 4", ln.calls)
	}
	if m.ErrorCount() != 3 {
		t.Errorf("errors = %d, want 3", m.ErrorCount())
	}
}

func TestNextDelay(t *testing.T) {
	d := time.Duration(0)
	var seen []time.Duration
	for i := 0; i < 10; i++ {
		d = nextDelay(d)
		seen = append(seen, d)
	}
	if seen[0] != minAcceptDelay || seen[1] != 2*minAcceptDelay {
		t.Errorf("delays start %v", seen[:2])
	}
	if seen[len(seen)-1] != maxAcceptDelay {
		t.Errorf("delay should cap at %v, got %v", maxAcceptDelay, seen[len(seen)-1])
	}
}
