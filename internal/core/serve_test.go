package core

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/crypto/ssh"

	"forumd/config"
	"forumd/internal/api"
	"forumd/internal/metrics"
	"forumd/internal/store"
	"forumd/util"
)

func serveConfig() *config.Config {
	cfg := config.Defaults()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.DatabasePath = store.MemoryPath
	cfg.IdleTimeout = 5 * time.Second
	cfg.BackendTimeout = 2 * time.Second
	return cfg
}

// startServe runs a ServeMode and waits until it is bound.
func startServe(t *testing.T, cfg *config.Config) (Addrs, *metrics.Collector, <-chan error) {
	t.Helper()
	m := metrics.New()
	ready := make(chan Addrs, 1)
	mode := &ServeMode{
		Config:  cfg,
		Metrics: m,
		Logger:  util.NewLogger(0),
		Ready:   func(a Addrs) { ready <- a },
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- mode.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errc:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	select {
	case a := <-ready:
		return a, m, errc
	case err := <-errc:
		t.Fatalf("serve: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}
	return Addrs{}, nil, nil
}

// session sends input on a fresh TCP session and returns the whole
// transcript.
func session(t *testing.T, addr net.Addr, input string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr.String(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	conn.Write([]byte(input))                          //nolint:errcheck
	out, _ := io.ReadAll(conn)
	return string(out)
}

// TestServeMode_SeededForum walks the core scenario against the real
// store: verify, list, login, post, and see the post in the next list.
func TestServeMode_SeededForum(t *testing.T) {
	cfg := serveConfig()
	cfg.Seed = true
	addrs, m, _ := startServe(t, cfg)

	out := session(t, addrs.Session, "arch\nlist\nquit\n")
	if !strings.Contains(out, "Recent threads:\r\n[1] Arch vs other distros\r\n") {
		t.Fatalf("unexpected listing:\n%s", out)
	}
	if strings.Count(out, "\r\n[") != 5 {
		t.Errorf("want 5 seeded threads:\n%s", out)
	}

	out = session(t, addrs.Session, "linux\nlogin\nalice\nx\npost Hello\nline one\nline two\n.\nlist\nread 1\nquit\n")
	for _, want := range []string{
		"Login successful!\r\n",
		"Thread 'Hello' created!\r\n",
		"[1] Hello\r\n",
		"== Hello ==\r\nby alice",
		"line one\r\nline two\r\n",
		"Goodbye!\r\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript lacks %q:\n%s", want, out)
		}
	}

	if got := m.TotalSessions(); got != 2 {
		t.Errorf("sessions = %d, want 2", got)
	}
	if m.BackendErrors() != 0 {
		t.Errorf("backend errors = %d", m.BackendErrors())
	}
}

// TestServeMode_API verifies the HTTP API shares the session server's
// database.
func TestServeMode_API(t *testing.T) {
	cfg := serveConfig()
	cfg.APIListenAddr = "127.0.0.1:0"
	addrs, _, _ := startServe(t, cfg)

	session(t, addrs.Session, "arch\nlogin\nbob\nx\npost From TCP\nbody\n.\nquit\n")

	resp, err := http.Get("http://" + addrs.API.String() + "/threads")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rows []store.ThreadRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Title != "From TCP" || rows[0].Author != "bob" {
		t.Errorf("api rows = %+v", rows)
	}
}

// TestServeMode_BrowserFrontEnds runs a full session over /ws and a
// command through the browser terminal, both on the shared database.
func TestServeMode_BrowserFrontEnds(t *testing.T) {
	cfg := serveConfig()
	cfg.APIListenAddr = "127.0.0.1:0"
	addrs, m, _ := startServe(t, cfg)
	base := "http://" + addrs.API.String()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws://"+addrs.API.String()+"/ws", nil)
	if err != nil {
		t.Fatalf("ws dial: %v", err)
	}
	defer ws.CloseNow() //nolint:errcheck

	var seen strings.Builder
	until := func(marker string) {
		t.Helper()
		for !strings.Contains(seen.String(), marker) {
			_, msg, err := ws.Read(ctx)
			if err != nil {
				t.Fatalf("waiting for %q: %v\n%s", marker, err, seen.String())
			}
			seen.Write(msg)
		}
	}
	send := func(text string) {
		t.Helper()
		if err := ws.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
			t.Fatal(err)
		}
	}

	until("verification required")
	send("arch")
	until("forum> ")
	send("login")
	until("Username: ")
	send("dave")
	until("Password: ")
	send("x")
	until("Login successful!")
	send("post Over websocket")
	until("End with a line containing only '.'")
	send("typed in a browser")
	send(".")
	until("Thread 'Over websocket' created!")

	resp, err := http.Post(base+"/terminal/cmd", "application/json", strings.NewReader(`{"cmd":"list"}`))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if got := string(body); got != "Recent threads:\n[1] Over websocket" {
		t.Errorf("terminal list = %q", got)
	}

	send("quit")
	until("Goodbye!")

	resp, err = http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"backend":"closed"`) {
		t.Errorf("health = %s", body)
	}
	if m.TotalSessions() != 1 {
		t.Errorf("sessions = %d, want 1", m.TotalSessions())
	}
}

// TestServeMode_RemoteBackend runs sessions against a forumd HTTP API
// instead of a local database.
func TestServeMode_RemoteBackend(t *testing.T) {
	st, err := store.Open(store.MemoryPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	backend := httptest.NewServer(api.New(st, nil, util.NewLogger(0)).Handler())
	defer backend.Close()

	cfg := serveConfig()
	cfg.DatabasePath = ""
	cfg.BackendURL = backend.URL
	addrs, _, _ := startServe(t, cfg)

	out := session(t, addrs.Session, "arch\nlogin\ncarol\nx\npost Remote\nvia http\n.\nlist\nquit\n")
	if !strings.Contains(out, "Thread 'Remote' created!") || !strings.Contains(out, "[1] Remote\r\n") {
		t.Fatalf("transcript:\n%s", out)
	}

	rows, err := st.RecentThreads(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Author != "carol" || rows[0].Content != "via http" {
		t.Errorf("stored rows = %+v", rows)
	}
}

// TestServeMode_SSH drives the protocol through a real SSH shell.
func TestServeMode_SSH(t *testing.T) {
	cfg := serveConfig()
	cfg.SSHListenAddr = "127.0.0.1:0"
	addrs, _, _ := startServe(t, cfg)
	if addrs.SSH == nil {
		t.Fatal("ssh listener not started")
	}

	client, err := ssh.Dial("tcp", addrs.SSH.String(), &ssh.ClientConfig{
		User:            "guest",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec
		Timeout:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("ssh dial: %v", err)
	}
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	stdin, _ := sess.StdinPipe()
	stdout, _ := sess.StdoutPipe()
	if err := sess.RequestPty("xterm", 40, 100, ssh.TerminalModes{}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Shell(); err != nil {
		t.Fatal(err)
	}

	stdin.Write([]byte("arch\rhelp\rquit\r")) //nolint:errcheck

	done := make(chan string, 1)
	go func() {
		out, _ := io.ReadAll(stdout)
		done <- string(out)
	}()
	select {
	case out := <-done:
		for _, want := range []string{"Arch Linux verified!", "Commands:", "Goodbye!"} {
			if !strings.Contains(out, want) {
				t.Errorf("ssh transcript lacks %q:\n%s", want, out)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ssh session did not end")
	}
}

// TestServeMode_ListenError verifies that a bind failure is returned.
func TestServeMode_ListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := serveConfig()
	cfg.ListenAddr = ln.Addr().String()
	mode := &ServeMode{Config: cfg, Logger: util.NewLogger(0)}
	if err := mode.Run(context.Background()); err == nil {
		t.Fatal("expected a bind error")
	}
}
