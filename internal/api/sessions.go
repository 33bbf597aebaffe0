package api

import (
	"context"
	_ "embed"
	"io"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"forumd/internal/capability"
	"forumd/internal/retry"
	"forumd/internal/transport"
)

//go:embed terminal.html
var terminalPage []byte

// Commander runs one browser-terminal command and returns its reply.
type Commander interface {
	Exec(ctx context.Context, line string) string
}

// MountSessions adds the interactive front ends: /ws runs a full
// session per websocket through h, and /terminal serves a page whose
// commands are answered one by one by console.
func (s *Server) MountSessions(h capability.Capability, console Commander) {
	s.sessions = h
	s.console = console
	s.router.Get("/ws", s.websocketSession)
	s.router.Get("/terminal", s.terminal)
	s.router.Post("/terminal/cmd", s.terminalCommand)
}

// ReportBreaker includes the session backend's circuit breaker in
// /health.  An open breaker turns the status into "degraded".
func (s *Server) ReportBreaker(b *retry.Breaker) { s.breaker = b }

func (s *Server) websocketSession(w http.ResponseWriter, r *http.Request) {
	// Cross-origin pages may connect, as they may call the JSON API.
	conn, err := transport.AcceptWebSocket(r.Context(), w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.logger.Warn("websocket accept from %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()
	stop := context.AfterFunc(r.Context(), func() { conn.Close() })
	defer stop()

	s.logger.Verbose("websocket session from %s", r.RemoteAddr)
	if err := s.sessions.Handle(r.Context(), conn); err != nil {
		s.logger.Warn("websocket session %s: %v", r.RemoteAddr, err)
	}
}

func (s *Server) terminal(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(terminalPage) //nolint:errcheck
}

func (s *Server) terminalCommand(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Cmd string `json:"cmd"`
	}
	if !decode(w, r, &body) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.console.Exec(r.Context(), strings.TrimSpace(body.Cmd))) //nolint:errcheck
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
