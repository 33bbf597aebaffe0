// Package session holds the per-connection state of the forum
// protocol: who is logged in, whether the peer is in the middle of a
// multi-line post, and what the last listing showed.
//
// A Session belongs to exactly one connection goroutine and is never
// shared, so it needs no locking.
package session

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"forumd/internal/linechan"
	"forumd/util"
)

// Terminator ends a multi-line capture when read on a line by itself.
const Terminator = "."

// Mode is the input mode of a verified session.
type Mode int

const (
	// ModeCommand reads one command per line.
	ModeCommand Mode = iota
	// ModeCapture collects body lines until [Terminator].
	ModeCapture
)

func (m Mode) String() string {
	if m == ModeCapture {
		return "capture"
	}
	return "command"
}

// TargetKind says what a finished capture will create.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetThread
	TargetReply
)

// Target is the destination of a capture in progress.
type Target struct {
	Kind     TargetKind
	Title    string // TargetThread
	ThreadID string // TargetReply
}

// Listed is one entry of the last thread listing shown to the peer.
type Listed struct {
	ID    string
	Title string
}

var (
	ErrNotAuthenticated = errors.New("handshake not passed")
	ErrAlreadyLoggedIn  = errors.New("already logged in")
	ErrEmptyUsername    = errors.New("username is empty")
	ErrNotCapturing     = errors.New("no capture in progress")
	ErrCapturing        = errors.New("capture already in progress")
)

// Session is the state of one connection.
type Session struct {
	ID        string
	Conn      net.Conn
	Line      linechan.Channel
	Logger    *util.Logger
	StartedAt time.Time

	authenticated bool
	user          string
	mode          Mode
	target        Target
	pending       []string
	listing       []Listed
}

// New creates a Session for conn that speaks over line.  The logger is
// tagged with the session id and peer address.
func New(conn net.Conn, line linechan.Channel, logger *util.Logger) *Session {
	id := uuid.NewString()
	remote := "unknown"
	if conn != nil && conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}
	return &Session{
		ID:        id,
		Conn:      conn,
		Line:      line,
		Logger:    logger.With("session", id[:8]).With("remote", remote),
		StartedAt: time.Now(),
	}
}

// Admit records that the peer passed the greeting check.
func (s *Session) Admit() { s.authenticated = true }

// Authenticated reports whether the greeting check was passed.
func (s *Session) Authenticated() bool { return s.authenticated }

// LoggedIn reports whether a user is bound.
func (s *Session) LoggedIn() bool { return s.user != "" }

// User returns the bound username or "".
func (s *Session) User() string { return s.user }

// Login binds username.  It fails before the greeting check has been
// passed, when a user is already bound, or when the name is blank; the
// name is stored trimmed.
func (s *Session) Login(username string) error {
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	if s.user != "" {
		return ErrAlreadyLoggedIn
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrEmptyUsername
	}
	s.user = username
	return nil
}

// Mode returns the current input mode.
func (s *Session) Mode() Mode { return s.mode }

// Target returns the destination of the capture in progress.
func (s *Session) Target() Target { return s.target }

// BeginCapture switches to capture mode with an empty buffer.
func (s *Session) BeginCapture(t Target) error {
	if s.mode == ModeCapture {
		return ErrCapturing
	}
	s.mode = ModeCapture
	s.target = t
	s.pending = s.pending[:0]
	return nil
}

// Capture feeds one line to the capture in progress.  It returns true
// when line is the terminator; the terminator itself is not kept.
// Every other line, blank or not, is kept verbatim.
func (s *Session) Capture(line string) (done bool, err error) {
	if s.mode != ModeCapture {
		return false, ErrNotCapturing
	}
	if line == Terminator {
		return true, nil
	}
	s.pending = append(s.pending, line)
	return false, nil
}

// Finish leaves capture mode and returns the target and the captured
// lines joined with "\n".  The buffer is cleared.
func (s *Session) Finish() (Target, string) {
	t, content := s.target, strings.Join(s.pending, "\n")
	s.reset()
	return t, content
}

// Abort leaves capture mode and discards the buffer.
func (s *Session) Abort() { s.reset() }

func (s *Session) reset() {
	s.mode = ModeCommand
	s.target = Target{}
	s.pending = nil
}

// Pending returns the number of captured lines so far.
func (s *Session) Pending() int { return len(s.pending) }

// SetListing remembers the entries of the latest listing.
func (s *Session) SetListing(l []Listed) { s.listing = l }

// Listed returns the entry shown as number n (1-based) in the latest
// listing.
func (s *Session) Listed(n int) (Listed, bool) {
	if n < 1 || n > len(s.listing) {
		return Listed{}, false
	}
	return s.listing[n-1], true
}
