// Package linechan turns a session stream into the line-oriented
// channel the forum protocol is spoken over.
//
// Two implementations exist: [Raw] frames lines on a plain byte
// stream (TCP, netcat, telnet), [Terminal] runs an x/term line
// discipline for SSH clients that expect the server to echo and edit.
package linechan

import (
	"fmt"
	"io"
	"time"

	ferr "forumd/internal/errors"
	"forumd/internal/metrics"
	"forumd/internal/transport"
)

// MaxRead is the largest number of bytes consumed by a single read.
// Longer lines are delivered in MaxRead-sized fragments.
const MaxRead = 1024

// Channel is the text-line interface between a session and its peer.
// Any error returned ends the session.
type Channel interface {
	// Write sends text verbatim.
	Write(text string) error
	// Prompt writes prompt and blocks for one line.
	Prompt(prompt string) (string, error)
	// ReadSecret is Prompt without echo where the transport echoes.
	ReadSecret(prompt string) (string, error)
	// ReadLine blocks for one line without a prompt.
	ReadLine() (string, error)
}

// Options tune a Channel.
type Options struct {
	// IdleTimeout, when positive, bounds every wait for input.  An
	// expired wait returns an error matching [ferr.ErrIdleTimeout].
	IdleTimeout time.Duration
	// Metrics receives byte counts.  May be nil.
	Metrics *metrics.Collector
}

// New picks the implementation matching conn's transport.
func New(conn transport.Conn, opts Options) Channel {
	if conn.Transport() == transport.SSH {
		return NewTerminal(conn, opts)
	}
	return NewRaw(conn, opts)
}

type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// stream wraps the peer connection with byte accounting and the idle
// deadline.
type stream struct {
	rw   io.ReadWriter
	dl   deadliner
	idle time.Duration
	m    *metrics.Collector
}

func newStream(rw io.ReadWriter, opts Options) *stream {
	s := &stream{rw: rw, idle: opts.IdleTimeout, m: opts.Metrics}
	if d, ok := rw.(deadliner); ok && opts.IdleTimeout > 0 {
		s.dl = d
	}
	return s
}

func (s *stream) Read(p []byte) (int, error) {
	n, err := s.rw.Read(p)
	s.m.BytesReceived(int64(n))
	return n, err
}

func (s *stream) Write(p []byte) (int, error) {
	n, err := s.rw.Write(p)
	s.m.BytesSent(int64(n))
	return n, err
}

// arm starts the idle clock for the next wait.
func (s *stream) arm() {
	if s.dl != nil {
		s.dl.SetReadDeadline(time.Now().Add(s.idle)) //nolint:errcheck
	}
}

// classify maps a deadline expiry to ErrIdleTimeout.
func (s *stream) classify(err error) error {
	if s.dl != nil && ferr.IsTimeout(err) {
		return fmt.Errorf("%w after %v: %w", ferr.ErrIdleTimeout, s.idle, err)
	}
	return err
}
