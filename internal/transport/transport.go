// Package transport provides the byte streams a session runs over.
// Transports handle how a peer reaches the server (plain TCP or an
// SSH shell channel) independent of the forum protocol spoken on the
// stream, which is the forum package's job.  Plain TCP, SSH shell
// channels and browser websockets all end up as a [Conn].
package transport

import (
	"context"
	"net"
)

// Transport names.
const (
	TCP       = "tcp"
	SSH       = "ssh"
	WebSocket = "ws"
)

// Conn is one accepted session stream.  It behaves like a [net.Conn]:
// read deadlines are honoured on every transport, which is what the
// idle timeout relies on.
type Conn interface {
	net.Conn

	// Transport reports which listener produced the stream.
	Transport() string
}

// Resizer is implemented by streams whose peer reports a terminal
// size (SSH sessions that sent pty-req).  fn is called with the
// initial size and on every window change.
type Resizer interface {
	OnResize(fn func(width, height int))
}

// Listener yields session streams.  Close unblocks a pending Accept,
// which then returns an error wrapping [net.ErrClosed].
type Listener interface {
	Accept() (Conn, error)
	Close() error
	Addr() net.Addr
}

// Dialer opens outbound connections for the connect client.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
