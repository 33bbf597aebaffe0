// Package capability defines what happens over an established session
// stream.  Each Capability encapsulates a single behaviour: the server
// runs the forum protocol on accepted streams, the connect client
// relays a dialed stream to the local terminal.  Keeping the behaviour
// behind one interface lets listeners and dialers stay ignorant of the
// protocol spoken on top of them.
package capability

import (
	"context"

	"forumd/internal/transport"
)

// Capability handles a single connection according to a specific
// behaviour.
type Capability interface {
	// Handle runs the capability against conn.  It blocks until the
	// exchange is over or the context is cancelled.  Closing conn is
	// the caller's job.
	Handle(ctx context.Context, conn transport.Conn) error
}

// Func adapts a plain function to Capability.
type Func func(ctx context.Context, conn transport.Conn) error

// Handle calls f.
func (f Func) Handle(ctx context.Context, conn transport.Conn) error { return f(ctx, conn) }
