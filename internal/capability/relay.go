package capability

import (
	"context"
	"io"
	"os"

	"forumd/internal/transport"
	"forumd/util"
)

// Relay copies data bidirectionally between the connection and a local
// terminal: the connect client's behaviour.
type Relay struct {
	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
}

// Handle shuttles bytes until the server hangs up, either side fails,
// or the context is cancelled.
func (r *Relay) Handle(ctx context.Context, conn transport.Conn) error {
	in, out := r.Stdin, r.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	stats, err := util.BidirectionalCopy(ctx, conn, in, out)
	if r.Logger != nil {
		r.Logger.Verbose("relay done: %d bytes sent, %d received", stats.Sent, stats.Received)
	}
	return err
}
