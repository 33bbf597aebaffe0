package util

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"time"

	ferr "forumd/internal/errors"
)

// CopyStats reports how many bytes moved in each direction during a
// relay.
type CopyStats struct {
	Sent     int64 // local reader → network
	Received int64 // network → local writer
}

// BidirectionalCopy relays a terminal session: bytes typed on r go to
// the server, bytes from the server go to w.  It returns when the
// server closes the connection, when copying in either direction fails,
// or when ctx is cancelled.
//
// A read of r that is still blocked when the relay ends (a terminal
// nobody types into) is not waited for beyond a short grace; it fails
// on its next write to the closed connection.
func BidirectionalCopy(ctx context.Context, conn net.Conn, r io.Reader, w io.Writer) (CopyStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sent, recvd atomic.Int64
	recvErr := make(chan error, 1)
	sendErr := make(chan error, 1)

	// network → writer
	go func() {
		n, err := io.Copy(w, conn)
		recvd.Store(n)
		recvErr <- err
		cancel()
	}()

	// reader → network
	go func() {
		n, err := io.Copy(conn, r)
		sent.Store(n)
		// Half-close so the server sees EOF, but keep reading until it
		// says goodbye.
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite() //nolint:errcheck
		}
		sendErr <- err
		if err != nil {
			cancel()
		}
	}()

	<-ctx.Done()
	conn.Close() // unblock any pending reads/writes

	errs := []error{<-recvErr}
	select {
	case err := <-sendErr:
		errs = append(errs, err)
	case <-time.After(senderGrace):
	}

	stats := CopyStats{Sent: sent.Load(), Received: recvd.Load()}
	for _, err := range errs {
		if err != nil && !ferr.IsHarmless(err) {
			return stats, err
		}
	}
	return stats, nil
}

const senderGrace = 100 * time.Millisecond
