package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"forumd/internal/capability"
	ferr "forumd/internal/errors"
	"forumd/internal/metrics"
	"forumd/internal/transport"
	"forumd/util"
)

// Accept back-off bounds for transient failures such as EMFILE.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ListenMode accepts session streams from one listener and runs the
// handler on each in its own goroutine.
type ListenMode struct {
	Listener transport.Listener
	Handler  capability.Capability

	// Limit caps concurrently served connections and may be shared
	// between listeners.  When nil, MaxConnections sizes a private
	// one; 0 means unlimited.
	Limit          *semaphore.Weighted
	MaxConnections int
	// BusyMessage is written to connections turned away at the cap.
	BusyMessage string

	Metrics *metrics.Collector
	Logger  *util.Logger
}

func (m *ListenMode) logger() *util.Logger {
	if m.Logger == nil {
		return util.NewLogger(0)
	}
	return m.Logger
}

// Run accepts until ctx is cancelled or the listener is closed, then
// waits for the sessions it started.  Live sessions are disconnected
// when ctx ends.
func (m *ListenMode) Run(ctx context.Context) error {
	ln := m.Listener
	log := m.logger()
	addr := ln.Addr().String()
	defer ln.Close()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	limit := m.Limit
	if limit == nil && m.MaxConnections > 0 {
		limit = semaphore.NewWeighted(int64(m.MaxConnections))
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	log.Info("listening on %s", addr)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				log.Verbose("listener %s closed", addr)
				return nil
			}
			delay = nextDelay(delay)
			nerr := ferr.Wrap("accept", addr, err)
			m.Metrics.RecordError(nerr.Error())
			if ferr.IsRetryable(nerr) {
				log.Warn("%v; retrying in %v", nerr, delay)
			} else {
				log.Error("%v; retrying in %v", nerr, delay)
			}
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		delay = 0

		if limit != nil && !limit.TryAcquire(1) {
			m.Metrics.ConnectionRefused()
			log.Warn("connection from %s refused: %v", conn.RemoteAddr(), ferr.ErrServerBusy)
			go m.refuse(conn)
			continue
		}

		log.Verbose("connection from %s (%s)", conn.RemoteAddr(), conn.Transport())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limit != nil {
				defer limit.Release(1)
			}
			m.serveConn(ctx, conn)
		}()
	}
}

// serveConn runs the handler on one connection.  A panic is contained
// to this connection.
func (m *ListenMode) serveConn(ctx context.Context, conn transport.Conn) {
	log := m.logger()
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("session %s panicked: %v", conn.RemoteAddr(), r)
			m.Metrics.RecordError(msg)
			log.Error("%s\n%s", msg, debug.Stack())
		}
	}()

	if err := m.Handler.Handle(ctx, conn); err != nil {
		log.Verbose("session %s: %v", conn.RemoteAddr(), err)
	}
}

func (m *ListenMode) refuse(conn transport.Conn) {
	defer conn.Close()
	if m.BusyMessage != "" {
		conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:errcheck
		conn.Write([]byte(m.BusyMessage))                   //nolint:errcheck
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	if d *= 2; d > maxAcceptDelay {
		return maxAcceptDelay
	}
	return d
}
