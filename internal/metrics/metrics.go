// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a forumd process.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.  A
// Collector also implements [prometheus.Collector] and can be
// registered on a Prometheus registry as is.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for the session server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	sessionsRejected atomic.Int64
	connsRefused     atomic.Int64
	commandsTotal    atomic.Int64
	backendCalls     atomic.Int64
	backendErrors    atomic.Int64
	bytesIn          atomic.Int64
	bytesOut         atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// SessionRejected records a session that failed the greeting check.
func (c *Collector) SessionRejected() {
	if c == nil {
		return
	}
	c.sessionsRejected.Add(1)
}

// ConnectionRefused records a connection turned away at the cap.
func (c *Collector) ConnectionRefused() {
	if c == nil {
		return
	}
	c.connsRefused.Add(1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// RejectedSessions returns how many greetings were refused.
func (c *Collector) RejectedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsRejected.Load()
}

// RefusedConnections returns how many connections hit the cap.
func (c *Collector) RefusedConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connsRefused.Load()
}

// ── Protocol metrics ─────────────────────────────────────────────────

// CommandDispatched records one dispatched command line.
func (c *Collector) CommandDispatched() {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
}

// Commands returns the number of dispatched commands.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// BackendCall records a Backend Gateway call and whether it failed.
func (c *Collector) BackendCall(err error) {
	if c == nil {
		return
	}
	c.backendCalls.Add(1)
	if err != nil {
		c.backendErrors.Add(1)
	}
}

// BackendCalls returns the total number of gateway calls.
func (c *Collector) BackendCalls() int64 {
	if c == nil {
		return 0
	}
	return c.backendCalls.Load()
}

// BackendErrors returns the number of failed gateway calls.
func (c *Collector) BackendErrors() int64 {
	if c == nil {
		return 0
	}
	return c.backendErrors.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a session.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a session.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime             string `json:"uptime"`
	SessionsActive     int64  `json:"sessions_active"`
	SessionsTotal      int64  `json:"sessions_total"`
	SessionsRejected   int64  `json:"sessions_rejected"`
	ConnectionsRefused int64  `json:"connections_refused"`
	Commands           int64  `json:"commands_total"`
	BackendCalls       int64  `json:"backend_calls"`
	BackendErrors      int64  `json:"backend_errors"`
	BytesIn            int64  `json:"bytes_in"`
	BytesOut           int64  `json:"bytes_out"`
	ErrorsTotal        int64  `json:"errors_total"`
	LastError          string `json:"last_error,omitempty"`
	LastErrorMessage   string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:             time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:     c.sessionsActive.Load(),
		SessionsTotal:      c.sessionsTotal.Load(),
		SessionsRejected:   c.sessionsRejected.Load(),
		ConnectionsRefused: c.connsRefused.Load(),
		Commands:           c.commandsTotal.Load(),
		BackendCalls:       c.backendCalls.Load(),
		BackendErrors:      c.backendErrors.Load(),
		BytesIn:            c.bytesIn.Load(),
		BytesOut:           c.bytesOut.Load(),
		ErrorsTotal:        c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

