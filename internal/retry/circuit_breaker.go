package retry

import (
	"context"
	"fmt"
	"sync"
	"time"

	ferr "forumd/internal/errors"
)

// State is the operational state of a [Breaker].
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota
	// StateOpen rejects calls with [ferr.ErrCircuitOpen].
	StateOpen
	// StateHalfOpen lets trial calls through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a [Breaker].
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the
	// circuit (default 5).
	MaxFailures int
	// ResetTimeout is how long the circuit stays open before a trial call is
	// allowed (default 30s).
	ResetTimeout time.Duration
	// HalfOpenMax is the number of consecutive trial successes needed
	// to close the circuit again (default 2).
	HalfOpenMax int
	// Counts decides whether an error returned by the protected call
	// counts as a failure.  Nil counts every non-nil error.
	Counts func(err error) bool
	// OnStateChange runs under the lock on every transition.
	OnStateChange func(from, to State)
}

// DefaultBreakerConfig returns the settings used for the backend.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxFailures:  5,
		ResetTimeout: 30 * time.Second,
		HalfOpenMax:  2,
	}
}

// Breaker short-circuits calls to a backend that keeps failing, so a
// dead database or API costs a session one fast error instead of one
// full timeout per command.
type Breaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	maxFailures   int
	resetTimeout  time.Duration
	halfOpenMax   int
	openedAt      time.Time
	counts        func(error) bool
	onStateChange func(from, to State)
	now           func() time.Time
}

// NewBreaker creates a breaker.  A nil cfg uses [DefaultBreakerConfig].
func NewBreaker(cfg *BreakerConfig) *Breaker {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	b := &Breaker{
		state:         StateClosed,
		maxFailures:   cfg.MaxFailures,
		resetTimeout:  cfg.ResetTimeout,
		halfOpenMax:   cfg.HalfOpenMax,
		counts:        cfg.Counts,
		onStateChange: cfg.OnStateChange,
		now:           time.Now,
	}
	if b.maxFailures <= 0 {
		b.maxFailures = 5
	}
	if b.resetTimeout <= 0 {
		b.resetTimeout = 30 * time.Second
	}
	if b.halfOpenMax <= 0 {
		b.halfOpenMax = 2
	}
	if b.counts == nil {
		b.counts = func(err error) bool { return err != nil }
	}
	return b
}

// Do runs fn unless the circuit is open.  A rejected call returns an
// error wrapping [ferr.ErrCircuitOpen] without invoking fn.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	b.transition(StateClosed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	elapsed := b.now().Sub(b.openedAt)
	if elapsed >= b.resetTimeout {
		b.successes = 0
		b.transition(StateHalfOpen)
		return nil
	}
	return fmt.Errorf("%w: %d consecutive failures, retry in %v",
		ferr.ErrCircuitOpen, b.failures, (b.resetTimeout - elapsed).Truncate(time.Second))
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.counts(err) {
		b.failures++
		b.successes = 0
		if b.state == StateHalfOpen || b.failures >= b.maxFailures {
			b.openedAt = b.now()
			b.transition(StateOpen)
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.halfOpenMax {
			b.failures = 0
			b.transition(StateClosed)
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
