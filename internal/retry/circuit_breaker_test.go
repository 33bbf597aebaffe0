package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	ferr "forumd/internal/errors"
)

var errFail = errors.New("fail")

func fail(context.Context) error { return errFail }
func ok(context.Context) error   { return nil }

// fakeClock lets tests move the breaker past its reset timeout
// without sleeping.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg *BreakerConfig) (*Breaker, *fakeClock) {
	b := NewBreaker(cfg)
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	b.now = clk.now
	return b, clk
}

func TestBreaker_NormalOperation(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())
	if err := b.Do(context.Background(), ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(&BreakerConfig{MaxFailures: 3, ResetTimeout: time.Second, HalfOpenMax: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Do(ctx, fail) //nolint:errcheck
	}
	if b.State() != StateOpen {
		t.Errorf("expected open after 3 failures, got %s", b.State())
	}
	if b.Failures() != 3 {
		t.Errorf("expected 3 failures, got %d", b.Failures())
	}
}

func TestBreaker_RejectsWhenOpen(t *testing.T) {
	b, _ := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	ctx := context.Background()
	b.Do(ctx, fail) //nolint:errcheck

	called := false
	err := b.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ferr.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while the circuit is open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clk := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 2})
	ctx := context.Background()

	b.Do(ctx, fail) //nolint:errcheck
	clk.advance(time.Minute)

	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("expected half-open after first trial, got %s", b.State())
	}
	if err := b.Do(ctx, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after 2 trials, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailure(t *testing.T) {
	b, clk := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, HalfOpenMax: 2})
	ctx := context.Background()

	b.Do(ctx, fail) //nolint:errcheck
	clk.advance(2 * time.Minute)
	b.Do(ctx, fail) //nolint:errcheck

	if b.State() != StateOpen {
		t.Errorf("expected open after failed trial, got %s", b.State())
	}
	if err := b.Do(ctx, ok); !errors.Is(err, ferr.ErrCircuitOpen) {
		t.Errorf("reopened breaker should reject, got %v", err)
	}
}

func TestBreaker_CountsFilter(t *testing.T) {
	usage := errors.New("bad input")
	b, _ := newTestBreaker(&BreakerConfig{
		MaxFailures: 1,
		Counts:      func(err error) bool { return err != nil && !errors.Is(err, usage) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		b.Do(ctx, func(context.Context) error { return usage }) //nolint:errcheck
	}
	if b.State() != StateClosed {
		t.Errorf("ignored errors must not trip the breaker, got %s", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	b.Do(context.Background(), fail) //nolint:errcheck

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
	if b.Failures() != 0 {
		t.Errorf("expected 0 failures after reset, got %d", b.Failures())
	}
}

func TestBreaker_StateChange(t *testing.T) {
	var transitions []string
	b, clk := newTestBreaker(&BreakerConfig{
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		OnStateChange: func(from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s→%s", from, to))
		},
	})
	ctx := context.Background()

	b.Do(ctx, fail) //nolint:errcheck
	clk.advance(time.Second)
	b.Do(ctx, ok) //nolint:errcheck

	want := []string{"closed→open", "open→half-open", "half-open→closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBreaker_NilConfig(t *testing.T) {
	b := NewBreaker(nil)
	if b.maxFailures != 5 {
		t.Errorf("expected default maxFailures=5, got %d", b.maxFailures)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(&BreakerConfig{MaxFailures: 3})
	ctx := context.Background()

	b.Do(ctx, fail) //nolint:errcheck
	b.Do(ctx, fail) //nolint:errcheck
	b.Do(ctx, ok)   //nolint:errcheck

	if b.Failures() != 0 {
		t.Errorf("expected 0 failures after success, got %d", b.Failures())
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}
