package retry

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// BenchmarkPolicy_ImmediateSuccess measures overhead when the first
// attempt succeeds (the common case).
func BenchmarkPolicy_ImmediateSuccess(b *testing.B) {
	p := DefaultPolicy()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Do(ctx, func() error { return nil }, nil) //nolint:errcheck
	}
}

// BenchmarkPolicy_PermanentError measures early-exit overhead.
func BenchmarkPolicy_PermanentError(b *testing.B) {
	p := DefaultPolicy()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Do(ctx, func() error { return Permanent(fmt.Errorf("fatal")) }, nil) //nolint:errcheck
	}
}

// BenchmarkBreaker_ClosedPath benchmarks the fast path.
func BenchmarkBreaker_ClosedPath(b *testing.B) {
	cb := NewBreaker(DefaultBreakerConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Do(ctx, func(context.Context) error { return nil }) //nolint:errcheck
	}
}

// BenchmarkBreaker_OpenPath benchmarks rejection when open.
func BenchmarkBreaker_OpenPath(b *testing.B) {
	cb := NewBreaker(&BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	ctx := context.Background()
	cb.Do(ctx, func(context.Context) error { return fmt.Errorf("fail") }) //nolint:errcheck

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Do(ctx, func(context.Context) error { return nil }) //nolint:errcheck
	}
}
