// Package bridge runs blocking backend work on behalf of a session.
//
// A session goroutine hands [Call] a function; the function runs on a
// one-shot worker goroutine and its single result travels back over a
// channel owned by that call alone.  Calls from different sessions
// share nothing, so one slow backend call stalls only the session that
// made it.
package bridge

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	ferr "forumd/internal/errors"
)

type result[T any] struct {
	val T
	err error
}

// PanicError carries a panic recovered from a worker.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("backend call panicked: %v", e.Value) }

// Call runs fn on a fresh goroutine and waits for its result.
//
// The wait ends at the first of: fn returning, ctx ending, or timeout
// elapsing (timeout <= 0 means no extra limit).  On expiry Call returns
// an error matching [ferr.ErrTimeout] and the context passed to fn is
// cancelled; fn's late result is dropped into the buffered channel so
// the worker can always exit.  A panic in fn becomes a [*PanicError].
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ch := make(chan result[T], 1)
	go func() {
		var r result[T]
		defer func() {
			if p := recover(); p != nil {
				r = result[T]{err: &PanicError{Value: p, Stack: debug.Stack()}}
			}
			ch <- r
		}()
		r.val, r.err = fn(callCtx)
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-callCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w after %v", ferr.ErrTimeout, timeout)
	}
}

// Do is [Call] for functions with no result value.
func Do(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := Call(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
