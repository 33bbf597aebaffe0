package gateway

import (
	"context"
	"errors"
	"time"

	"forumd/internal/bridge"
	ferr "forumd/internal/errors"
	"forumd/internal/metrics"
	"forumd/internal/retry"
	"forumd/util"
)

// Guarded decorates a Gateway for use by sessions.  Every call runs
// through [bridge.Call] with a deadline, so a hung backend costs a
// session one timeout and never its goroutine.  A shared circuit
// breaker fails calls fast while the backend is down.
type Guarded struct {
	next    Gateway
	timeout time.Duration
	breaker *retry.Breaker
	metrics *metrics.Collector
	logger  *util.Logger
}

// GuardOptions configure [NewGuarded].
type GuardOptions struct {
	Timeout time.Duration       // per call, 0 = none
	Breaker *retry.BreakerConfig // nil = defaults
	Metrics *metrics.Collector
	Logger  *util.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Gateway, opts GuardOptions) *Guarded {
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	cfg := retry.DefaultBreakerConfig()
	if opts.Breaker != nil {
		c := *opts.Breaker
		cfg = &c
	}
	if cfg.Counts == nil {
		cfg.Counts = countsAsOutage
	}
	userHook := cfg.OnStateChange
	cfg.OnStateChange = func(from, to retry.State) {
		logger.Warn("backend circuit %s → %s", from, to)
		if userHook != nil {
			userHook(from, to)
		}
	}
	return &Guarded{
		next:    next,
		timeout: opts.Timeout,
		breaker: retry.NewBreaker(cfg),
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (g *Guarded) Breaker() *retry.Breaker { return g.breaker }

// countsAsOutage separates a sick backend from a bad request.  A
// missing thread or a 4xx answer says nothing about backend health.
func countsAsOutage(err error) bool {
	if err == nil || errors.Is(err, ferr.ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var be *ferr.BackendError
	if errors.As(err, &be) && be.Status >= 400 && be.Status < 500 {
		return false
	}
	return true
}

func guard[T any](g *Guarded, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = bridge.Call(ctx, g.timeout, fn)
		return err
	})
	g.metrics.BackendCall(err)
	if err != nil {
		g.logger.Verbose("backend %s: %v", op, err)
		var be *ferr.BackendError
		if !errors.As(err, &be) {
			err = ferr.WrapBackend(op, err)
		}
	}
	return out, err
}

func (g *Guarded) ListRecentThreads(ctx context.Context, limit int) ([]ThreadSummary, error) {
	return guard(g, ctx, OpListThreads, func(ctx context.Context) ([]ThreadSummary, error) {
		return g.next.ListRecentThreads(ctx, limit)
	})
}

func (g *Guarded) GetThread(ctx context.Context, id string) (*Thread, error) {
	return guard(g, ctx, OpGetThread, func(ctx context.Context) (*Thread, error) {
		return g.next.GetThread(ctx, id)
	})
}

func (g *Guarded) CreateThread(ctx context.Context, title, content, author string) error {
	_, err := guard(g, ctx, OpCreateThread, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.CreateThread(ctx, title, content, author)
	})
	return err
}

func (g *Guarded) CreateComment(ctx context.Context, threadID, content, author string) error {
	_, err := guard(g, ctx, OpCreateComment, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.CreateComment(ctx, threadID, content, author)
	})
	return err
}

func (g *Guarded) ListComments(ctx context.Context, threadID string) ([]Comment, error) {
	return guard(g, ctx, OpListComments, func(ctx context.Context) ([]Comment, error) {
		return g.next.ListComments(ctx, threadID)
	})
}

func (g *Guarded) EnsureUser(ctx context.Context, username string) (string, error) {
	return guard(g, ctx, OpEnsureUser, func(ctx context.Context) (string, error) {
		return g.next.EnsureUser(ctx, username)
	})
}

var _ Gateway = (*Guarded)(nil)
