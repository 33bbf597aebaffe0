package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forumd/internal/api"
	ferr "forumd/internal/errors"
	"forumd/internal/metrics"
	"forumd/internal/retry"
	"forumd/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// exercise runs the same scenario against any Gateway.
func exercise(t *testing.T, g Gateway) {
	ctx := context.Background()

	threads, err := g.ListRecentThreads(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, threads)

	require.NoError(t, g.CreateThread(ctx, "First", "hello", "alice"))
	require.NoError(t, g.CreateThread(ctx, "Second", "world", "bob"))

	threads, err = g.ListRecentThreads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "Second", threads[0].Title)
	assert.Equal(t, "bob", threads[0].Author)

	threads, err = g.ListRecentThreads(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, threads, 1)

	th, err := g.GetThread(ctx, threads[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "world", th.Content)

	require.NoError(t, g.CreateComment(ctx, th.ID, "line one\nline two", "carol"))
	comments, err := g.ListComments(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "carol", comments[0].Author)
	assert.Equal(t, "line one\nline two", comments[0].Content)

	err = g.CreateComment(ctx, "no-such-thread", "x", "carol")
	assert.ErrorIs(t, err, ferr.ErrNotFound)
	assert.ErrorIs(t, err, ferr.ErrBackend)

	_, err = g.GetThread(ctx, "no-such-thread")
	assert.ErrorIs(t, err, ferr.ErrNotFound)

	id1, err := g.EnsureUser(ctx, "dave")
	require.NoError(t, err)
	id2, err := g.EnsureUser(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestLocal(t *testing.T) {
	exercise(t, NewLocal(newStore(t)))
}

func TestClient_AgainstAPI(t *testing.T) {
	srv := httptest.NewServer(api.New(newStore(t), nil, nil).Handler())
	defer srv.Close()

	c, err := NewClient(srv.URL, 2*time.Second, nil)
	require.NoError(t, err)
	exercise(t, c)
}

func TestClient_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8080", "ftp://x", "http://"} {
		_, err := NewClient(u, time.Second, nil)
		assert.Error(t, err, u)
	}
}

func fastRetries() retry.Policy {
	return retry.Policy{InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: 3}
}

func TestClient_RetriesReadsOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":"warming up"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"id":"1","title":"t","author":"a"}]`)) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, nil)
	require.NoError(t, err)
	c.SetRetryPolicy(fastRetries())

	threads, err := c.ListRecentThreads(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, threads, 1)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryWrites(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, nil)
	require.NoError(t, err)
	c.SetRetryPolicy(fastRetries())

	err = c.CreateThread(context.Background(), "t", "c", "a")
	var be *ferr.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusInternalServerError, be.Status)
	assert.Equal(t, OpCreateThread, be.Op)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClient_DoesNotRetry4xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"limit must be between 1 and 100"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, time.Second, nil)
	require.NoError(t, err)
	c.SetRetryPolicy(fastRetries())

	_, err = c.ListRecentThreads(context.Background(), 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit must be between 1 and 100")
	assert.EqualValues(t, 1, calls.Load())
}

// fakeGateway lets tests script failures.
type fakeGateway struct {
	Gateway
	list func(ctx context.Context) ([]ThreadSummary, error)
}

func (f *fakeGateway) ListRecentThreads(ctx context.Context, _ int) ([]ThreadSummary, error) {
	return f.list(ctx)
}

func TestGuarded_Timeout(t *testing.T) {
	m := metrics.New()
	g := NewGuarded(&fakeGateway{list: func(ctx context.Context) ([]ThreadSummary, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, GuardOptions{Timeout: 20 * time.Millisecond, Metrics: m})

	_, err := g.ListRecentThreads(context.Background(), 10)
	assert.ErrorIs(t, err, ferr.ErrTimeout)
	assert.ErrorIs(t, err, ferr.ErrBackend)
	assert.EqualValues(t, 1, m.BackendCalls())
	assert.EqualValues(t, 1, m.BackendErrors())
}

func TestGuarded_RecoversPanic(t *testing.T) {
	g := NewGuarded(&fakeGateway{list: func(context.Context) ([]ThreadSummary, error) {
		panic("driver bug")
	}}, GuardOptions{Timeout: time.Second})

	_, err := g.ListRecentThreads(context.Background(), 10)
	assert.ErrorIs(t, err, ferr.ErrBackend)
	assert.Contains(t, err.Error(), "driver bug")
}

func TestGuarded_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	g := NewGuarded(&fakeGateway{list: func(context.Context) ([]ThreadSummary, error) {
		calls.Add(1)
		return nil, errors.New("database is locked")
	}}, GuardOptions{Breaker: &retry.BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		g.ListRecentThreads(ctx, 10) //nolint:errcheck
	}
	_, err := g.ListRecentThreads(ctx, 10)
	assert.ErrorIs(t, err, ferr.ErrCircuitOpen)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, retry.StateOpen, g.Breaker().State())
}

func TestGuarded_NotFoundDoesNotTrip(t *testing.T) {
	g := NewGuarded(&fakeGateway{list: func(context.Context) ([]ThreadSummary, error) {
		return nil, ferr.WrapBackend(OpListThreads, ferr.ErrNotFound)
	}}, GuardOptions{Breaker: &retry.BreakerConfig{MaxFailures: 1}})

	for i := 0; i < 3; i++ {
		_, err := g.ListRecentThreads(context.Background(), 10)
		assert.ErrorIs(t, err, ferr.ErrNotFound)
	}
	assert.Equal(t, retry.StateClosed, g.Breaker().State())
}

func TestGuarded_PassesThrough(t *testing.T) {
	exercise(t, NewGuarded(NewLocal(newStore(t)), GuardOptions{Timeout: time.Second}))
}
