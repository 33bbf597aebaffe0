package core

import (
	"context"
	"fmt"
	"io"
	"net"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"forumd/config"
	"forumd/internal/api"
	"forumd/internal/capability"
	ferr "forumd/internal/errors"
	"forumd/internal/forum"
	"forumd/internal/gateway"
	"forumd/internal/metrics"
	"forumd/internal/store"
	"forumd/internal/transport"
	"forumd/util"
)

// Addrs are the addresses a running server is bound to.  SSH and API
// are nil when those listeners are off.
type Addrs struct {
	Session net.Addr
	SSH     net.Addr
	API     net.Addr
}

// ServeMode runs the session server: the plain TCP listener, the
// optional SSH listener and the optional HTTP API, all over one
// backend.  The first listener to fail stops the others.
type ServeMode struct {
	Config  *config.Config
	Metrics *metrics.Collector
	Logger  *util.Logger

	// Ready, when set, is called once every listener is bound.
	Ready func(Addrs)
}

// Run serves until ctx is cancelled.
func (m *ServeMode) Run(ctx context.Context) error {
	cfg, log := m.Config, m.Logger

	backend, st, err := m.openBackend(ctx)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	guarded := gateway.NewGuarded(backend, gateway.GuardOptions{
		Timeout: cfg.BackendTimeout,
		Metrics: m.Metrics,
		Logger:  log.With("component", "gateway"),
	})
	shell := &forum.Shell{
		Gateway:     guarded,
		Verify:      buildVerifier(cfg),
		ListLimit:   cfg.ListLimit,
		IdleTimeout: cfg.IdleTimeout,
		Metrics:     m.Metrics,
		Logger:      log,
	}

	// One cap across transports: a session is a session however it
	// arrived.
	limit := semaphore.NewWeighted(int64(cfg.MaxConnections))
	listen := func(ln transport.Listener) *ListenMode {
		return &ListenMode{
			Listener:    ln,
			Handler:     shell,
			Limit:       limit,
			BusyMessage: forum.MsgBusy,
			Metrics:     m.Metrics,
			Logger:      log,
		}
	}

	var (
		modes []*ListenMode
		addrs Addrs
	)
	closeAll := func() {
		for _, lm := range modes {
			lm.Listener.Close()
		}
	}

	tcpLn, err := transport.ListenTCP(ctx, cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddr, err)
	}
	modes = append(modes, listen(tcpLn))
	addrs.Session = tcpLn.Addr()

	if cfg.SSHListenAddr != "" {
		key, err := transport.LoadOrCreateHostKey(cfg.SSHHostKeyPath)
		if err != nil {
			closeAll()
			return err
		}
		sshLn, err := transport.ListenSSH(ctx, cfg.SSHListenAddr, key, log.With("transport", transport.SSH))
		if err != nil {
			closeAll()
			return fmt.Errorf("ssh listen on %s: %w", cfg.SSHListenAddr, err)
		}
		modes = append(modes, listen(sshLn))
		addrs.SSH = sshLn.Addr()
	}

	var apiLn net.Listener
	if cfg.APIListenAddr != "" {
		var lc net.ListenConfig
		if apiLn, err = lc.Listen(ctx, "tcp", cfg.APIListenAddr); err != nil {
			closeAll()
			return fmt.Errorf("api listen on %s: %w", cfg.APIListenAddr, err)
		}
		addrs.API = apiLn.Addr()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, lm := range modes {
		g.Go(func() error { return lm.Run(gctx) })
	}
	if apiLn != nil {
		srv := api.New(st, m.Metrics, log.With("component", "api"))
		srv.MountSessions(m.capped(shell, limit), &forum.Console{
			Gateway:   guarded,
			ListLimit: cfg.ListLimit,
			Metrics:   m.Metrics,
			Logger:    log.With("component", "console"),
		})
		srv.ReportBreaker(guarded.Breaker())
		g.Go(func() error { return srv.Serve(gctx, apiLn, config.DefaultGracePeriod) })
	}

	if m.Ready != nil {
		m.Ready(addrs)
	}
	err = g.Wait()
	log.Info("server stopped")
	return err
}

// capped admits a session through h only while limit has room, the
// way ListenMode does for accepted connections.
func (m *ServeMode) capped(h capability.Capability, limit *semaphore.Weighted) capability.Capability {
	return capability.Func(func(ctx context.Context, conn transport.Conn) error {
		if !limit.TryAcquire(1) {
			m.Metrics.ConnectionRefused()
			m.Logger.Warn("%s session from %s refused: %v", conn.Transport(), conn.RemoteAddr(), ferr.ErrServerBusy)
			_, err := io.WriteString(conn, forum.MsgBusy)
			return err
		}
		defer limit.Release(1)
		return h.Handle(ctx, conn)
	})
}

// openBackend returns the gateway sessions use.  With a local database
// the store is returned as well, for the API and for closing.
func (m *ServeMode) openBackend(ctx context.Context) (gateway.Gateway, *store.Store, error) {
	cfg, log := m.Config, m.Logger

	if cfg.UsesRemoteBackend() {
		c, err := gateway.NewClient(cfg.BackendURL, cfg.BackendTimeout, log.With("component", "client"))
		if err != nil {
			return nil, nil, err
		}
		log.Info("using remote backend %s", cfg.BackendURL)
		return c, nil, nil
	}

	st, err := store.Open(cfg.DatabasePath, log.With("component", "store"))
	if err != nil {
		return nil, nil, err
	}
	if cfg.Seed {
		stats, err := st.Seed(ctx)
		if err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("seed: %w", err)
		}
		log.Info("seeded %d threads", stats.Threads)
	}
	return gateway.NewLocal(st), st, nil
}

// buildVerifier maps the configured policy to a greeting check.
// Config validation has already rejected unknown policies.
func buildVerifier(cfg *config.Config) forum.Verifier {
	if cfg.VerifyPolicy == config.VerifyAny {
		return forum.AnyVerifier()
	}
	return forum.KeywordVerifier(cfg.Keywords()...)
}
