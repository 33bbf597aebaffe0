// Package api exposes the forum over HTTP/JSON.  It is both the
// public API of a forumd instance and the remote backend that other
// forumd session servers reach through gateway.Client.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forumd/internal/capability"
	"forumd/internal/metrics"
	"forumd/internal/retry"
	"forumd/internal/store"
	"forumd/util"
)

// Server is the HTTP front of a store.
type Server struct {
	store    *store.Store
	metrics  *metrics.Collector
	logger   *util.Logger
	registry *prometheus.Registry
	router   *chi.Mux
	httpSrv  *http.Server

	sessions capability.Capability
	console  Commander
	breaker  *retry.Breaker
}

// New builds the router.  m may be nil, in which case /metrics only
// reports process and Go runtime metrics.
func New(s *store.Store, m *metrics.Collector, logger *util.Logger) *Server {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if m != nil {
		reg.MustRegister(m)
	}

	srv := &Server{
		store:    s,
		metrics:  m,
		logger:   logger,
		registry: reg,
		router:   chi.NewRouter(),
	}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Get("/stats", s.stats)

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.listThreads)
		r.Post("/", s.createThread)
		r.Get("/{id}", s.getThread)
		r.Get("/{id}/comments", s.listComments)
	})
	r.Post("/comments", s.createComment)

	r.Get("/categories", s.listCategories)
	r.Post("/categories", s.createCategory)

	r.Put("/users/{username}", s.ensureUser)
	r.Get("/auth/check-username/{username}", s.checkUsername)
	r.Post("/auth/register", s.register)
}

// requestLogger logs one line per request at verbose level.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Verbose("http %s %s %d %dB %v [%s]", r.Method, r.URL.Path,
			ww.Status(), ww.BytesWritten(), time.Since(start).Truncate(time.Microsecond),
			middleware.GetReqID(r.Context()))
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Serve answers requests on ln until ctx is cancelled, then drains
// in-flight requests for up to grace.
func (s *Server) Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("http api on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.httpSrv.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
