package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/auth"
	"github.com/Clark-Hu/rating-disputes/internal/config"
	"github.com/Clark-Hu/rating-disputes/internal/dispute"
	"github.com/Clark-Hu/rating-disputes/internal/fanout"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
	"github.com/Clark-Hu/rating-disputes/internal/store"
)

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg      config.Config
	store    *store.Store
	repo     *repository.Repository
	disputes *dispute.Manager
	fanout   *fanout.Fanout
	verifier *auth.Verifier
	logger   *zap.Logger
	router   chi.Router
	httpSrv  *http.Server
	idGen    func() string
}

// New constructs the HTTP server with base middleware and routes.
func New(
	cfg config.Config,
	st *store.Store,
	repo *repository.Repository,
	disputes *dispute.Manager,
	fan *fanout.Fanout,
	verifier *auth.Verifier,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:      cfg,
		store:    st,
		repo:     repo,
		disputes: disputes,
		fanout:   fan,
		verifier: verifier,
		logger:   logger.Named("http"),
		router:   chi.NewRouter(),
		idGen:    newID,
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Post("/ratings", s.handleCreateRating)

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", s.handleCreateDispute)
			r.With(s.requireModerator).Get("/", s.handleListDisputes)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDispute)
				r.With(s.requireModerator).Post("/status", s.handleUpdateDisputeStatus)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.With(s.requireModerator).Post("/", s.handleCreateNotification)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/{id}/read", s.handleMarkRead)
			r.Post("/{id}/disputed", s.handleMarkDisputed)
		})
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.store != nil {
		if err := s.store.HealthCheck(ctx); err != nil {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
