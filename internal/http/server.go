package httpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Clark-Hu/bookshelf/internal/bookinfo"
	"github.com/Clark-Hu/bookshelf/internal/config"
	"github.com/Clark-Hu/bookshelf/internal/i18n"
	"github.com/Clark-Hu/bookshelf/internal/ledger"
	"github.com/Clark-Hu/bookshelf/internal/repository"
	"github.com/Clark-Hu/bookshelf/internal/store"
)

// Deps are the collaborators a Server needs. Health and BookInfo are optional.
type Deps struct {
	Health     store.HealthChecker
	Repo       *repository.Repository
	Ledger     *ledger.Ledger
	BookInfo   bookinfo.Client
	Translator *i18n.Translator
	Logger     *zap.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg        config.Config
	health     store.HealthChecker
	repo       *repository.Repository
	ledger     *ledger.Ledger
	bookInfo   bookinfo.Client
	translator *i18n.Translator
	logger     *zap.Logger
	router     chi.Router
	httpSrv    *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	bookInfo := deps.BookInfo
	if bookInfo == nil {
		bookInfo = bookinfo.NoopClient{}
	}
	translator := deps.Translator
	if translator == nil {
		translator, _ = i18n.NewTranslator(i18n.Arabic)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:        cfg,
		health:     deps.Health,
		repo:       deps.Repo,
		ledger:     deps.Ledger,
		bookInfo:   bookInfo,
		translator: translator,
		logger:     logger,
		router:     r,
	}
	s.registerRoutes()
	return s
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/stats", s.requireAdmin(s.handleStats))
	s.router.Route("/books", func(r chi.Router) {
		r.Get("/", s.handleListBooks)
		r.Post("/", s.requireAdmin(s.handleCreateBook))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetBook)
			r.Put("/", s.requireAdmin(s.handleUpdateBook))
			r.Delete("/", s.requireAdmin(s.handleDeleteBook))
			r.Get("/rating", s.handleGetRating)
			r.Post("/ratings", s.handleSubmitRating)
			r.Get("/ratings", s.handleListRatings)
			r.Get("/progress", s.handleGetProgress)
			r.Put("/progress", s.handleSaveProgress)
		})
	})
}

// Start boots the HTTP server and blocks until ctx ends or the listener fails.
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
		s.logger.Info("listening", zap.String("addr", s.httpSrv.Addr))
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

	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
	}
	resp := healthResponse{Status: "ok"}
	if reporter, ok := s.health.(poolReporter); ok {
		stats := reporter.Stats()
		resp.Pool = &stats
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type poolReporter interface {
	Stats() store.PoolStats
}

type healthResponse struct {
	Status string           `json:"status"`
	Pool   *store.PoolStats `json:"pool,omitempty"`
}

// requireAdmin guards catalog writes with the static admin token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.verifyBearer(r.Header.Get("Authorization")) {
			s.respondUnauthorized(w, r)
			return
		}
		next(w, r)
	}
}

func (s *Server) verifyBearer(header string) bool {
	if header == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) == 1
}
