// Package http serves the dashboard, the read-only table API and the
// operational endpoints.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/urban-pulse-etl/internal/dashboard"
	"github.com/couchcryptid/urban-pulse-etl/internal/domain"
)

const defaultRunLimit = 20

// Store is the read side the server needs.
type Store interface {
	dashboard.Source
	Runs(ctx context.Context, limit int) ([]domain.Run, error)
}

// Server exposes the dashboard and health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	store      Store
	view       dashboard.Options
	logger     *slog.Logger
}

// NewServer creates an HTTP server. view controls the dashboard the / and
// /api/dashboard routes build.
func NewServer(addr string, store Store, ready sharedobs.ReadinessChecker, view dashboard.Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  store,
		view:   view,
		logger: logger,
	}

	r.Get("/", s.handlePage)
	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/weather", s.handleWeather)
		r.Get("/sensor", tableHandler(s, store.Sensor))
		r.Get("/social", tableHandler(s, store.Social))
		r.Get("/stress", tableHandler(s, store.Stress))
		r.Get("/runs", s.handleRuns)
	})
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Handle("/metrics", promhttp.Handler())

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	d, err := dashboard.Build(r.Context(), s.store, s.viewFor(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboard.RenderHTML(w, d); err != nil {
		s.logger.Error("render dashboard failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := dashboard.Build(r.Context(), s.store, s.viewFor(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, d)
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Weather(r.Context(), r.URL.Query().Get("city"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	runs, err := s.store.Runs(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, nonNil(runs))
}

func tableHandler[T any](s *Server, read func(context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := read(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, nonNil(rows))
	}
}

// viewFor lets ?city= override the configured dashboard city.
func (s *Server) viewFor(r *http.Request) dashboard.Options {
	view := s.view
	if city := r.URL.Query().Get("city"); city != "" {
		view.City = city
	}
	return view
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "path", r.URL.Path, "error", err, "request_id", middleware.GetReqID(r.Context()))
	sharedobs.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

// nonNil keeps empty tables encoding as [] rather than null.
func nonNil[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
