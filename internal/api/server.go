package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/rapport/internal/service"
	"github.com/MikeSquared-Agency/rapport/internal/store"
	"github.com/MikeSquared-Agency/rapport/internal/userlock"
)

type Server struct {
	router  *chi.Mux
	port    int
	svc     *service.Service
	info    map[string]string
	checks  map[string]func() bool
	logger  *slog.Logger
	httpSrv *http.Server
}

// Options configures the HTTP API.
type Options struct {
	Port     int
	APIToken string
	Service  *service.Service
	// Info is merged into the status response.
	Info map[string]string
	// Checks report dependency health in the status response as
	// "connected" or "disconnected".
	Checks map[string]func() bool
	Logger *slog.Logger
}

func NewServer(opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   opts.Port,
		svc:    opts.Service,
		info:   opts.Info,
		checks: opts.Checks,
		logger: opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/rapport/status", s.status)

	router.Route("/api/v1/users/{userID}", func(r chi.Router) {
		r.Get("/state", s.getState)
		r.Get("/conflict", s.getConflict)
		r.Get("/events", s.listEvents)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(opts.APIToken))
			r.Post("/interactions", s.postInteraction)
			r.Post("/state/reset", s.resetState)
		})
	})

	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{
		"agent":  "rapport",
		"status": "active",
	}
	for k, v := range s.info {
		body[k] = v
	}
	for name, up := range s.checks {
		if up() {
			body[name] = "connected"
		} else {
			body[name] = "disconnected"
			body["status"] = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, userlock.ErrLockTimeout):
		writeError(w, http.StatusServiceUnavailable, "user is busy, retry later")
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
