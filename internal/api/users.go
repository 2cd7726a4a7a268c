package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/rapport/internal/service"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
	maxBodyBytes      = 1 << 20
)

// postInteraction handles POST /api/v1/users/{userID}/interactions. The
// path user id wins over any user_id in the body.
func (s *Server) postInteraction(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	req.UserID = chi.URLParam(r, "userID")

	res, err := s.svc.HandleInteraction(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getState handles GET /api/v1/users/{userID}/state
func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.State(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// getConflict handles GET /api/v1/users/{userID}/conflict
func (s *Server) getConflict(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.OpenConflict(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// resetState handles POST /api/v1/users/{userID}/state/reset
func (s *Server) resetState(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := s.svc.Reset(r.Context(), userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": userID, "status": "reset"})
}

// listEvents handles GET /api/v1/users/{userID}/events
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := s.svc.Events(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}
