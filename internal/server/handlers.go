package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shiftwise/shiftwise/pkg/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("store unreachable: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := s.store.ListDeployments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if deployments == nil {
		deployments = []types.DeploymentConfig{}
	}
	writeJSON(w, http.StatusOK, deployments)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	cfg, err := s.store.GetDeployment(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if cfg == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("deployment %q not found", name))
		return
	}

	state, err := s.store.GetState(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	history, err := s.store.ListHistory(r.Context(), name, defaultHistoryListSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	report := types.StatusReport{
		Deployment: name,
		State:      state,
		History:    history,
	}
	if state != nil {
		report.LastError = state.LastError
	}
	writeJSON(w, http.StatusOK, report)
}

// handleCommand enqueues a start or abort for the controller to pick up at
// its next cycle boundary. The API never mutates weights directly.
func (s *Server) handleCommand(verb types.CommandVerb) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.commands == nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Errorf("no command queue configured"))
			return
		}
		name := chi.URLParam(r, "name")

		cfg, err := s.store.GetDeployment(r.Context(), name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if cfg == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("deployment %q not found", name))
			return
		}

		cmd := types.Command{
			Verb:         verb,
			DeploymentID: name,
			RequestedBy:  r.Header.Get("X-Requested-By"),
			RequestedAt:  time.Now().UTC(),
		}
		if err := s.commands.Send(r.Context(), cmd); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("enqueueing %s: %w", verb, err))
			return
		}

		s.logger.Info("command accepted", "deployment", name, "verb", verb)
		writeJSON(w, http.StatusAccepted, map[string]string{
			"deployment": name,
			"command":    string(verb),
			"status":     "queued",
		})
	}
}
