package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.registry != nil {
		for name, err := range s.registry.HealthCheckAll(r.Context()) {
			if err != nil {
				slog.Warn("dependency not ready", "dependency", name, "error", err)
				checks[name] = err.Error()
				ready = false
				continue
			}
			checks[name] = "ok"
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// Admin handlers

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusNotFound, "not_configured", "snapshot persistence is not enabled")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	infos, err := s.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list snapshots", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to list snapshots")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": infos,
		"total":     len(infos),
	})
}

func (s *Server) handlePurgeCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotFound, "not_configured", "generation cache is not enabled")
		return
	}

	deleted, err := s.cache.Purge(r.Context(), "questboard:*")
	if err != nil {
		slog.Error("failed to purge generation cache", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to purge cache")
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"deleted": deleted,
	})
}
