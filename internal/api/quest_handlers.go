package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/onesmallpr/questboard/internal/catalog"
	"github.com/onesmallpr/questboard/internal/generator"
	"github.com/onesmallpr/questboard/internal/models"
)

// Accept messages returned to the trial UI
const (
	acceptIncompleteMessage = "You must complete the trial first!"
	acceptSuccessMessage    = "Quest Accepted! The scroll has been added to your inventory."
)

// formatRefreshedAt renders lastRefreshedAt; a catalog never committed reports the epoch
func formatRefreshedAt(t time.Time) string {
	if t.IsZero() {
		t = time.Unix(0, 0)
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *Server) handleListQuests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := models.QuestFilters{
		Rank:    models.Rank(strings.ToUpper(q.Get("rank"))),
		Element: q.Get("element"),
		Label:   q.Get("label"),
	}

	if filters.Rank != "" && !filters.Rank.IsValid() {
		respondError(w, http.StatusBadRequest, "validation_error", "rank must be one of E, D, C, B")
		return
	}

	listing := s.catalog.List(r.Context())
	entries := catalog.Filter(listing.Quests, filters)
	if entries == nil {
		entries = []models.Quest{}
	}

	respondJSON(w, http.StatusOK, models.ListResponse{
		Entries:         entries,
		Total:           len(entries),
		LastRefreshedAt: formatRefreshedAt(listing.LastRefreshedAt),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.catalog.Refresh(r.Context())
	if err != nil {
		slog.Warn("manual refresh did not replace the catalog", "error", err, "count", res.Count)
	}

	respondJSON(w, http.StatusOK, models.RefreshResponse{
		Refreshed: res.Refreshed,
		Count:     res.Count,
	})
}

func (s *Server) handleGetQuest(w http.ResponseWriter, r *http.Request) {
	quest, ok := s.lookupQuest(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, quest)
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	quest, ok := s.lookupQuest(w, r)
	if !ok {
		return
	}

	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, models.AssessmentResponse{
		Questions: s.generator.Quiz(r.Context(), quest, req.SkillLevel),
	})
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	quest, ok := s.lookupQuest(w, r)
	if !ok {
		return
	}

	req, ok := decodeGenerateRequest(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, s.generator.Protocol(r.Context(), quest, req.SkillLevel))
}

func (s *Server) handleProtocolDownload(w http.ResponseWriter, r *http.Request) {
	quest, ok := s.lookupQuest(w, r)
	if !ok {
		return
	}

	protocol := s.generator.Protocol(r.Context(), quest, r.URL.Query().Get("skillLevel"))

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="OSP-`+quest.ID+`.md"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, protocol.Content); err != nil {
		slog.Debug("failed to write protocol download", "error", err, "quest_id", quest.ID)
	}
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	quest, ok := s.lookupQuest(w, r)
	if !ok {
		return
	}

	var req models.AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if len(req.Answers) < generator.QuizLength {
		respondJSON(w, http.StatusOK, models.AcceptResponse{
			Success: false,
			Message: acceptIncompleteMessage,
		})
		return
	}

	slog.Info("quest accepted", "quest_id", quest.ID, "answers", len(req.Answers))

	respondJSON(w, http.StatusOK, models.AcceptResponse{
		Success:     true,
		Message:     acceptSuccessMessage,
		ProtocolURL: generator.DownloadPath(quest.ID),
	})
}

// lookupQuest resolves the {id} parameter, writing a 404 when it is unknown
func (s *Server) lookupQuest(w http.ResponseWriter, r *http.Request) (*models.Quest, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "quest id is required")
		return nil, false
	}

	quest, err := s.catalog.Get(id)
	if err != nil {
		if errors.Is(err, catalog.ErrQuestNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "quest not found")
			return nil, false
		}
		slog.Error("failed to get quest", "error", err, "id", id)
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to get quest")
		return nil, false
	}

	return quest, true
}

// decodeGenerateRequest reads an optional {skillLevel} body
func decodeGenerateRequest(w http.ResponseWriter, r *http.Request) (models.GenerateRequest, bool) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return req, false
	}
	return req, true
}
