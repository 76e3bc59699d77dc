// Package server exposes the memoriae service as a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"memoriae/internal/memoriae"
)

// Server routes HTTP requests to the service layer.
type Server struct {
	svc    *memoriae.Service
	logger memoriae.Logger
}

// New creates a Server. logger may be nil.
func New(svc *memoriae.Service, logger memoriae.Logger) *Server {
	if logger == nil {
		logger = memoriae.NewNopLogger()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /seeds", s.handleCaptureSeed)
	mux.HandleFunc("GET /seeds", s.handleListSeeds)
	mux.HandleFunc("GET /seeds/{id}", s.handleGetSeed)
	mux.HandleFunc("GET /seeds/{id}/state", s.handleSeedStateAt)
	mux.HandleFunc("GET /seeds/{id}/timeline", s.handleSeedTimeline)
	mux.HandleFunc("POST /seeds/{id}/content", s.handleEditContent)
	mux.HandleFunc("POST /seeds/{id}/tags", s.handleAddTag)
	mux.HandleFunc("DELETE /seeds/{id}/tags/{tagID}", s.handleRemoveTag)
	mux.HandleFunc("PUT /seeds/{id}/category", s.handleSetCategory)
	mux.HandleFunc("DELETE /seeds/{id}/category", s.handleRemoveCategory)
	mux.HandleFunc("POST /seeds/{id}/sprouts", s.handleAttachSprout)
	mux.HandleFunc("GET /seeds/{id}/sprouts", s.handleSeedSprouts)

	mux.HandleFunc("GET /sprouts/{id}", s.handleGetSprout)
	mux.HandleFunc("POST /sprouts/{id}/edit", s.handleEditSprout)
	mux.HandleFunc("POST /sprouts/{id}/dismiss", s.handleDismissSprout)
	mux.HandleFunc("POST /sprouts/{id}/snooze", s.handleSnoozeSprout)

	mux.HandleFunc("POST /tags", s.handleCreateTag)
	mux.HandleFunc("GET /tags", s.handleListTags)
	mux.HandleFunc("GET /tags/{id}", s.handleGetTag)
	mux.HandleFunc("POST /tags/{id}/rename", s.handleRenameTag)
	mux.HandleFunc("POST /tags/{id}/color", s.handleSetTagColor)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Seed handlers

func (s *Server) handleCaptureSeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content      string `json:"content"`
		AutomationID string `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	state, err := s.svc.CaptureSeed(r.Context(), req.Content, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleListSeeds(w http.ResponseWriter, r *http.Request) {
	states, err := s.svc.ListSeeds(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetSeed(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.SeedState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSeedStateAt(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("at")
	if raw == "" {
		s.handleGetSeed(w, r)
		return
	}

	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid at parameter: %v", err))
		return
	}

	state, err := s.svc.SeedStateAt(r.Context(), r.PathValue("id"), at)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSeedTimeline(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.SeedTimeline(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleEditContent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content      string `json:"content"`
		AutomationID string `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	state, err := s.svc.EditSeedContent(r.Context(), r.PathValue("id"), req.Content, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TagID        string `json:"tag_id"`
		AutomationID string `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TagID == "" {
		writeError(w, http.StatusBadRequest, "tag_id is required")
		return
	}

	state, err := s.svc.AddSeedTag(r.Context(), r.PathValue("id"), req.TagID, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.RemoveSeedTag(r.Context(), r.PathValue("id"), r.PathValue("tagID"), r.URL.Query().Get("automation_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CategoryID   string `json:"category_id"`
		CategoryName string `json:"category_name"`
		CategoryPath string `json:"category_path"`
		AutomationID string `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CategoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	category := memoriae.CategoryRef{ID: req.CategoryID, Name: req.CategoryName, Path: req.CategoryPath}
	state, err := s.svc.SetSeedCategory(r.Context(), r.PathValue("id"), category, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRemoveCategory(w http.ResponseWriter, r *http.Request) {
	categoryID := r.URL.Query().Get("category_id")
	if categoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}

	state, err := s.svc.RemoveSeedCategory(r.Context(), r.PathValue("id"), categoryID, r.URL.Query().Get("automation_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Sprout handlers

func (s *Server) handleAttachSprout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Kind         string `json:"kind"`
		Title        string `json:"title"`
		Content      string `json:"content"`
		AutomationID string `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	kind := memoriae.SproutKind(req.Kind)
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown sprout kind: %s", req.Kind))
		return
	}

	state, err := s.svc.AttachSprout(r.Context(), r.PathValue("id"), kind, req.Title, req.Content, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleSeedSprouts(w http.ResponseWriter, r *http.Request) {
	// 404 for unknown seeds rather than an empty list.
	if _, err := s.svc.SeedState(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}

	states, err := s.svc.SeedSprouts(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetSprout(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.SproutState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleEditSprout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title        *string `json:"title"`
		Content      *string `json:"content"`
		AutomationID string  `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Title == nil && req.Content == nil {
		writeError(w, http.StatusBadRequest, "title or content is required")
		return
	}

	state, err := s.svc.EditSprout(r.Context(), r.PathValue("id"), req.Title, req.Content, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleDismissSprout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AutomationID string `json:"automation_id"`
	}
	// Dismissal takes no required fields; an empty body is fine.
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	state, err := s.svc.DismissSprout(r.Context(), r.PathValue("id"), req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSnoozeSprout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Until        time.Time `json:"until"`
		AutomationID string    `json:"automation_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Until.IsZero() {
		writeError(w, http.StatusBadRequest, "until is required")
		return
	}

	state, err := s.svc.SnoozeSprout(r.Context(), r.PathValue("id"), req.Until, req.AutomationID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Tag handlers

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string  `json:"name"`
		Color *string `json:"color"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	state, err := s.svc.CreateTag(r.Context(), req.Name, req.Color)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	states, err := s.svc.ListTags(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetTag(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.TagState(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRenameTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	state, err := s.svc.RenameTag(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSetTagColor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Color *string `json:"color"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	state, err := s.svc.SetTagColor(r.Context(), r.PathValue("id"), req.Color)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Helpers

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP statuses: missing entities
// and unreducible ledgers are 404, everything else is 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, memoriae.ErrSeedNotFound),
		errors.Is(err, memoriae.ErrTagNotFound),
		errors.Is(err, memoriae.ErrSproutNotFound),
		errors.Is(err, memoriae.ErrArchiveNotFound),
		errors.Is(err, memoriae.ErrMissingCreationTransaction):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
