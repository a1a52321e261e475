package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/service"
)

type ContextHandler struct {
	svc *service.ContextService
}

func NewContextHandler(svc *service.ContextService) *ContextHandler {
	return &ContextHandler{svc: svc}
}

// Include flags are pointers so an omitted flag keeps its default of true.
type getContextRequest struct {
	UserID             string `json:"user_id"`
	SessionID          string `json:"session_id"`
	Query              string `json:"query"`
	IncludeHistory     *bool  `json:"include_history,omitempty"`
	IncludePreferences *bool  `json:"include_preferences,omitempty"`
	IncludeGoals       *bool  `json:"include_goals,omitempty"`
	MaxContextLength   int    `json:"max_context_length,omitempty"`
	HistoryLimit       int    `json:"history_limit,omitempty"`
}

func (req getContextRequest) options() domain.ContextOptions {
	opts := domain.DefaultContextOptions()
	if req.IncludeHistory != nil {
		opts.IncludeHistory = *req.IncludeHistory
	}
	if req.IncludePreferences != nil {
		opts.IncludePreferences = *req.IncludePreferences
	}
	if req.IncludeGoals != nil {
		opts.IncludeGoals = *req.IncludeGoals
	}
	// Zero leaves the service default in place.
	opts.MaxContextLength = req.MaxContextLength
	if req.HistoryLimit > 0 {
		opts.HistoryLimit = req.HistoryLimit
	}
	return opts
}

// Get assembles the personalization context. Degraded providers still
// produce a 200; the affected sources are listed in degraded_sources.
func (h *ContextHandler) Get(w http.ResponseWriter, r *http.Request) {
	var req getContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxContextLength < 0 || req.HistoryLimit < 0 {
		writeError(w, http.StatusBadRequest, "max_context_length and history_limit must not be negative")
		return
	}

	hc, err := h.svc.GetIntelligentContext(r.Context(), req.UserID, req.SessionID, req.Query, req.options())
	if err != nil {
		writeServiceError(w, err, "failed to build context")
		return
	}

	writeJSON(w, http.StatusOK, hc)
}
