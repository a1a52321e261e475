package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/service"
	"github.com/go-chi/chi/v5"
)

// ProfileHandler replaces stored preferences and goals. Writes drop the
// user's cached contexts so the next read reflects them.
type ProfileHandler struct {
	writer domain.ProfileWriter
	ctxSvc *service.ContextService
}

func NewProfileHandler(writer domain.ProfileWriter, ctxSvc *service.ContextService) *ProfileHandler {
	return &ProfileHandler{writer: writer, ctxSvc: ctxSvc}
}

func (h *ProfileHandler) PutPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var prefs domain.UserPreferences
	if err := decodeJSON(w, r, &prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.writer.SetPreferences(r.Context(), userID, prefs); err != nil {
		writeServiceError(w, err, "failed to store preferences")
		return
	}

	h.ctxSvc.InvalidateUser(userID)
	writeJSON(w, http.StatusOK, prefs)
}

func (h *ProfileHandler) PutGoals(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var goals []domain.HealthGoal
	if err := decodeJSON(w, r, &goals); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, g := range goals {
		if g.ID == "" || g.Description == "" {
			writeError(w, http.StatusBadRequest, "each goal needs an id and a description")
			return
		}
		switch g.Status {
		case domain.GoalActive, domain.GoalAchieved, domain.GoalAbandoned:
		default:
			writeError(w, http.StatusBadRequest, "invalid goal status: "+string(g.Status))
			return
		}
	}
	if goals == nil {
		goals = []domain.HealthGoal{}
	}

	if err := h.writer.SetGoals(r.Context(), userID, goals); err != nil {
		writeServiceError(w, err, "failed to store goals")
		return
	}

	h.ctxSvc.InvalidateUser(userID)
	writeJSON(w, http.StatusOK, goals)
}
