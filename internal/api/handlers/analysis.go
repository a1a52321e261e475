package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/service"
)

type AnalysisHandler struct {
	recorder *service.AnalysisRecorder
}

func NewAnalysisHandler(recorder *service.AnalysisRecorder) *AnalysisHandler {
	return &AnalysisHandler{recorder: recorder}
}

type recordAnalysisRequest struct {
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	ID              string    `json:"id,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
	Severity        string    `json:"severity"`
	Findings        []string  `json:"findings"`
	Recommendations []string  `json:"recommendations,omitempty"`
}

func (h *AnalysisHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordAnalysisRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := h.recorder.Record(r.Context(), req.UserID, req.SessionID, domain.AnalysisSummary{
		ID:              req.ID,
		Timestamp:       req.Timestamp,
		Severity:        domain.Severity(req.Severity),
		Findings:        req.Findings,
		Recommendations: req.Recommendations,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidSeverity) || errors.Is(err, service.ErrFindingsEmpty) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, err, "failed to store analysis")
		return
	}

	writeJSON(w, http.StatusCreated, a)
}
