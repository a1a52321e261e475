package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/healthmem/internal/domain"
	"github.com/Harshitk-cp/healthmem/internal/service"
)

type ConversationHandler struct {
	svc *service.ConversationService
}

func NewConversationHandler(svc *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type updateConversationRequest struct {
	UserID            string         `json:"user_id"`
	SessionID         string         `json:"session_id"`
	UserMessage       string         `json:"user_message"`
	AssistantResponse string         `json:"assistant_response"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Async             bool           `json:"async,omitempty"`
}

type updateConversationResponse struct {
	Success         bool     `json:"success"`
	TurnID          string   `json:"turn_id,omitempty"`
	Invalidated     int      `json:"invalidated"`
	Recommendations []string `json:"recommendations"`
}

// Update stores a finished exchange. With async set the store happens in the
// background and the handler answers 202 immediately.
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, service.ErrUserIDMissing.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, service.ErrSessionIDMissing.Error())
		return
	}
	if req.UserMessage == "" && req.AssistantResponse == "" {
		writeError(w, http.StatusBadRequest, "user_message or assistant_response is required")
		return
	}

	recs := service.ExtractRecommendations(req.AssistantResponse)
	md := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		md[k] = v
	}
	if len(recs) > 0 {
		md[domain.MetaRecommendations] = recs
	}

	if req.Async {
		// Failures are logged by the service.
		h.svc.UpdateAsync(r.Context(), req.UserID, req.SessionID, req.UserMessage, req.AssistantResponse, md)
		writeJSON(w, http.StatusAccepted, updateConversationResponse{
			Success:         true,
			Recommendations: recs,
		})
		return
	}

	res := h.svc.UpdateConversationContext(r.Context(), req.UserID, req.SessionID, req.UserMessage, req.AssistantResponse, md)
	if !res.Success {
		writeServiceError(w, res.Err, "failed to store conversation")
		return
	}

	writeJSON(w, http.StatusCreated, updateConversationResponse{
		Success:         true,
		TurnID:          res.TurnID.String(),
		Invalidated:     res.Invalidated,
		Recommendations: recs,
	})
}
