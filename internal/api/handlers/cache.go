package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/healthmem/internal/cache"
	"github.com/Harshitk-cp/healthmem/internal/service"
	"github.com/go-chi/chi/v5"
)

type CacheHandler struct {
	cache *cache.Cache
	svc   *service.ContextService
}

func NewCacheHandler(c *cache.Cache, svc *service.ContextService) *CacheHandler {
	return &CacheHandler{cache: c, svc: svc}
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

// InvalidateSession drops cached contexts and search results for one session.
func (h *CacheHandler) InvalidateSession(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	sessionID := chi.URLParam(r, "sessionID")

	n := h.svc.Invalidate(userID, sessionID)
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}
