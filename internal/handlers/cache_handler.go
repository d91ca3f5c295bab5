package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/interfaces"
)

// CacheHandler handles HTTP requests for cache administration
type CacheHandler struct {
	cache       interfaces.CacheStorage
	sampleLimit int
	logger      arbor.ILogger
}

// NewCacheHandler creates a new CacheHandler
func NewCacheHandler(cache interfaces.CacheStorage, sampleLimit int, logger arbor.ILogger) *CacheHandler {
	return &CacheHandler{
		cache:       cache,
		sampleLimit: sampleLimit,
		logger:      logger,
	}
}

// StatsHandler handles GET /api/cache/stats
func (h *CacheHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	stats, err := h.cache.Stats(r.Context(), h.sampleLimit)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Cache stats failed")
		WriteError(w, http.StatusInternalServerError, "cache stats failed")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// InvalidateHandler handles DELETE /api/cache/{fingerprint}
func (h *CacheHandler) InvalidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	fingerprint := strings.TrimPrefix(r.URL.Path, "/api/cache/")
	if fingerprint == "" || strings.Contains(fingerprint, "/") {
		WriteError(w, http.StatusBadRequest, "fingerprint is required")
		return
	}

	invalidated, err := h.cache.Invalidate(r.Context(), fingerprint)
	if err != nil {
		h.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Cache invalidation failed")
		WriteError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"fingerprint": fingerprint,
		"invalidated": invalidated,
	})
}
