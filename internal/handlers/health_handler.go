package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/common"
)

// HealthHandler handles HTTP requests for service health
type HealthHandler struct {
	dispatcher Dispatcher
	logger     arbor.ILogger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(dispatcher Dispatcher, logger arbor.ILogger) *HealthHandler {
	return &HealthHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// GetHealthHandler handles GET /api/health
func (h *HealthHandler) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	health := map[string]interface{}{
		"status":       "ok",
		"version":      common.GetVersion(),
		"activeDirect": h.dispatcher.ActiveDirect(),
	}

	depth, err := h.dispatcher.QueueDepth(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Queue depth check failed")
		health["status"] = "degraded"
	} else {
		health["queueDepth"] = depth
	}

	WriteJSON(w, http.StatusOK, health)
}
