package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/reelscan/internal/models"
)

// VideoHandler handles HTTP requests for video analysis
type VideoHandler struct {
	dispatcher Dispatcher
	validate   *validator.Validate
	logger     arbor.ILogger
}

// AnalyzeRequest is the POST /api/videos/analyze body.
type AnalyzeRequest struct {
	URL      string `json:"url" validate:"required,min=10"`
	Language string `json:"language,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// NewVideoHandler creates a new VideoHandler
func NewVideoHandler(dispatcher Dispatcher, logger arbor.ILogger) *VideoHandler {
	return &VideoHandler{
		dispatcher: dispatcher,
		validate:   validator.New(),
		logger:     logger,
	}
}

// AnalyzeHandler handles POST /api/videos/analyze
func (h *VideoHandler) AnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result, err := h.dispatcher.Submit(r.Context(), req.URL, req.Language)
	if err != nil {
		h.writeSubmitError(w, req.URL, err)
		return
	}

	if result.Queued() {
		WriteJSON(w, http.StatusAccepted, result)
		return
	}
	WriteJSON(w, http.StatusOK, result.Payload)
}

// StatusHandler handles GET /api/videos/status/{jobId}
func (h *VideoHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/videos/status/")
	if jobID == "" || strings.Contains(jobID, "/") {
		WriteError(w, http.StatusBadRequest, "job id is required")
		return
	}

	view, err := h.dispatcher.JobStatus(r.Context(), jobID)
	if err != nil {
		h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Status lookup failed")
		WriteError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	if view.Status == models.StatusNotFound {
		WriteJSON(w, http.StatusNotFound, view)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// writeSubmitError maps processing errors to HTTP statuses: caller
// mistakes get 4xx, everything else 500.
func (h *VideoHandler) writeSubmitError(w http.ResponseWriter, url string, err error) {
	var procErr *models.ProcessingError
	if errors.As(err, &procErr) {
		switch procErr.Kind {
		case models.ErrKindValidation:
			WriteError(w, http.StatusBadRequest, procErr.Message)
			return
		case models.ErrKindUnsupportedPlatform:
			WriteError(w, http.StatusUnprocessableEntity, procErr.Message)
			return
		}
	}

	h.logger.Error().Err(err).Str("url", url).Msg("Submission failed")
	WriteError(w, http.StatusInternalServerError, "submission failed")
}
