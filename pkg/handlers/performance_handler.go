package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/services"
)

// TrackPeriodRequest for POST /api/performance/track
type TrackPeriodRequest struct {
	SEUName     string `json:"seu_name"`
	PeriodStart string `json:"period_start"` // YYYY-MM-DD
	PeriodEnd   string `json:"period_end"`   // YYYY-MM-DD
}

// PerformanceHandler serves period tracking.
type PerformanceHandler struct {
	performance services.PerformanceService
	logger      *zap.Logger
}

// NewPerformanceHandler creates a new performance handler.
func NewPerformanceHandler(performance services.PerformanceService, logger *zap.Logger) *PerformanceHandler {
	return &PerformanceHandler{performance: performance, logger: logger}
}

// RegisterRoutes registers the performance handler's routes on the given mux.
func (h *PerformanceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/performance/track", h.Track)
}

// Track handles POST /api/performance/track
func (h *PerformanceHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	start, ok := parseDateValue(w, req.PeriodStart, "period_start", h.logger)
	if !ok {
		return
	}
	end, ok := parseDateValue(w, req.PeriodEnd, "period_end", h.logger)
	if !ok {
		return
	}

	result, err := h.performance.Track(r.Context(), services.TrackRequest{
		SEUName:     req.SEUName,
		PeriodStart: start,
		PeriodEnd:   end,
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
