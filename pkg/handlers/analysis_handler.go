package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/services"
)

// AnalyzePerformanceRequest for POST /api/analysis
type AnalyzePerformanceRequest struct {
	SEUName      string `json:"seu_name"`
	EnergySource string `json:"energy_source,omitempty"`
	Date         string `json:"date"` // YYYY-MM-DD
}

// AnalysisHandler serves the single-call deviation diagnosis.
type AnalysisHandler struct {
	analysis services.AnalysisService
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analysis services.AnalysisService, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, logger: logger}
}

// RegisterRoutes registers the analysis handler's routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analysis", h.Analyze)
}

// Analyze handles POST /api/analysis
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzePerformanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	date, ok := parseDateValue(w, req.Date, "date", h.logger)
	if !ok {
		return
	}

	analysis, err := h.analysis.Analyze(r.Context(), services.AnalyzeRequest{
		SEUName:      req.SEUName,
		EnergySource: req.EnergySource,
		Date:         date,
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: analysis}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
