package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/services"
)

// ReportHandler serves compliance reports.
type ReportHandler struct {
	reports services.ReportService
	logger  *zap.Logger
}

// NewReportHandler creates a new report handler.
func NewReportHandler(reports services.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{reports: reports, logger: logger}
}

// RegisterRoutes registers the report handler's routes on the given mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/factories/{factory}/reports/{period}", h.Generate)
}

// Generate handles GET /api/factories/{factory}/reports/{period}
// where period is a year ("2025") or a quarter ("2025-Q3").
func (h *ReportHandler) Generate(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Generate(r.Context(), r.PathValue("factory"), r.PathValue("period"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: report}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
