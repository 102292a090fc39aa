package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/services"
)

// PlanTemplateRequest for POST /api/opportunities/template
type PlanTemplateRequest struct {
	IssueType          string  `json:"issue_type"`
	SEUName            string  `json:"seu_name,omitempty"`
	EstimatedAnnualKWh float64 `json:"estimated_annual_kwh,omitempty"`
}

// OpportunityHandler serves the factory-wide savings scan and action-plan
// templates for its findings.
type OpportunityHandler struct {
	opportunities services.OpportunityService
	logger        *zap.Logger
}

// NewOpportunityHandler creates a new opportunity handler.
func NewOpportunityHandler(opportunities services.OpportunityService, logger *zap.Logger) *OpportunityHandler {
	return &OpportunityHandler{opportunities: opportunities, logger: logger}
}

// RegisterRoutes registers the opportunity handler's routes on the given mux.
func (h *OpportunityHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/factories/{factory}/opportunities", h.Scan)
	mux.HandleFunc("POST /api/opportunities/template", h.Template)
}

// Scan handles GET /api/factories/{factory}/opportunities?from=...&to=...
func (h *OpportunityHandler) Scan(w http.ResponseWriter, r *http.Request) {
	from, ok := parseDateParam(w, r, "from", h.logger)
	if !ok {
		return
	}
	to, ok := parseDateParam(w, r, "to", h.logger)
	if !ok {
		return
	}

	scan, err := h.opportunities.Scan(r.Context(), r.PathValue("factory"), from, to)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: scan}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Template handles POST /api/opportunities/template
func (h *OpportunityHandler) Template(w http.ResponseWriter, r *http.Request) {
	var req PlanTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	template, err := h.opportunities.Template(r.Context(), services.TemplateRequest{
		IssueType:          req.IssueType,
		SEUName:            req.SEUName,
		EstimatedAnnualKWh: req.EstimatedAnnualKWh,
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: template}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
