package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/services"
)

// CreateTargetRequest for POST /api/targets
type CreateTargetRequest struct {
	SEUName      string  `json:"seu_name"`
	TargetYear   int     `json:"target_year"`
	BaselineYear int     `json:"baseline_year"`
	ReductionPct float64 `json:"reduction_pct"`
}

// TargetListResponse for GET /api/seus/{seu_name}/targets
type TargetListResponse struct {
	Targets []*models.Target `json:"targets"`
	Total   int              `json:"total"`
}

// TargetHandler manages annual reduction targets.
type TargetHandler struct {
	targets services.TargetService
	logger  *zap.Logger
}

// NewTargetHandler creates a new target handler.
func NewTargetHandler(targets services.TargetService, logger *zap.Logger) *TargetHandler {
	return &TargetHandler{targets: targets, logger: logger}
}

// RegisterRoutes registers the target handler's routes on the given mux.
func (h *TargetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/targets", h.Create)
	mux.HandleFunc("GET /api/seus/{seu_name}/targets", h.List)
}

// Create handles POST /api/targets
func (h *TargetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	target, err := h.targets.Create(r.Context(), services.TargetCreateRequest{
		SEUName:      req.SEUName,
		TargetYear:   req.TargetYear,
		BaselineYear: req.BaselineYear,
		ReductionPct: req.ReductionPct,
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: target}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/seus/{seu_name}/targets
func (h *TargetHandler) List(w http.ResponseWriter, r *http.Request) {
	targets, err := h.targets.ListBySEU(r.Context(), r.PathValue("seu_name"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	response := TargetListResponse{Targets: targets, Total: len(targets)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
