package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
	"github.com/enmetrica/enpi-engine/pkg/services"
)

// CreatePlanRequest for POST /api/plans
type CreatePlanRequest struct {
	Factory             string          `json:"factory,omitempty"`
	SEUName             string          `json:"seu_name,omitempty"`
	Title               string          `json:"title"`
	Objective           string          `json:"objective,omitempty"`
	IssueType           string          `json:"issue_type,omitempty"`
	TargetSavingsKWh    float64         `json:"target_savings_kwh"`
	EstimatedInvestment decimal.Decimal `json:"estimated_investment"`
	Priority            string          `json:"priority,omitempty"`
	Responsible         string          `json:"responsible,omitempty"`
	StartDate           string          `json:"start_date,omitempty"` // YYYY-MM-DD
	DueDate             string          `json:"due_date,omitempty"`   // YYYY-MM-DD
}

// UpdatePlanRequest for PATCH /api/plans/{plan_id}; absent fields stay
// untouched.
type UpdatePlanRequest struct {
	Status           *string          `json:"status,omitempty"`
	Priority         *string          `json:"priority,omitempty"`
	ProgressPct      *float64         `json:"progress_pct,omitempty"`
	Responsible      *string          `json:"responsible,omitempty"`
	DueDate          *string          `json:"due_date,omitempty"` // YYYY-MM-DD
	ActualSavingsKWh *float64         `json:"actual_savings_kwh,omitempty"`
	ActualInvestment *decimal.Decimal `json:"actual_investment,omitempty"`
}

// PlanListResponse for GET /api/plans
type PlanListResponse struct {
	Plans []*models.ActionPlan `json:"plans"`
	Total int                  `json:"total"`
}

// PlanHandler manages improvement action plans.
type PlanHandler struct {
	plans  services.PlanService
	logger *zap.Logger
}

// NewPlanHandler creates a new plan handler.
func NewPlanHandler(plans services.PlanService, logger *zap.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, logger: logger}
}

// RegisterRoutes registers the plan handler's routes on the given mux.
func (h *PlanHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/plans", h.Create)
	mux.HandleFunc("GET /api/plans", h.List)
	mux.HandleFunc("GET /api/plans/{plan_id}", h.Get)
	mux.HandleFunc("PATCH /api/plans/{plan_id}", h.Update)
}

// Create handles POST /api/plans
func (h *PlanHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	start, ok := parseOptionalDate(w, req.StartDate, "start_date", h.logger)
	if !ok {
		return
	}
	due, ok := parseOptionalDate(w, req.DueDate, "due_date", h.logger)
	if !ok {
		return
	}

	plan, err := h.plans.Create(r.Context(), services.PlanCreateRequest{
		Factory:             req.Factory,
		SEUName:             req.SEUName,
		Title:               req.Title,
		Objective:           req.Objective,
		IssueType:           req.IssueType,
		TargetSavingsKWh:    req.TargetSavingsKWh,
		EstimatedInvestment: req.EstimatedInvestment,
		Priority:            req.Priority,
		Responsible:         req.Responsible,
		StartDate:           optionalTime(start),
		DueDate:             optionalTime(due),
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: plan}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/plans/{plan_id}
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	plan, err := h.plans.Get(r.Context(), id)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: plan}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Update handles PATCH /api/plans/{plan_id}
func (h *PlanHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := ParsePlanID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	update := services.PlanUpdateRequest{
		Priority:         req.Priority,
		ProgressPct:      req.ProgressPct,
		Responsible:      req.Responsible,
		ActualSavingsKWh: req.ActualSavingsKWh,
		ActualInvestment: req.ActualInvestment,
	}
	if req.Status != nil {
		status := models.ActionPlanStatus(*req.Status)
		update.Status = &status
	}
	if req.DueDate != nil {
		due, ok := parseDateValue(w, *req.DueDate, "due_date", h.logger)
		if !ok {
			return
		}
		update.DueDate = &due
	}

	plan, err := h.plans.Update(r.Context(), id, update)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: plan}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/plans?factory=...&seu_id=...&status=...&priority=...
func (h *PlanHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repositories.ActionPlanFilter{
		Factory:  q.Get("factory"),
		Status:   models.ActionPlanStatus(q.Get("status")),
		Priority: q.Get("priority"),
	}
	if raw := q.Get("seu_id"); raw != "" {
		seuID, err := uuid.Parse(raw)
		if err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_seu_id", "Invalid SEU ID format"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		filter.SEUID = &seuID
	}

	plans, err := h.plans.List(r.Context(), filter)
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	response := PlanListResponse{Plans: plans, Total: len(plans)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// optionalTime converts the zero time from an absent date field to nil.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
