package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// PlanCreateRequest carries the fields of a new action plan. A plan bound
// to a SEU inherits its factory and prices the target savings at its
// source's tariff; a factory-wide plan leaves SEUName empty and names the
// factory directly.
type PlanCreateRequest struct {
	Factory             string
	SEUName             string // optional
	Title               string
	Objective           string
	IssueType           string // optional; set when created from a scan finding
	TargetSavingsKWh    float64
	EstimatedInvestment decimal.Decimal
	Priority            string // defaults to medium
	Responsible         string
	StartDate           *time.Time
	DueDate             *time.Time
}

// PlanUpdateRequest patches an existing plan; nil fields stay untouched.
type PlanUpdateRequest struct {
	Status           *models.ActionPlanStatus
	Priority         *string
	ProgressPct      *float64
	Responsible      *string
	DueDate          *time.Time
	ActualSavingsKWh *float64
	ActualInvestment *decimal.Decimal
}

// PlanService manages improvement action plans through their lifecycle.
type PlanService interface {
	Create(ctx context.Context, req PlanCreateRequest) (*models.ActionPlan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error)
	// Update applies a partial update. An illegal status transition is a
	// conflict rather than a validation error: the plan may have moved
	// since the caller last read it.
	Update(ctx context.Context, id uuid.UUID, req PlanUpdateRequest) (*models.ActionPlan, error)
	List(ctx context.Context, filter repositories.ActionPlanFilter) ([]*models.ActionPlan, error)
}

type planService struct {
	plans   repositories.ActionPlanRepository
	seus    repositories.SEURepository
	sources repositories.EnergySourceRepository
	logger  *zap.Logger
}

func NewPlanService(
	plans repositories.ActionPlanRepository,
	seus repositories.SEURepository,
	sources repositories.EnergySourceRepository,
	logger *zap.Logger,
) PlanService {
	return &planService{
		plans:   plans,
		seus:    seus,
		sources: sources,
		logger:  logger.Named("plan"),
	}
}

var _ PlanService = (*planService)(nil)

func planPriorities() []string {
	return []string{models.PriorityHigh, models.PriorityMedium, models.PriorityLow}
}

func planStatuses() []string {
	return []string{
		string(models.PlanStatusPlanned),
		string(models.PlanStatusInProgress),
		string(models.PlanStatusCompleted),
		string(models.PlanStatusCancelled),
		string(models.PlanStatusOnHold),
	}
}

func (s *planService) Create(ctx context.Context, req PlanCreateRequest) (*models.ActionPlan, error) {
	if req.Title == "" {
		return nil, apperrors.Validation("action plan title is required")
	}
	if req.TargetSavingsKWh < 0 {
		return nil, apperrors.Validation("target savings must not be negative, got %.1f kWh", req.TargetSavingsKWh)
	}
	if req.EstimatedInvestment.IsNegative() {
		return nil, apperrors.Validation("estimated investment must not be negative, got %s", req.EstimatedInvestment)
	}
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityMedium
	}
	if !models.ValidPlanPriority(priority) {
		return nil, apperrors.ValidationWithAlternatives(
			fmt.Sprintf("unknown priority %q", req.Priority), planPriorities())
	}

	plan := &models.ActionPlan{
		Factory:             req.Factory,
		Title:               req.Title,
		Objective:           req.Objective,
		IssueType:           req.IssueType,
		TargetSavingsKWh:    req.TargetSavingsKWh,
		EstimatedInvestment: req.EstimatedInvestment,
		Status:              models.PlanStatusPlanned,
		Priority:            priority,
		Responsible:         req.Responsible,
		StartDate:           req.StartDate,
		DueDate:             req.DueDate,
	}

	if req.SEUName != "" {
		seu, src, err := resolveSEU(ctx, s.seus, s.sources, req.SEUName)
		if err != nil {
			return nil, err
		}
		plan.SEUID = &seu.ID
		plan.Factory = seu.Factory
		plan.TargetSavingsCost = decimal.NewFromFloat(req.TargetSavingsKWh).Mul(src.CostPerUnit).Round(2)
	}
	if plan.Factory == "" {
		return nil, apperrors.Validation("factory is required for a plan not bound to a SEU")
	}

	recomputePlanEconomics(plan)
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("action plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("factory", plan.Factory),
		zap.String("title", plan.Title),
		zap.Float64("target_savings_kwh", plan.TargetSavingsKWh))
	return plan, nil
}

func (s *planService) Get(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error) {
	return s.plans.GetByID(ctx, id)
}

func (s *planService) Update(ctx context.Context, id uuid.UUID, req PlanUpdateRequest) (*models.ActionPlan, error) {
	plan, err := s.plans.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Priority != nil {
		if !models.ValidPlanPriority(*req.Priority) {
			return nil, apperrors.ValidationWithAlternatives(
				fmt.Sprintf("unknown priority %q", *req.Priority), planPriorities())
		}
		plan.Priority = *req.Priority
	}
	if req.ProgressPct != nil {
		if *req.ProgressPct < 0 || *req.ProgressPct > 100 {
			return nil, apperrors.Validation("progress percent must be within 0-100, got %.1f", *req.ProgressPct)
		}
		plan.ProgressPct = *req.ProgressPct
	}
	if req.Responsible != nil {
		plan.Responsible = *req.Responsible
	}
	if req.DueDate != nil {
		plan.DueDate = req.DueDate
	}
	if req.ActualSavingsKWh != nil {
		plan.ActualSavingsKWh = req.ActualSavingsKWh
	}
	if req.ActualInvestment != nil {
		plan.ActualInvestment = req.ActualInvestment
	}

	// Status last: completing a plan overrides any progress value in the
	// same request.
	if req.Status != nil {
		next := *req.Status
		if !models.ValidPlanStatus(next) {
			return nil, apperrors.ValidationWithAlternatives(
				fmt.Sprintf("unknown status %q", next), planStatuses())
		}
		if !plan.Status.CanTransitionTo(next) {
			return nil, apperrors.Conflict("action plan %s cannot move from %s to %s", id, plan.Status, next)
		}
		if next == models.PlanStatusCompleted && plan.Status != models.PlanStatusCompleted {
			now := time.Now().UTC()
			plan.CompletionDate = &now
			plan.ProgressPct = 100
		}
		plan.Status = next
	}

	recomputePlanEconomics(plan)
	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, err
	}

	s.logger.Info("action plan updated",
		zap.String("plan_id", id.String()),
		zap.String("status", string(plan.Status)),
		zap.Float64("progress_pct", plan.ProgressPct))
	return plan, nil
}

func (s *planService) List(ctx context.Context, filter repositories.ActionPlanFilter) ([]*models.ActionPlan, error) {
	if filter.Status != "" && !models.ValidPlanStatus(filter.Status) {
		return nil, apperrors.ValidationWithAlternatives(
			fmt.Sprintf("unknown status %q", filter.Status), planStatuses())
	}
	return s.plans.List(ctx, filter)
}

// recomputePlanEconomics refreshes the derived payback and ROI fields.
// Actuals take precedence over estimates once reported; actual savings in
// kWh are priced at the plan's own target tariff, so economics stay
// comparable before and after completion.
func recomputePlanEconomics(plan *models.ActionPlan) {
	investment := plan.EstimatedInvestment
	if plan.ActualInvestment != nil {
		investment = *plan.ActualInvestment
	}
	savingsCost := plan.TargetSavingsCost
	if plan.ActualSavingsKWh != nil && plan.TargetSavingsKWh > 0 {
		perKWh := plan.TargetSavingsCost.Div(decimal.NewFromFloat(plan.TargetSavingsKWh))
		savingsCost = perKWh.Mul(decimal.NewFromFloat(*plan.ActualSavingsKWh)).Round(2)
	}
	plan.PaybackMonths = models.ComputePaybackMonths(investment, savingsCost)
	plan.ROIPct = models.ComputeROIPct(savingsCost, investment)
}
