package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/database"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// ActionPlanFilter narrows List. Zero values mean "any".
type ActionPlanFilter struct {
	Factory  string
	SEUID    *uuid.UUID
	Status   models.ActionPlanStatus
	Priority string
}

// ActionPlanRepository provides data access for improvement action plans.
type ActionPlanRepository interface {
	Create(ctx context.Context, plan *models.ActionPlan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error)
	Update(ctx context.Context, plan *models.ActionPlan) error
	List(ctx context.Context, filter ActionPlanFilter) ([]*models.ActionPlan, error)
	// CountByStatus rolls plan counts up per status for a factory.
	CountByStatus(ctx context.Context, factory string) (map[models.ActionPlanStatus]int, error)
}

type actionPlanRepository struct {
	db *database.DB
}

// NewActionPlanRepository creates a new ActionPlanRepository.
func NewActionPlanRepository(db *database.DB) ActionPlanRepository {
	return &actionPlanRepository{db: db}
}

var _ ActionPlanRepository = (*actionPlanRepository)(nil)

const actionPlanColumns = `
	id, factory, seu_id, title, objective, COALESCE(issue_type, ''),
	target_savings_kwh, target_savings_cost, estimated_investment,
	payback_months, roi_pct, status, priority, COALESCE(responsible, ''),
	start_date, due_date, completion_date, progress_pct,
	actual_savings_kwh, actual_investment, created_at, updated_at`

func (r *actionPlanRepository) Create(ctx context.Context, plan *models.ActionPlan) error {
	now := time.Now()

	err := r.db.QueryRow(ctx, `
		INSERT INTO enpi_action_plans (
			factory, seu_id, title, objective, issue_type,
			target_savings_kwh, target_savings_cost, estimated_investment,
			payback_months, roi_pct, status, priority, responsible,
			start_date, due_date, progress_pct, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		RETURNING id, created_at, updated_at`,
		plan.Factory,
		plan.SEUID,
		plan.Title,
		plan.Objective,
		nullString(plan.IssueType),
		plan.TargetSavingsKWh,
		plan.TargetSavingsCost,
		plan.EstimatedInvestment,
		plan.PaybackMonths,
		plan.ROIPct,
		plan.Status,
		plan.Priority,
		nullString(plan.Responsible),
		plan.StartDate,
		plan.DueDate,
		plan.ProgressPct,
		now,
	).Scan(&plan.ID, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create action plan: %w", err)
	}
	return nil
}

func (r *actionPlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error) {
	query := `SELECT ` + actionPlanColumns + ` FROM enpi_action_plans WHERE id = $1`

	plan, err := scanActionPlan(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("action plan %s not found", id)
		}
		return nil, fmt.Errorf("failed to get action plan: %w", err)
	}
	return plan, nil
}

func (r *actionPlanRepository) Update(ctx context.Context, plan *models.ActionPlan) error {
	err := r.db.QueryRow(ctx, `
		UPDATE enpi_action_plans
		SET title = $2, objective = $3, target_savings_kwh = $4,
		    target_savings_cost = $5, estimated_investment = $6,
		    payback_months = $7, roi_pct = $8, status = $9, priority = $10,
		    responsible = $11, start_date = $12, due_date = $13,
		    completion_date = $14, progress_pct = $15,
		    actual_savings_kwh = $16, actual_investment = $17,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		plan.ID,
		plan.Title,
		plan.Objective,
		plan.TargetSavingsKWh,
		plan.TargetSavingsCost,
		plan.EstimatedInvestment,
		plan.PaybackMonths,
		plan.ROIPct,
		plan.Status,
		plan.Priority,
		nullString(plan.Responsible),
		plan.StartDate,
		plan.DueDate,
		plan.CompletionDate,
		plan.ProgressPct,
		plan.ActualSavingsKWh,
		plan.ActualInvestment,
	).Scan(&plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("action plan %s not found", plan.ID)
		}
		return fmt.Errorf("failed to update action plan: %w", err)
	}
	return nil
}

func (r *actionPlanRepository) List(ctx context.Context, filter ActionPlanFilter) ([]*models.ActionPlan, error) {
	query := `SELECT ` + actionPlanColumns + ` FROM enpi_action_plans WHERE 1=1`
	var args []any

	if filter.Factory != "" {
		args = append(args, filter.Factory)
		query += fmt.Sprintf(" AND factory = $%d", len(args))
	}
	if filter.SEUID != nil {
		args = append(args, *filter.SEUID)
		query += fmt.Sprintf(" AND seu_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND priority = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list action plans: %w", err)
	}
	defer rows.Close()

	var out []*models.ActionPlan
	for rows.Next() {
		plan, err := scanActionPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action plan: %w", err)
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

func (r *actionPlanRepository) CountByStatus(ctx context.Context, factory string) (map[models.ActionPlanStatus]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*)
		FROM enpi_action_plans
		WHERE factory = $1
		GROUP BY status`,
		factory)
	if err != nil {
		return nil, fmt.Errorf("failed to count action plans: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ActionPlanStatus]int)
	for rows.Next() {
		var (
			status models.ActionPlanStatus
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanActionPlan(row pgx.Row) (*models.ActionPlan, error) {
	var plan models.ActionPlan
	err := row.Scan(
		&plan.ID, &plan.Factory, &plan.SEUID, &plan.Title, &plan.Objective,
		&plan.IssueType, &plan.TargetSavingsKWh, &plan.TargetSavingsCost,
		&plan.EstimatedInvestment, &plan.PaybackMonths, &plan.ROIPct,
		&plan.Status, &plan.Priority, &plan.Responsible, &plan.StartDate,
		&plan.DueDate, &plan.CompletionDate, &plan.ProgressPct,
		&plan.ActualSavingsKWh, &plan.ActualInvestment,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
