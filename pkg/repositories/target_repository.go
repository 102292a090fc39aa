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

// TargetRepository provides data access for annual reduction targets.
type TargetRepository interface {
	Create(ctx context.Context, target *models.Target) error
	GetBySEUYear(ctx context.Context, seuID uuid.UUID, targetYear int) (*models.Target, error)
	ListBySEU(ctx context.Context, seuID uuid.UUID) ([]*models.Target, error)
	// UpdateProgress stores the recomputed progress fields.
	UpdateProgress(ctx context.Context, target *models.Target) error
}

type targetRepository struct {
	db *database.DB
}

// NewTargetRepository creates a new TargetRepository.
func NewTargetRepository(db *database.DB) TargetRepository {
	return &targetRepository{db: db}
}

var _ TargetRepository = (*targetRepository)(nil)

const targetColumns = `
	id, seu_id, target_year, baseline_year, reduction_pct,
	target_savings_kwh, current_savings_kwh, progress_pct, achieved,
	created_at, updated_at`

func (r *targetRepository) Create(ctx context.Context, target *models.Target) error {
	now := time.Now()

	err := r.db.QueryRow(ctx, `
		INSERT INTO enpi_targets (
			seu_id, target_year, baseline_year, reduction_pct,
			target_savings_kwh, current_savings_kwh, progress_pct, achieved,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id, created_at, updated_at`,
		target.SEUID,
		target.TargetYear,
		target.BaselineYear,
		target.ReductionPct,
		target.TargetSavingsKWh,
		target.CurrentSavingsKWh,
		target.ProgressPct,
		target.Achieved,
		now,
	).Scan(&target.ID, &target.CreatedAt, &target.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("target for SEU %s year %d already exists", target.SEUID, target.TargetYear)
		}
		return fmt.Errorf("failed to create target: %w", err)
	}
	return nil
}

func (r *targetRepository) GetBySEUYear(ctx context.Context, seuID uuid.UUID, targetYear int) (*models.Target, error) {
	query := `SELECT ` + targetColumns + `
		FROM enpi_targets
		WHERE seu_id = $1 AND target_year = $2`

	tgt, err := scanTarget(r.db.QueryRow(ctx, query, seuID, targetYear))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("no target for SEU %s and year %d", seuID, targetYear)
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return tgt, nil
}

func (r *targetRepository) ListBySEU(ctx context.Context, seuID uuid.UUID) ([]*models.Target, error) {
	query := `SELECT ` + targetColumns + `
		FROM enpi_targets
		WHERE seu_id = $1
		ORDER BY target_year`

	rows, err := r.db.Query(ctx, query, seuID)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	defer rows.Close()

	var out []*models.Target
	for rows.Next() {
		tgt, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		out = append(out, tgt)
	}
	return out, rows.Err()
}

func (r *targetRepository) UpdateProgress(ctx context.Context, target *models.Target) error {
	err := r.db.QueryRow(ctx, `
		UPDATE enpi_targets
		SET current_savings_kwh = $2, progress_pct = $3, achieved = $4,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		target.ID,
		target.CurrentSavingsKWh,
		target.ProgressPct,
		target.Achieved,
	).Scan(&target.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("target %s not found", target.ID)
		}
		return fmt.Errorf("failed to update target progress: %w", err)
	}
	return nil
}

func scanTarget(row pgx.Row) (*models.Target, error) {
	var tgt models.Target
	err := row.Scan(
		&tgt.ID, &tgt.SEUID, &tgt.TargetYear, &tgt.BaselineYear,
		&tgt.ReductionPct, &tgt.TargetSavingsKWh, &tgt.CurrentSavingsKWh,
		&tgt.ProgressPct, &tgt.Achieved, &tgt.CreatedAt, &tgt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tgt, nil
}
