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

// BaselineRepository provides data access for trained baselines. History is
// append-only: retraining deactivates the prior row, it never mutates one.
type BaselineRepository interface {
	// Insert persists a freshly trained baseline: in one transaction the
	// current active row for (seu, baseline_year) is deactivated and the
	// new row inserted active. Under concurrent training the last
	// committed writer wins; the partial unique index rejects mixed
	// states.
	Insert(ctx context.Context, b *models.Baseline) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Baseline, error)
	// GetActive returns the most recently trained active baseline of a
	// SEU across all baseline years.
	GetActive(ctx context.Context, seuID uuid.UUID) (*models.Baseline, error)
	GetActiveForYear(ctx context.Context, seuID uuid.UUID, year int) (*models.Baseline, error)
	// ListBySEU returns the full baseline history, newest first.
	ListBySEU(ctx context.Context, seuID uuid.UUID) ([]*models.Baseline, error)
}

type baselineRepository struct {
	db *database.DB
}

// NewBaselineRepository creates a new BaselineRepository.
func NewBaselineRepository(db *database.DB) BaselineRepository {
	return &baselineRepository{db: db}
}

var _ BaselineRepository = (*baselineRepository)(nil)

const baselineColumns = `
	id, seu_id, baseline_year, period_start, period_end, intercept,
	feature_names, coefficients, feature_means, r_squared, rmse,
	sample_count, total_energy_kwh, total_production, sec, formula,
	is_active, trained_at`

func (r *baselineRepository) Insert(ctx context.Context, b *models.Baseline) error {
	coeffs, err := jsonbMap(b.Coefficients)
	if err != nil {
		return err
	}
	means, err := jsonbMap(b.FeatureMeans)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin baseline transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	_, err = tx.Exec(ctx, `
		UPDATE enpi_baselines
		SET is_active = FALSE
		WHERE seu_id = $1 AND baseline_year = $2 AND is_active`,
		b.SEUID, b.BaselineYear)
	if err != nil {
		return fmt.Errorf("failed to deactivate prior baseline: %w", err)
	}

	now := time.Now()
	err = tx.QueryRow(ctx, `
		INSERT INTO enpi_baselines (
			seu_id, baseline_year, period_start, period_end, intercept,
			feature_names, coefficients, feature_means, r_squared, rmse,
			sample_count, total_energy_kwh, total_production, sec, formula,
			is_active, trained_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, TRUE, $16)
		RETURNING id, trained_at`,
		b.SEUID,
		b.BaselineYear,
		b.PeriodStart,
		b.PeriodEnd,
		b.Intercept,
		b.FeatureNames,
		coeffs,
		means,
		b.RSquared,
		b.RMSE,
		b.SampleCount,
		b.TotalEnergyKWh,
		b.TotalProduction,
		b.SEC,
		b.Formula,
		now,
	).Scan(&b.ID, &b.TrainedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("baseline for SEU %s year %d was retrained concurrently", b.SEUID, b.BaselineYear)
		}
		return fmt.Errorf("failed to insert baseline: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit baseline: %w", err)
	}
	b.IsActive = true
	return nil
}

func (r *baselineRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Baseline, error) {
	query := `SELECT ` + baselineColumns + ` FROM enpi_baselines WHERE id = $1`
	b, err := r.scanBaseline(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("baseline %s not found", id)
		}
		return nil, fmt.Errorf("failed to get baseline: %w", err)
	}
	return b, nil
}

func (r *baselineRepository) GetActive(ctx context.Context, seuID uuid.UUID) (*models.Baseline, error) {
	query := `SELECT ` + baselineColumns + `
		FROM enpi_baselines
		WHERE seu_id = $1 AND is_active
		ORDER BY trained_at DESC
		LIMIT 1`

	b, err := r.scanBaseline(r.db.QueryRow(ctx, query, seuID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("no active baseline for SEU %s; train one first", seuID)
		}
		return nil, fmt.Errorf("failed to get active baseline: %w", err)
	}
	return b, nil
}

func (r *baselineRepository) GetActiveForYear(ctx context.Context, seuID uuid.UUID, year int) (*models.Baseline, error) {
	query := `SELECT ` + baselineColumns + `
		FROM enpi_baselines
		WHERE seu_id = $1 AND baseline_year = $2 AND is_active`

	b, err := r.scanBaseline(r.db.QueryRow(ctx, query, seuID, year))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("no active baseline for SEU %s and year %d", seuID, year)
		}
		return nil, fmt.Errorf("failed to get active baseline for year: %w", err)
	}
	return b, nil
}

func (r *baselineRepository) ListBySEU(ctx context.Context, seuID uuid.UUID) ([]*models.Baseline, error) {
	query := `SELECT ` + baselineColumns + `
		FROM enpi_baselines
		WHERE seu_id = $1
		ORDER BY trained_at DESC`

	rows, err := r.db.Query(ctx, query, seuID)
	if err != nil {
		return nil, fmt.Errorf("failed to list baselines: %w", err)
	}
	defer rows.Close()

	var out []*models.Baseline
	for rows.Next() {
		b, err := r.scanBaseline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *baselineRepository) scanBaseline(row pgx.Row) (*models.Baseline, error) {
	var (
		b         models.Baseline
		coeffsRaw []byte
		meansRaw  []byte
	)
	err := row.Scan(
		&b.ID, &b.SEUID, &b.BaselineYear, &b.PeriodStart, &b.PeriodEnd,
		&b.Intercept, &b.FeatureNames, &coeffsRaw, &meansRaw, &b.RSquared,
		&b.RMSE, &b.SampleCount, &b.TotalEnergyKWh, &b.TotalProduction,
		&b.SEC, &b.Formula, &b.IsActive, &b.TrainedAt,
	)
	if err != nil {
		return nil, err
	}
	if b.Coefficients, err = scanJSONBMap(coeffsRaw); err != nil {
		return nil, err
	}
	if b.FeatureMeans, err = scanJSONBMap(meansRaw); err != nil {
		return nil, err
	}
	return &b, nil
}
