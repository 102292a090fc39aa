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

// PerformanceRepository provides data access for tracked performance
// records. (seu_id, period_start, period_end) is unique; writes for the
// same window are last-write-wins via upsert, never append.
type PerformanceRepository interface {
	// Upsert writes the record and recomputes the SEU's cumulative savings
	// chain in the same transaction. Re-tracking a window with unchanged
	// inputs leaves every stored value identical.
	Upsert(ctx context.Context, record *models.PerformanceRecord) error
	GetByWindow(ctx context.Context, seuID uuid.UUID, periodStart, periodEnd time.Time) (*models.PerformanceRecord, error)
	// ListForPeriod returns records of the given SEUs whose window lies
	// inside [from, to), ordered by SEU then period.
	ListForPeriod(ctx context.Context, seuIDs []uuid.UUID, from, to time.Time) ([]*models.PerformanceRecord, error)
	// SumSavingsForYear totals savings for windows inside a calendar year,
	// feeding target progress.
	SumSavingsForYear(ctx context.Context, seuID uuid.UUID, year int) (float64, error)
}

type performanceRepository struct {
	db *database.DB
}

// NewPerformanceRepository creates a new PerformanceRepository.
func NewPerformanceRepository(db *database.DB) PerformanceRepository {
	return &performanceRepository{db: db}
}

var _ PerformanceRepository = (*performanceRepository)(nil)

const performanceColumns = `
	id, seu_id, baseline_id, period_start, period_end, actual_kwh,
	expected_kwh, deviation_kwh, deviation_pct, iso_status, savings_kwh,
	savings_cost, cumulative_savings_kwh, projected, coverage_ratio,
	confidence, generated_at`

func (r *performanceRepository) Upsert(ctx context.Context, record *models.PerformanceRecord) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin performance transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	now := time.Now()
	err = tx.QueryRow(ctx, `
		INSERT INTO enpi_performance_records (
			seu_id, baseline_id, period_start, period_end, actual_kwh,
			expected_kwh, deviation_kwh, deviation_pct, iso_status,
			savings_kwh, savings_cost, cumulative_savings_kwh, projected,
			coverage_ratio, confidence, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12, $13, $14, $15)
		ON CONFLICT (seu_id, period_start, period_end) DO UPDATE SET
			baseline_id = EXCLUDED.baseline_id,
			actual_kwh = EXCLUDED.actual_kwh,
			expected_kwh = EXCLUDED.expected_kwh,
			deviation_kwh = EXCLUDED.deviation_kwh,
			deviation_pct = EXCLUDED.deviation_pct,
			iso_status = EXCLUDED.iso_status,
			savings_kwh = EXCLUDED.savings_kwh,
			savings_cost = EXCLUDED.savings_cost,
			projected = EXCLUDED.projected,
			coverage_ratio = EXCLUDED.coverage_ratio,
			confidence = EXCLUDED.confidence,
			generated_at = EXCLUDED.generated_at
		RETURNING id, generated_at`,
		record.SEUID,
		record.BaselineID,
		record.PeriodStart,
		record.PeriodEnd,
		record.ActualKWh,
		record.ExpectedKWh,
		record.DeviationKWh,
		record.DeviationPct,
		record.ISOStatus,
		record.SavingsKWh,
		record.SavingsCost,
		record.Projected,
		record.CoverageRatio,
		record.Confidence,
		now,
	).Scan(&record.ID, &record.GeneratedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert performance record: %w", err)
	}

	// Recompute the whole cumulative chain for this SEU. A window function
	// over period order makes the result independent of tracking order, so
	// backfilling an old period corrects every later record too.
	_, err = tx.Exec(ctx, `
		UPDATE enpi_performance_records pr
		SET cumulative_savings_kwh = chain.cumulative
		FROM (
			SELECT id,
			       SUM(savings_kwh) OVER (ORDER BY period_start, period_end) AS cumulative
			FROM enpi_performance_records
			WHERE seu_id = $1
		) chain
		WHERE pr.id = chain.id`,
		record.SEUID)
	if err != nil {
		return fmt.Errorf("failed to recompute cumulative savings: %w", err)
	}

	err = tx.QueryRow(ctx,
		`SELECT cumulative_savings_kwh FROM enpi_performance_records WHERE id = $1`,
		record.ID,
	).Scan(&record.CumulativeSavingsKWh)
	if err != nil {
		return fmt.Errorf("failed to read back cumulative savings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit performance record: %w", err)
	}
	return nil
}

func (r *performanceRepository) GetByWindow(ctx context.Context, seuID uuid.UUID, periodStart, periodEnd time.Time) (*models.PerformanceRecord, error) {
	query := `SELECT ` + performanceColumns + `
		FROM enpi_performance_records
		WHERE seu_id = $1 AND period_start = $2 AND period_end = $3`

	rec, err := scanPerformanceRecord(r.db.QueryRow(ctx, query, seuID, periodStart, periodEnd))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("no performance record for SEU %s in window %s to %s",
				seuID, periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02"))
		}
		return nil, fmt.Errorf("failed to get performance record: %w", err)
	}
	return rec, nil
}

func (r *performanceRepository) ListForPeriod(ctx context.Context, seuIDs []uuid.UUID, from, to time.Time) ([]*models.PerformanceRecord, error) {
	if len(seuIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + performanceColumns + `
		FROM enpi_performance_records
		WHERE seu_id = ANY($1) AND period_start >= $2 AND period_end <= $3
		ORDER BY seu_id, period_start`

	rows, err := r.db.Query(ctx, query, seuIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list performance records: %w", err)
	}
	defer rows.Close()

	var out []*models.PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformanceRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan performance record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *performanceRepository) SumSavingsForYear(ctx context.Context, seuID uuid.UUID, year int) (float64, error) {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	var total float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(savings_kwh), 0)
		FROM enpi_performance_records
		WHERE seu_id = $1 AND period_start >= $2 AND period_end <= $3`,
		seuID, yearStart, yearEnd,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum savings for year %d: %w", year, err)
	}
	return total, nil
}

func scanPerformanceRecord(row pgx.Row) (*models.PerformanceRecord, error) {
	var rec models.PerformanceRecord
	err := row.Scan(
		&rec.ID, &rec.SEUID, &rec.BaselineID, &rec.PeriodStart, &rec.PeriodEnd,
		&rec.ActualKWh, &rec.ExpectedKWh, &rec.DeviationKWh, &rec.DeviationPct,
		&rec.ISOStatus, &rec.SavingsKWh, &rec.SavingsCost,
		&rec.CumulativeSavingsKWh, &rec.Projected, &rec.CoverageRatio,
		&rec.Confidence, &rec.GeneratedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
