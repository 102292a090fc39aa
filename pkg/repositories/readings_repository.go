package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/database"
	"github.com/enmetrica/enpi-engine/pkg/features"
	"github.com/enmetrica/enpi-engine/pkg/metrics"
)

// ReadingsRepository executes aggregation plans against the raw time-series
// tables. It is the only code path that touches them, and every query runs
// under the configured deadline: a full year of high-frequency readings is
// the dominant latency source, and a hung aggregation must surface as a
// retryable timeout instead of blocking the request.
type ReadingsRepository interface {
	// FetchDaily runs a day-bucketed plan and returns one row per observed
	// day, NULL-preserving.
	FetchDaily(ctx context.Context, plan features.QueryPlan) ([]features.DayRow, error)
	// FetchCoverage runs a coverage probe and pairs it with the nominal
	// period hours.
	FetchCoverage(ctx context.Context, plan features.QueryPlan, periodHours float64) (features.Coverage, error)
	// FetchHourly runs an hour-bucketed energy series plan.
	FetchHourly(ctx context.Context, plan features.QueryPlan) ([]features.HourPoint, error)
}

type readingsRepository struct {
	db           *database.DB
	queryTimeout time.Duration
}

// NewReadingsRepository creates a ReadingsRepository with the given query
// deadline.
func NewReadingsRepository(db *database.DB, queryTimeout time.Duration) ReadingsRepository {
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	return &readingsRepository{db: db, queryTimeout: queryTimeout}
}

var _ ReadingsRepository = (*readingsRepository)(nil)

func (r *readingsRepository) FetchDaily(ctx context.Context, plan features.QueryPlan) ([]features.DayRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.db.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, mapAggregationError(err)
	}
	defer rows.Close()

	var out []features.DayRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read aggregation row: %w", err)
		}
		if len(values) != len(plan.Columns)+1 {
			return nil, fmt.Errorf("aggregation row has %d columns, want %d", len(values), len(plan.Columns)+1)
		}

		day, ok := values[0].(time.Time)
		if !ok {
			return nil, fmt.Errorf("aggregation day column is %T, want time.Time", values[0])
		}

		row := features.DayRow{Day: day, Values: make(map[string]*float64, len(plan.Columns))}
		for i, col := range plan.Columns {
			v, err := toNullableFloat(values[i+1])
			if err != nil {
				return nil, fmt.Errorf("aggregation column %s: %w", col, err)
			}
			row.Values[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapAggregationError(err)
	}

	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

func (r *readingsRepository) FetchCoverage(ctx context.Context, plan features.QueryPlan, periodHours float64) (features.Coverage, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	var observed float64
	if err := r.db.QueryRow(ctx, plan.SQL, plan.Args...).Scan(&observed); err != nil {
		return features.Coverage{}, mapAggregationError(err)
	}
	return features.Coverage{ObservedHours: observed, PeriodHours: periodHours}, nil
}

func (r *readingsRepository) FetchHourly(ctx context.Context, plan features.QueryPlan) ([]features.HourPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := r.db.Query(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, mapAggregationError(err)
	}
	defer rows.Close()

	var out []features.HourPoint
	for rows.Next() {
		var p features.HourPoint
		if err := rows.Scan(&p.Hour, &p.KWh); err != nil {
			return nil, fmt.Errorf("failed to scan hourly point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapAggregationError(err)
	}

	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

// mapAggregationError turns a deadline hit into the retryable timeout kind;
// everything else passes through wrapped.
func mapAggregationError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.AggregationTimeout(err)
	}
	return fmt.Errorf("aggregation query failed: %w", err)
}

// toNullableFloat converts a pgx column value to *float64, keeping NULL as
// nil. Aggregates over double precision come back float64; COUNT-ish paths
// can produce int64.
func toNullableFloat(v any) (*float64, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return &t, nil
	case float32:
		f := float64(t)
		return &f, nil
	case int64:
		f := float64(t)
		return &f, nil
	default:
		return nil, fmt.Errorf("unsupported aggregate type %T", v)
	}
}
