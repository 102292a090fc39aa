package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/config"
	"github.com/enmetrica/enpi-engine/pkg/features"
	"github.com/enmetrica/enpi-engine/pkg/metrics"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// TrackRequest identifies one SEU and period to evaluate and persist.
type TrackRequest struct {
	SEUName     string
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// TrackResult is a persisted performance record plus the side effects worth
// surfacing: the updated target (when one exists for the period's year) and
// any capped-value or imputation warnings.
type TrackResult struct {
	Record   *models.PerformanceRecord `json:"record"`
	Target   *models.Target            `json:"target,omitempty"`
	Warnings []string                  `json:"warnings,omitempty"`
	Summary  string                    `json:"summary"`
}

// Computation is one period evaluated against the active baseline, before
// persistence. Record carries the computed values with zero ID and zero
// cumulative savings; DriverMeans hold the observed per-day driver averages
// the attribution heuristics compare against the baseline means.
type Computation struct {
	SEU          *models.SEU
	Source       *models.EnergySource
	Baseline     *models.Baseline
	Record       models.PerformanceRecord
	DriverMeans  map[string]float64
	ObservedDays int
	Warnings     []string
}

// PerformanceService evaluates tracked periods against active baselines.
type PerformanceService interface {
	// Track computes one period, upserts the performance record, and rolls
	// the year's savings into the SEU's target progress.
	Track(ctx context.Context, req TrackRequest) (*TrackResult, error)
	// ComputeRecord evaluates a window without persisting anything. The
	// analysis engine builds on this.
	ComputeRecord(ctx context.Context, seuName string, from, to time.Time) (*Computation, error)
}

type performanceService struct {
	seus        repositories.SEURepository
	sources     repositories.EnergySourceRepository
	performance repositories.PerformanceRepository
	targets     repositories.TargetRepository
	baselineSvc BaselineService
	readings    repositories.ReadingsRepository
	registry    *features.Registry
	planner     *features.PlanBuilder
	policy      config.PolicyConfig
	bands       models.StatusPolicy
	cache       *Cache
	logger      *zap.Logger
}

func NewPerformanceService(
	seus repositories.SEURepository,
	sources repositories.EnergySourceRepository,
	performance repositories.PerformanceRepository,
	targets repositories.TargetRepository,
	baselineSvc BaselineService,
	readings repositories.ReadingsRepository,
	registry *features.Registry,
	planner *features.PlanBuilder,
	policy config.PolicyConfig,
	cache *Cache,
	logger *zap.Logger,
) PerformanceService {
	return &performanceService{
		seus:        seus,
		sources:     sources,
		performance: performance,
		targets:     targets,
		baselineSvc: baselineSvc,
		readings:    readings,
		registry:    registry,
		planner:     planner,
		policy:      policy,
		bands: models.StatusPolicy{
			ExcellentMax: policy.ExcellentMaxPct,
			OnTrackMax:   policy.OnTrackMaxPct,
			AttentionMax: policy.AttentionMaxPct,
		},
		cache:  cache,
		logger: logger.Named("performance"),
	}
}

var _ PerformanceService = (*performanceService)(nil)

func (s *performanceService) Track(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	comp, err := s.ComputeRecord(ctx, req.SEUName, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}

	rec := comp.Record
	if err := s.performance.Upsert(ctx, &rec); err != nil {
		return nil, err
	}
	metrics.PerformanceRecords.WithLabelValues(string(rec.ISOStatus)).Inc()
	s.cache.InvalidateReports(ctx, comp.SEU.Factory)

	result := &TrackResult{
		Record:   &rec,
		Warnings: comp.Warnings,
	}

	target, warning, err := s.updateTargetProgress(ctx, comp.SEU, rec.PeriodStart.Year())
	if err != nil {
		return nil, err
	}
	result.Target = target
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	result.Summary = trackSummary(comp.SEU.Name, &rec, comp.Source)

	s.logger.Info("period tracked",
		zap.String("seu", comp.SEU.Name),
		zap.Time("period_start", rec.PeriodStart),
		zap.Time("period_end", rec.PeriodEnd),
		zap.Float64("actual_kwh", rec.ActualKWh),
		zap.Float64("expected_kwh", rec.ExpectedKWh),
		zap.Float64("deviation_pct", rec.DeviationPct),
		zap.String("iso_status", string(rec.ISOStatus)),
		zap.Bool("projected", rec.Projected))
	return result, nil
}

func (s *performanceService) ComputeRecord(ctx context.Context, seuName string, from, to time.Time) (*Computation, error) {
	seu, src, err := resolveSEU(ctx, s.seus, s.sources, seuName)
	if err != nil {
		return nil, err
	}
	b, err := s.baselineSvc.GetActive(ctx, seuName)
	if err != nil {
		return nil, err
	}

	target, err := s.registry.Target(src.Name)
	if err != nil {
		return nil, err
	}
	drivers, err := s.registry.Resolve(src.Name, b.FeatureNames)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Build(seu, from, to, append([]models.Feature{target}, drivers...))
	if err != nil {
		return nil, err
	}
	rows, err := s.readings.FetchDaily(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.InsufficientData("no energy readings for SEU %q between %s and %s",
			seu.Name, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	covPlan, err := s.planner.BuildCoverage(seu, from, to, target)
	if err != nil {
		return nil, err
	}
	cov, err := s.readings.FetchCoverage(ctx, covPlan, features.PeriodHours(from, to))
	if err != nil {
		return nil, err
	}
	if cov.Ratio() < s.policy.MinCoverageRatio {
		return nil, apperrors.InsufficientData("only %.0f%% of the window %s to %s has energy readings (minimum %.0f%%)",
			cov.Ratio()*100, from.Format("2006-01-02"), to.Format("2006-01-02"), s.policy.MinCoverageRatio*100)
	}

	comp := &Computation{
		SEU:          seu,
		Source:       src,
		Baseline:     b,
		DriverMeans:  make(map[string]float64, len(b.FeatureNames)),
		ObservedDays: 0,
	}

	// Expected energy is the sum of per-day baseline predictions over the
	// window's own drivers, never the stored training totals. A driver
	// missing on an observed day is imputed with its baseline mean so one
	// sparse sensor doesn't silently shrink the expected total.
	actual, expected := 0.0, 0.0
	driverSums := make(map[string]float64, len(b.FeatureNames))
	imputed := make(map[string]int, len(b.FeatureNames))
	values := make(map[string]float64, len(b.FeatureNames))
	for _, row := range rows {
		energy := row.Values[models.TargetFeature]
		if energy == nil {
			continue
		}
		for _, name := range b.FeatureNames {
			if v := row.Values[name]; v != nil {
				values[name] = *v
			} else {
				values[name] = b.FeatureMeans[name]
				imputed[name]++
			}
			driverSums[name] += values[name]
		}
		prediction, err := b.Predict(values)
		if err != nil {
			return nil, apperrors.Internal(fmt.Errorf("baseline %s evaluation failed: %w", b.ID, err))
		}
		expected += prediction
		actual += *energy
		comp.ObservedDays++
	}
	if comp.ObservedDays == 0 {
		return nil, apperrors.InsufficientData("no energy readings for SEU %q between %s and %s",
			seu.Name, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	for name, total := range driverSums {
		comp.DriverMeans[name] = total / float64(comp.ObservedDays)
	}
	for _, name := range b.FeatureNames {
		if n := imputed[name]; n > 0 {
			comp.Warnings = append(comp.Warnings, fmt.Sprintf(
				"driver %s missing on %d of %d observed days; baseline mean imputed", name, n, comp.ObservedDays))
		}
	}

	// Partial coverage: project both sums to the full period. Scaling the
	// summed per-day predictions extrapolates unobserved days at the
	// observed driver profile, keeping actual and expected comparable.
	projected := false
	confidence := 1.0
	ratio := cov.Ratio()
	if cov.ObservedHours+1e-9 < cov.PeriodHours {
		factor := cov.PeriodHours / cov.ObservedHours
		actual *= factor
		expected *= factor
		projected = true
		confidence = ratio
	}

	if expected <= 0 {
		return nil, apperrors.DegenerateModel("baseline %s predicts non-positive energy (%.2f kWh) for this window", b.ID, expected)
	}

	deviation := actual - expected
	deviationPct := deviation / expected * 100
	savings := 0.0
	if deviation < 0 {
		savings = -deviation
	}

	comp.Record = models.PerformanceRecord{
		SEUID:         seu.ID,
		BaselineID:    b.ID,
		PeriodStart:   from,
		PeriodEnd:     to,
		ActualKWh:     actual,
		ExpectedKWh:   expected,
		DeviationKWh:  deviation,
		DeviationPct:  deviationPct,
		ISOStatus:     s.bands.Classify(deviationPct),
		SavingsKWh:    savings,
		SavingsCost:   decimal.NewFromFloat(savings).Mul(src.CostPerUnit).Round(2),
		Projected:     projected,
		CoverageRatio: ratio,
		Confidence:    confidence,
	}
	return comp, nil
}

// updateTargetProgress recomputes the target progress of a SEU for one year
// from the stored savings. No target for that year is not an error. The
// progress percent is capped at the storage bound; crossing 100 marks the
// target achieved regardless of capping.
func (s *performanceService) updateTargetProgress(ctx context.Context, seu *models.SEU, year int) (*models.Target, string, error) {
	target, err := s.targets.GetBySEUYear(ctx, seu.ID, year)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, "", nil
		}
		return nil, "", err
	}

	current, err := s.performance.SumSavingsForYear(ctx, seu.ID, target.TargetYear)
	if err != nil {
		return nil, "", err
	}

	raw := 0.0
	if target.TargetSavingsKWh > 0 {
		raw = current / target.TargetSavingsKWh * 100
	}
	capped, warn := apperrors.CapValue("progress_percent", raw, s.policy.ProgressCapPct)

	target.CurrentSavingsKWh = current
	target.ProgressPct = capped
	target.Achieved = raw >= 100
	if err := s.targets.UpdateProgress(ctx, target); err != nil {
		return nil, "", err
	}

	warning := ""
	if warn != nil {
		warning = warn.String()
		s.logger.Warn("target progress capped",
			zap.String("seu", seu.Name),
			zap.Int("target_year", target.TargetYear),
			zap.Float64("raw_pct", raw),
			zap.Float64("stored_pct", capped))
	}
	return target, warning, nil
}
