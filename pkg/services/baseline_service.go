package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/config"
	"github.com/enmetrica/enpi-engine/pkg/features"
	"github.com/enmetrica/enpi-engine/pkg/metrics"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/regression"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// TrainRequest carries the inputs of one baseline training run. An empty
// Features list triggers auto feature selection over the source's catalog
// candidates. Zero period bounds default to the calendar bounds of
// BaselineYear.
type TrainRequest struct {
	SEUName      string
	EnergySource string // optional; validated against the SEU's source when set
	BaselineYear int
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Features     []string
}

// PredictRequest evaluates the active baseline formula for one set of driver
// values. Identifier is a SEU name, or an equipment identifier when
// EnergySource is set (a machine may back one SEU per source it consumes).
type PredictRequest struct {
	Identifier   string
	EnergySource string
	Values       map[string]float64
}

// Prediction is the result of a direct formula evaluation.
type Prediction struct {
	SEUID        uuid.UUID `json:"seu_id"`
	SEUName      string    `json:"seu_name"`
	BaselineID   uuid.UUID `json:"baseline_id"`
	BaselineYear int       `json:"baseline_year"`
	PredictedKWh float64   `json:"predicted_kwh"`
	Formula      string    `json:"formula"`
	Summary      string    `json:"summary"`
}

// BaselineService trains, serves, and evaluates regression baselines.
type BaselineService interface {
	Train(ctx context.Context, req TrainRequest) (*models.Baseline, error)
	Predict(ctx context.Context, req PredictRequest) (*Prediction, error)
	// GetActive returns the most recent active baseline of a SEU,
	// cache-aware.
	GetActive(ctx context.Context, seuName string) (*models.Baseline, error)
	// History returns every baseline ever trained for a SEU, newest first,
	// superseded rows included.
	History(ctx context.Context, seuName string) ([]*models.Baseline, error)
}

type baselineService struct {
	seus      repositories.SEURepository
	sources   repositories.EnergySourceRepository
	baselines repositories.BaselineRepository
	readings  repositories.ReadingsRepository
	registry  *features.Registry
	planner   *features.PlanBuilder
	policy    config.PolicyConfig
	cache     *Cache
	logger    *zap.Logger
}

func NewBaselineService(
	seus repositories.SEURepository,
	sources repositories.EnergySourceRepository,
	baselines repositories.BaselineRepository,
	readings repositories.ReadingsRepository,
	registry *features.Registry,
	planner *features.PlanBuilder,
	policy config.PolicyConfig,
	cache *Cache,
	logger *zap.Logger,
) BaselineService {
	return &baselineService{
		seus:      seus,
		sources:   sources,
		baselines: baselines,
		readings:  readings,
		registry:  registry,
		planner:   planner,
		policy:    policy,
		cache:     cache,
		logger:    logger.Named("baseline"),
	}
}

var _ BaselineService = (*baselineService)(nil)

// resolveSEU loads a SEU by name together with its energy source.
func resolveSEU(ctx context.Context, seus repositories.SEURepository, sources repositories.EnergySourceRepository, name string) (*models.SEU, *models.EnergySource, error) {
	seu, err := seus.GetByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	src, err := sources.GetByID(ctx, seu.EnergySourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load energy source of SEU %q: %w", name, err)
	}
	return seu, src, nil
}

func (s *baselineService) Train(ctx context.Context, req TrainRequest) (*models.Baseline, error) {
	b, err := s.train(ctx, req)
	if err != nil {
		metrics.TrainingFailures.WithLabelValues(string(apperrors.KindOf(err))).Inc()
	}
	return b, err
}

func (s *baselineService) train(ctx context.Context, req TrainRequest) (*models.Baseline, error) {
	start := time.Now()

	seu, src, err := resolveSEU(ctx, s.seus, s.sources, req.SEUName)
	if err != nil {
		return nil, err
	}
	if req.EnergySource != "" && req.EnergySource != src.Name {
		return nil, apperrors.Validation("SEU %q is metered on %s, not %s", seu.Name, src.Name, req.EnergySource)
	}

	from, to := req.PeriodStart, req.PeriodEnd
	switch {
	case from.IsZero() && to.IsZero():
		if req.BaselineYear == 0 {
			return nil, apperrors.Validation("baseline year or period bounds are required")
		}
		from = time.Date(req.BaselineYear, time.January, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(1, 0, 0)
	case from.IsZero() || to.IsZero():
		return nil, apperrors.Validation("period start and end must both be set")
	}
	year := req.BaselineYear
	if year == 0 {
		year = from.Year()
	}

	target, err := s.registry.Target(src.Name)
	if err != nil {
		return nil, err
	}

	var requested []models.Feature
	explicit := len(req.Features) > 0
	if explicit {
		seen := map[string]bool{}
		for _, name := range req.Features {
			if seen[name] {
				return nil, apperrors.Validation("feature %q requested more than once", name)
			}
			seen[name] = true
		}
		requested, err = s.registry.Resolve(src.Name, req.Features)
		if err != nil {
			return nil, err
		}
		for _, f := range requested {
			if !f.IsRegressor {
				return nil, apperrors.Validation("feature %q is not usable as a regression input", f.Name)
			}
		}
	} else {
		requested, err = s.registry.Candidates(src.Name)
		if err != nil {
			return nil, err
		}
	}
	if len(requested) == 0 {
		return nil, apperrors.Validation("energy source %q has no regression candidate features", src.Name)
	}

	plan, err := s.planner.Build(seu, from, to, append([]models.Feature{target}, requested...))
	if err != nil {
		return nil, err
	}
	rows, err := s.readings.FetchDaily(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(rows) < s.policy.MinTrainingSamples {
		return nil, apperrors.InsufficientData("training window %s to %s yielded %d days of energy readings, need at least %d",
			from.Format("2006-01-02"), to.Format("2006-01-02"), len(rows), s.policy.MinTrainingSamples)
	}

	// Features above the missing-ratio bound are unusable: excluded from
	// auto-selection, fatal when explicitly requested.
	var usable []models.Feature
	for _, f := range requested {
		ratio := missingRatio(rows, f.Name)
		if ratio <= s.policy.MaxMissingRatio {
			usable = append(usable, f)
			continue
		}
		if explicit {
			return nil, apperrors.InsufficientData("feature %q is missing on %.0f%% of days in the training window (limit %.0f%%)",
				f.Name, ratio*100, s.policy.MaxMissingRatio*100)
		}
		s.logger.Info("excluding sparse feature from auto-selection",
			zap.String("seu", seu.Name),
			zap.String("feature", f.Name),
			zap.Float64("missing_ratio", ratio))
	}
	if len(usable) == 0 {
		return nil, apperrors.InsufficientData("no candidate feature has enough readings in the training window")
	}

	var chosen []models.Feature
	var model *regression.Model
	if explicit {
		chosen = usable
		model, err = s.fitSubset(rows, chosen)
	} else {
		chosen, model, err = s.autoSelect(rows, usable)
	}
	if err != nil {
		return nil, err
	}

	b := &models.Baseline{
		SEUID:        seu.ID,
		BaselineYear: year,
		PeriodStart:  from,
		PeriodEnd:    to,
		Intercept:    model.Intercept,
		FeatureNames: make([]string, len(chosen)),
		Coefficients: make(map[string]float64, len(chosen)),
		FeatureMeans: make(map[string]float64, len(chosen)),
		RSquared:     model.RSquared,
		RMSE:         model.RMSE,
		SampleCount:  model.N,
	}
	for i, f := range chosen {
		b.FeatureNames[i] = f.Name
		b.Coefficients[f.Name] = model.Coefficients[i]
		b.FeatureMeans[f.Name] = model.Means[i]
	}
	b.Formula = models.RenderFormula(b.Intercept, b.FeatureNames, b.Coefficients)

	b.TotalEnergyKWh = sumColumn(rows, models.TargetFeature)
	if totalProduction := sumColumn(rows, models.ProductionFeature); totalProduction > 0 {
		b.TotalProduction = totalProduction
		sec := b.TotalEnergyKWh / totalProduction
		b.SEC = &sec
	}

	if err := s.baselines.Insert(ctx, b); err != nil {
		return nil, err
	}
	s.cache.InvalidateBaseline(ctx, seu.ID)

	metrics.BaselinesTrained.WithLabelValues(src.Name).Inc()
	metrics.TrainingDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("baseline trained",
		zap.String("seu", seu.Name),
		zap.String("energy_source", src.Name),
		zap.Int("baseline_year", year),
		zap.Strings("features", b.FeatureNames),
		zap.Float64("r_squared", b.RSquared),
		zap.Float64("rmse", b.RMSE),
		zap.Int("samples", b.SampleCount))
	return b, nil
}

// autoSelect picks the feature subset maximizing R-squared: every single
// feature, a greedy forward expansion from the best single, and the full
// usable set. Subsets that cannot fit (too few complete days, degenerate
// matrix) are skipped, not fatal.
func (s *baselineService) autoSelect(rows []features.DayRow, usable []models.Feature) ([]models.Feature, *regression.Model, error) {
	var bestFeats []models.Feature
	var bestModel *regression.Model
	consider := func(feats []models.Feature) {
		model, err := s.fitSubset(rows, feats)
		if err != nil {
			return
		}
		if bestModel == nil || model.RSquared > bestModel.RSquared {
			bestFeats, bestModel = feats, model
		}
	}

	for i := range usable {
		consider(usable[i : i+1])
	}

	if bestModel != nil && len(usable) > 1 {
		current := append([]models.Feature{}, bestFeats...)
		for {
			improved := false
			for _, f := range usable {
				if containsFeature(current, f.Name) {
					continue
				}
				cand := append(append([]models.Feature{}, current...), f)
				model, err := s.fitSubset(rows, cand)
				if err != nil {
					continue
				}
				if model.RSquared > bestModel.RSquared {
					bestFeats, bestModel = cand, model
					current = cand
					improved = true
				}
			}
			if !improved {
				break
			}
		}
	}

	if len(usable) > 1 {
		consider(usable)
	}

	if bestModel == nil {
		return nil, nil, apperrors.InsufficientData("no feature subset produced a valid fit over the training window")
	}
	return bestFeats, bestModel, nil
}

// fitSubset fits OLS over the days where the energy target and every subset
// feature are present. Days with a missing driver are dropped for this
// subset, never zero-filled.
func (s *baselineService) fitSubset(rows []features.DayRow, feats []models.Feature) (*regression.Model, error) {
	var xs [][]float64
	var ys []float64
	for _, row := range rows {
		target := row.Values[models.TargetFeature]
		if target == nil {
			continue
		}
		x := make([]float64, 0, len(feats))
		complete := true
		for _, f := range feats {
			v := row.Values[f.Name]
			if v == nil {
				complete = false
				break
			}
			x = append(x, *v)
		}
		if !complete {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, *target)
	}
	if len(xs) < s.policy.MinTrainingSamples {
		return nil, apperrors.InsufficientData("only %d complete days for features [%s], need at least %d",
			len(xs), strings.Join(featureNames(feats), ", "), s.policy.MinTrainingSamples)
	}
	return regression.Fit(xs, ys)
}

func (s *baselineService) Predict(ctx context.Context, req PredictRequest) (*Prediction, error) {
	seu, err := s.seus.GetByName(ctx, req.Identifier)
	if apperrors.IsNotFound(err) && req.EnergySource != "" {
		seu, err = s.seus.GetByEquipment(ctx, req.Identifier, req.EnergySource)
	}
	if err != nil {
		return nil, err
	}

	b, err := s.activeBaseline(ctx, seu.ID)
	if err != nil {
		return nil, err
	}

	y, err := b.Predict(req.Values)
	if err != nil {
		return nil, apperrors.ValidationWithAlternatives(err.Error(), b.FeatureNames)
	}

	return &Prediction{
		SEUID:        seu.ID,
		SEUName:      seu.Name,
		BaselineID:   b.ID,
		BaselineYear: b.BaselineYear,
		PredictedKWh: y,
		Formula:      b.Formula,
		Summary:      predictionSummary(seu.Name, y, b),
	}, nil
}

func (s *baselineService) GetActive(ctx context.Context, seuName string) (*models.Baseline, error) {
	seu, err := s.seus.GetByName(ctx, seuName)
	if err != nil {
		return nil, err
	}
	return s.activeBaseline(ctx, seu.ID)
}

func (s *baselineService) History(ctx context.Context, seuName string) ([]*models.Baseline, error) {
	seu, err := s.seus.GetByName(ctx, seuName)
	if err != nil {
		return nil, err
	}
	return s.baselines.ListBySEU(ctx, seu.ID)
}

// activeBaseline is the cache-aware active-baseline lookup shared by every
// read path.
func (s *baselineService) activeBaseline(ctx context.Context, seuID uuid.UUID) (*models.Baseline, error) {
	if b := s.cache.GetBaseline(ctx, seuID); b != nil {
		return b, nil
	}
	b, err := s.baselines.GetActive(ctx, seuID)
	if err != nil {
		return nil, err
	}
	s.cache.SetBaseline(ctx, b)
	return b, nil
}

func missingRatio(rows []features.DayRow, name string) float64 {
	if len(rows) == 0 {
		return 1
	}
	missing := 0
	for _, row := range rows {
		if row.Values[name] == nil {
			missing++
		}
	}
	return float64(missing) / float64(len(rows))
}

func sumColumn(rows []features.DayRow, name string) float64 {
	total := 0.0
	for _, row := range rows {
		if v := row.Values[name]; v != nil {
			total += *v
		}
	}
	return total
}

func containsFeature(feats []models.Feature, name string) bool {
	for _, f := range feats {
		if f.Name == name {
			return true
		}
	}
	return false
}

func featureNames(feats []models.Feature) []string {
	names := make([]string, len(feats))
	for i, f := range feats {
		names[i] = f.Name
	}
	return names
}
