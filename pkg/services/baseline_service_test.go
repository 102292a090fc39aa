package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

func newBaselineFixture(t *testing.T) (*baselineService, *stubSEURepo, *stubBaselineRepo, *stubReadingsRepo, *models.SEU) {
	t.Helper()
	src := testSource()
	seu := testSEU(src)
	seus := &stubSEURepo{byName: map[string]*models.SEU{seu.Name: seu}}
	sources := &stubSourceRepo{sources: []*models.EnergySource{src}}
	baselines := &stubBaselineRepo{}
	readings := &stubReadingsRepo{}
	svc := NewBaselineService(seus, sources, baselines, readings,
		testRegistry(t), testPlanner(), testPolicy(), noCache(), zap.NewNop()).(*baselineService)
	return svc, seus, baselines, readings, seu
}

func trainWindow() (time.Time, time.Time) {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
}

func TestTrain_AutoSelectsBestSubset(t *testing.T) {
	svc, _, baselines, readings, _ := newBaselineFixture(t)
	from, to := trainWindow()

	// Energy is exactly linear in production; temperature carries no
	// signal. Whatever subset wins, the fitted model must recover the
	// generating relationship.
	readings.daily = makeDays(from, 10, func(i int) map[string]*float64 {
		prod := float64(10 + i)
		return map[string]*float64{
			models.TargetFeature:     fv(100 + 2*prod),
			models.ProductionFeature: fv(prod),
			"avg_temperature_c":      fv(15 + float64(i%5)),
		}
	})

	b, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
	})
	require.NoError(t, err)

	assert.Contains(t, b.FeatureNames, models.ProductionFeature)
	assert.InDelta(t, 100, b.Intercept, 1e-6)
	assert.InDelta(t, 2, b.Coefficients[models.ProductionFeature], 1e-6)
	assert.InDelta(t, 1, b.RSquared, 1e-9)
	assert.Equal(t, 10, b.SampleCount)
	assert.Equal(t, 2025, b.BaselineYear)
	assert.Contains(t, b.Formula, models.TargetFeature+" =")

	require.Len(t, baselines.inserted, 1)
	assert.Equal(t, b, baselines.inserted[0])
}

func TestTrain_ComputesTrainingTotalsAndSEC(t *testing.T) {
	svc, _, _, readings, _ := newBaselineFixture(t)
	from, to := trainWindow()
	readings.daily = makeDays(from, 10, func(i int) map[string]*float64 {
		temp := 10 + float64(i)
		return map[string]*float64{
			models.TargetFeature:     fv(150 + 5*temp),
			models.ProductionFeature: fv(50 + float64(i)),
			"avg_temperature_c":      fv(temp),
		}
	})

	b, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
		Features: []string{"avg_temperature_c"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 2225, b.TotalEnergyKWh, 1e-9) // 150x10 + 5x(10+...+19)
	assert.InDelta(t, 545, b.TotalProduction, 1e-9) // 50+51+...+59
	require.NotNil(t, b.SEC)
	assert.InDelta(t, 2225.0/545.0, *b.SEC, 1e-9)
}

func TestTrain_ExplicitFeaturesAreHonored(t *testing.T) {
	svc, _, _, readings, _ := newBaselineFixture(t)
	from, to := trainWindow()
	readings.daily = makeDays(from, 10, func(i int) map[string]*float64 {
		temp := 5 + float64(i)
		return map[string]*float64{
			models.TargetFeature:     fv(50 + 3*temp),
			models.ProductionFeature: fv(float64(100 + i)),
			"avg_temperature_c":      fv(temp),
		}
	})

	b, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
		Features: []string{"avg_temperature_c"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"avg_temperature_c"}, b.FeatureNames)
	assert.InDelta(t, 3, b.Coefficients["avg_temperature_c"], 1e-6)
	assert.InDelta(t, 50, b.Intercept, 1e-6)
}

func TestTrain_TooFewDaysIsInsufficientData(t *testing.T) {
	svc, _, _, readings, _ := newBaselineFixture(t)
	from, to := trainWindow()
	readings.daily = makeDays(from, 5, func(i int) map[string]*float64 {
		return map[string]*float64{
			models.TargetFeature:     fv(100),
			models.ProductionFeature: fv(10),
		}
	})

	_, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientData, apperrors.KindOf(err))
}

func TestTrain_SparseFeatureExcludedFromAutoSelection(t *testing.T) {
	svc, _, _, readings, _ := newBaselineFixture(t)
	from, to := trainWindow()

	// Temperature is missing on 6 of 10 days, above the 50% bound: auto
	// selection drops it and trains on production alone.
	readings.daily = makeDays(from, 10, func(i int) map[string]*float64 {
		prod := float64(10 + i)
		values := map[string]*float64{
			models.TargetFeature:     fv(100 + 2*prod),
			models.ProductionFeature: fv(prod),
		}
		if i < 4 {
			values["avg_temperature_c"] = fv(15)
		} else {
			values["avg_temperature_c"] = nil
		}
		return values
	})

	b, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{models.ProductionFeature}, b.FeatureNames)
}

func TestTrain_SparseFeatureExplicitlyRequestedFails(t *testing.T) {
	svc, _, _, readings, _ := newBaselineFixture(t)
	from, to := trainWindow()
	readings.daily = makeDays(from, 10, func(i int) map[string]*float64 {
		values := map[string]*float64{
			models.TargetFeature:     fv(100),
			"avg_temperature_c":      nil,
			models.ProductionFeature: fv(10),
		}
		if i < 4 {
			values["avg_temperature_c"] = fv(15)
		}
		return values
	})

	_, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
		Features: []string{"avg_temperature_c"},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientData, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "missing on")
}

func TestTrain_EnergySourceMismatchRejected(t *testing.T) {
	svc, _, _, _, _ := newBaselineFixture(t)
	from, to := trainWindow()

	_, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", EnergySource: "natural_gas",
		PeriodStart: from, PeriodEnd: to,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "metered on electricity")
}

func TestTrain_PeriodDefaultsFromBaselineYear(t *testing.T) {
	svc, _, _, readings, _ := newBaselineFixture(t)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	readings.daily = makeDays(start, 12, func(i int) map[string]*float64 {
		prod := float64(20 + i)
		return map[string]*float64{
			models.TargetFeature:     fv(10 + prod),
			models.ProductionFeature: fv(prod),
			"avg_temperature_c":      fv(8),
		}
	})

	b, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", BaselineYear: 2024,
	})
	require.NoError(t, err)
	assert.Equal(t, start, b.PeriodStart)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), b.PeriodEnd)
	assert.Equal(t, 2024, b.BaselineYear)
}

func TestTrain_MissingBoundsAndYearRejected(t *testing.T) {
	svc, _, _, _, _ := newBaselineFixture(t)

	_, err := svc.Train(context.Background(), TrainRequest{SEUName: "compressor_station"})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))

	_, err = svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both be set")
}

func TestTrain_DuplicateFeatureRejected(t *testing.T) {
	svc, _, _, _, _ := newBaselineFixture(t)
	from, to := trainWindow()

	_, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "compressor_station", PeriodStart: from, PeriodEnd: to,
		Features: []string{"avg_temperature_c", "avg_temperature_c"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestTrain_UnknownSEU(t *testing.T) {
	svc, _, _, _, _ := newBaselineFixture(t)
	from, to := trainWindow()

	_, err := svc.Train(context.Background(), TrainRequest{
		SEUName: "nonexistent", PeriodStart: from, PeriodEnd: to,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func activeBaselineFixture(seu *models.SEU) *models.Baseline {
	return &models.Baseline{
		SEUID:        seu.ID,
		BaselineYear: 2025,
		Intercept:    100,
		FeatureNames: []string{models.ProductionFeature},
		Coefficients: map[string]float64{models.ProductionFeature: 2},
		FeatureMeans: map[string]float64{models.ProductionFeature: 15},
		RSquared:     0.95,
		Formula:      "energy_kwh = 100 + 2 x production_units",
		IsActive:     true,
	}
}

func TestPredict_EvaluatesActiveBaseline(t *testing.T) {
	svc, _, baselines, _, seu := newBaselineFixture(t)
	baselines.active = activeBaselineFixture(seu)

	p, err := svc.Predict(context.Background(), PredictRequest{
		Identifier: "compressor_station",
		Values:     map[string]float64{models.ProductionFeature: 25},
	})
	require.NoError(t, err)

	assert.InDelta(t, 150, p.PredictedKWh, 1e-9)
	assert.Equal(t, seu.ID, p.SEUID)
	assert.Equal(t, 2025, p.BaselineYear)
	assert.NotEmpty(t, p.Summary)
}

func TestPredict_EquipmentFallback(t *testing.T) {
	svc, seus, baselines, _, seu := newBaselineFixture(t)
	baselines.active = activeBaselineFixture(seu)
	seus.byEquipment = map[string]*models.SEU{"comp-01/electricity": seu}

	p, err := svc.Predict(context.Background(), PredictRequest{
		Identifier:   "comp-01",
		EnergySource: "electricity",
		Values:       map[string]float64{models.ProductionFeature: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, "compressor_station", p.SEUName)
	assert.InDelta(t, 120, p.PredictedKWh, 1e-9)
}

func TestPredict_MissingFeatureListsAlternatives(t *testing.T) {
	svc, _, baselines, _, seu := newBaselineFixture(t)
	baselines.active = activeBaselineFixture(seu)

	_, err := svc.Predict(context.Background(), PredictRequest{
		Identifier: "compressor_station",
		Values:     map[string]float64{"avg_temperature_c": 20},
	})
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Equal(t, []string{models.ProductionFeature}, appErr.Alternatives)
}

func TestGetActive_FallsThroughToStore(t *testing.T) {
	svc, _, baselines, _, seu := newBaselineFixture(t)
	baselines.active = activeBaselineFixture(seu)

	b, err := svc.GetActive(context.Background(), "compressor_station")
	require.NoError(t, err)
	assert.Equal(t, baselines.active, b)

	baselines.active = nil
	_, err = svc.GetActive(context.Background(), "compressor_station")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestHistory_ReturnsAllRows(t *testing.T) {
	svc, _, baselines, _, seu := newBaselineFixture(t)
	baselines.history = []*models.Baseline{
		activeBaselineFixture(seu),
		{SEUID: seu.ID, BaselineYear: 2024, IsActive: false},
	}

	history, err := svc.History(context.Background(), "compressor_station")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
