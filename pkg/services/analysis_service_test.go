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

// stubPerformanceSvc hands Analyze a pre-built computation so the
// attribution logic can be pinned against exact numbers.
type stubPerformanceSvc struct {
	comp *Computation
	err  error

	lastFrom, lastTo time.Time
}

func (m *stubPerformanceSvc) Track(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	return nil, apperrors.Internal(nil)
}

func (m *stubPerformanceSvc) ComputeRecord(ctx context.Context, seuName string, from, to time.Time) (*Computation, error) {
	m.lastFrom, m.lastTo = from, to
	if m.err != nil {
		return nil, m.err
	}
	return m.comp, nil
}

var _ PerformanceService = (*stubPerformanceSvc)(nil)

// analysisComputation builds a one-day computation with two drivers:
// production shifted +5 units (coefficient 2 -> +10 kWh) and temperature
// shifted -1 degree (coefficient 5 -> -5 kWh), against a 30 kWh deviation.
func analysisComputation(status models.ISOStatus, deviationKWh float64) *Computation {
	src := testSource()
	seu := testSEU(src)
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	expected := 120.0
	return &Computation{
		SEU:    seu,
		Source: src,
		Baseline: &models.Baseline{
			SEUID:        seu.ID,
			BaselineYear: 2025,
			Intercept:    100,
			FeatureNames: []string{models.ProductionFeature, "avg_temperature_c"},
			Coefficients: map[string]float64{models.ProductionFeature: 2, "avg_temperature_c": 5},
			FeatureMeans: map[string]float64{models.ProductionFeature: 15, "avg_temperature_c": 10},
		},
		Record: models.PerformanceRecord{
			SEUID:        seu.ID,
			PeriodStart:  day,
			PeriodEnd:    day.AddDate(0, 0, 1),
			ActualKWh:    expected + deviationKWh,
			ExpectedKWh:  expected,
			DeviationKWh: deviationKWh,
			DeviationPct: deviationKWh / expected * 100,
			ISOStatus:    status,
			Confidence:   1,
		},
		DriverMeans: map[string]float64{
			models.ProductionFeature: 20,
			"avg_temperature_c":      9,
		},
		ObservedDays: 1,
	}
}

func newAnalysisFixture(comp *Computation) (AnalysisService, *stubPerformanceSvc) {
	perf := &stubPerformanceSvc{comp: comp}
	return NewAnalysisService(perf, zap.NewNop()), perf
}

func TestAnalyze_FutureDateRejected(t *testing.T) {
	svc, _ := newAnalysisFixture(nil)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Now().UTC().AddDate(0, 0, 2),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "in the future")
}

func TestAnalyze_WindowIsOneCalendarDay(t *testing.T) {
	comp := analysisComputation(models.StatusOnTrack, 1)
	svc, perf := newAnalysisFixture(comp)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Date(2025, 6, 2, 14, 37, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), perf.lastFrom)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), perf.lastTo)
}

func TestAnalyze_EnergySourceMismatch(t *testing.T) {
	comp := analysisComputation(models.StatusOnTrack, 1)
	svc, _ := newAnalysisFixture(comp)

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName:      "compressor_station",
		EnergySource: "natural_gas",
		Date:         time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metered on electricity")
}

func TestAnalyze_RanksCausesByAbsoluteImpact(t *testing.T) {
	comp := analysisComputation(models.StatusCritical, 30)
	svc, _ := newAnalysisFixture(comp)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, a.Drivers, 2)
	assert.InDelta(t, 10, a.Drivers[0].ContributionKWh, 1e-9)
	assert.InDelta(t, -5, a.Drivers[1].ContributionKWh, 1e-9)

	// Residual 30 > production 10 > temperature 5, ranked 1..3 with the
	// residual always present.
	require.Len(t, a.RootCauses, 3)
	assert.True(t, a.RootCauses[0].Residual)
	assert.InDelta(t, 30, a.RootCauses[0].ImpactKWh, 1e-9)
	assert.Equal(t, 1, a.RootCauses[0].Rank)
	assert.Equal(t, models.ProductionFeature, a.RootCauses[1].DriverName)
	assert.Equal(t, "avg_temperature_c", a.RootCauses[2].DriverName)
	assert.InDelta(t, 30.0/45.0*100, a.RootCauses[0].ImpactPct, 1e-6)
	assert.Equal(t, "high", a.RootCauses[0].Confidence)

	assert.InDelta(t, 30, a.ResidualKWh, 1e-9)
	assert.InDelta(t, 12, a.CarbonImpactKgCO2, 1e-9) // 30 kWh x 0.4 kg/kWh
	assert.NotEmpty(t, a.Summary)
}

func TestAnalyze_NoRecommendationsWithinTolerance(t *testing.T) {
	comp := analysisComputation(models.StatusOnTrack, 1)
	svc, _ := newAnalysisFixture(comp)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, a.Recommendations)
}

func TestAnalyze_NoRecommendationsForUnderConsumption(t *testing.T) {
	// A negative deviation classified badly can only come from band
	// misconfiguration; there is still nothing to fix.
	comp := analysisComputation(models.StatusRequiresAttention, -20)
	svc, _ := newAnalysisFixture(comp)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, a.Recommendations)
}

func TestAnalyze_CriticalDeviationSuggestsActionPlan(t *testing.T) {
	comp := analysisComputation(models.StatusCritical, 30)
	svc, _ := newAnalysisFixture(comp)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// The residual dominates, so the efficiency-inspection rule set
	// applies in full.
	require.Len(t, a.Recommendations, 3)
	for _, rec := range a.Recommendations {
		assert.Equal(t, "high", rec.Priority)
	}
	assert.True(t, a.Recommendations[0].SuggestActionPlan)
	assert.False(t, a.Recommendations[1].SuggestActionPlan)

	// 30 kWh excess over one day, annualized at the rule's recovery share.
	assert.InDelta(t, 30*365*0.6, a.Recommendations[0].EstimatedKWh, 1e-6)
	assert.False(t, a.Recommendations[0].EstimatedCost.IsZero())
}

func TestAnalyze_AttentionTrimsRuleSet(t *testing.T) {
	comp := analysisComputation(models.StatusRequiresAttention, 15)
	svc, _ := newAnalysisFixture(comp)

	a, err := svc.Analyze(context.Background(), AnalyzeRequest{
		SEUName: "compressor_station",
		Date:    time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, a.Recommendations, 2)
	for _, rec := range a.Recommendations {
		assert.Equal(t, "medium", rec.Priority)
		assert.False(t, rec.SuggestActionPlan)
	}
}
