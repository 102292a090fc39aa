package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

type reportFixture struct {
	svc   ReportService
	seus  *stubSEURepo
	perf  *stubPerformanceRepo
	plans *stubPlanRepo
	src   *models.EnergySource
	seuA  *models.SEU
	seuB  *models.SEU
}

func newReportFixture(t *testing.T) *reportFixture {
	t.Helper()
	src := testSource()
	seuA := testSEU(src)
	seuA.Name = "furnace_line"
	seuB := testSEU(src)
	seuB.Name = "packaging_hall"

	f := &reportFixture{
		seus:  &stubSEURepo{byFactory: []*models.SEU{seuA, seuB}},
		perf:  &stubPerformanceRepo{},
		plans: &stubPlanRepo{counts: map[models.ActionPlanStatus]int{}},
		src:   src,
		seuA:  seuA,
		seuB:  seuB,
	}
	f.svc = NewReportService(f.seus,
		&stubSourceRepo{sources: []*models.EnergySource{src}},
		f.perf, f.plans, testBands(), noCache(), zap.NewNop())
	return f
}

func record(seuID uuid.UUID, expected, actual float64) *models.PerformanceRecord {
	rec := &models.PerformanceRecord{
		SEUID:       seuID,
		ExpectedKWh: expected,
		ActualKWh:   actual,
	}
	if actual < expected {
		rec.SavingsKWh = expected - actual
		rec.SavingsCost = decimal.NewFromFloat(rec.SavingsKWh).Mul(decimal.NewFromFloat(0.25)).Round(2)
	}
	return rec
}

func TestGenerate_AggregatesPerSEUFromTotals(t *testing.T) {
	f := newReportFixture(t)

	// Furnace: -10% then +30% on windows of very different size. Summed
	// totals give +20%; averaging the percentages would claim +10%.
	f.perf.records = []*models.PerformanceRecord{
		record(f.seuA.ID, 100, 90),
		record(f.seuA.ID, 300, 390),
		record(f.seuB.ID, 100, 95),
	}

	report, err := f.svc.Generate(context.Background(), "linz", "2025-Q2")
	require.NoError(t, err)

	require.Len(t, report.SEUs, 2)
	furnace := report.SEUs[0] // worst first
	assert.Equal(t, "furnace_line", furnace.SEUName)
	assert.InDelta(t, 20, furnace.DeviationPct, 1e-9)
	assert.Equal(t, models.StatusCritical, furnace.ISOStatus)
	assert.Equal(t, 2, furnace.RecordCount)

	packaging := report.SEUs[1]
	assert.Equal(t, "packaging_hall", packaging.SEUName)
	assert.InDelta(t, -5, packaging.DeviationPct, 1e-9)
	assert.Equal(t, models.StatusOnTrack, packaging.ISOStatus)

	assert.InDelta(t, 500, report.TotalExpectedKWh, 1e-9)
	assert.InDelta(t, 575, report.TotalActualKWh, 1e-9)
	assert.InDelta(t, 75, report.DeviationKWh, 1e-9)
	assert.InDelta(t, 15, report.DeviationPct, 1e-9)
	assert.Equal(t, models.StatusCritical, report.OverallStatus)

	// Savings: 10 kWh on the furnace's good week, 5 on packaging.
	assert.InDelta(t, 15, report.TotalSavingsKWh, 1e-9)
	assert.InDelta(t, 6, report.CarbonSavedKgCO2, 1e-9) // 15 kWh x 0.4
	assert.Equal(t, "2025-Q2", report.Period.Label)
	assert.NotEmpty(t, report.Summary)
}

func TestGenerate_IncludesActionPlanCounts(t *testing.T) {
	f := newReportFixture(t)
	f.perf.records = []*models.PerformanceRecord{record(f.seuA.ID, 100, 100)}
	f.plans.counts = map[models.ActionPlanStatus]int{
		models.PlanStatusInProgress: 2,
		models.PlanStatusCompleted:  1,
	}

	report, err := f.svc.Generate(context.Background(), "linz", "2025")
	require.NoError(t, err)
	assert.Equal(t, 2, report.ActionPlansByStatus[models.PlanStatusInProgress])
	assert.Equal(t, 1, report.ActionPlansByStatus[models.PlanStatusCompleted])
}

func TestGenerate_NoActiveSEUs(t *testing.T) {
	f := newReportFixture(t)
	f.seus.byFactory = nil

	_, err := f.svc.Generate(context.Background(), "ghost_town", "2025")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Contains(t, err.Error(), "no active SEUs")
}

func TestGenerate_NoRecordsInPeriod(t *testing.T) {
	f := newReportFixture(t)
	f.perf.records = nil

	_, err := f.svc.Generate(context.Background(), "linz", "2025-Q1")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInsufficientData, apperrors.KindOf(err))
}

func TestGenerate_BadPeriodTokenListsExamples(t *testing.T) {
	f := newReportFixture(t)

	_, err := f.svc.Generate(context.Background(), "linz", "Q5-2025")
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.NotEmpty(t, appErr.Alternatives)
}
