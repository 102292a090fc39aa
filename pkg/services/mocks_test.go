package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/config"
	"github.com/enmetrica/enpi-engine/pkg/features"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// Shared fixtures and configurable repository stubs for the service tests.
// Each stub returns its err field when set, captures the last request, and
// otherwise serves the fixtures it was loaded with.

func fv(v float64) *float64 { return &v }

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
		ExcellentMaxPct:    -10,
		OnTrackMaxPct:      2,
		AttentionMaxPct:    10,
		MinTrainingSamples: 7,
		MaxMissingRatio:    0.5,
		DegreeDayBaseC:     18,
		ProgressCapPct:     999.99,
		MinCoverageRatio:   0.1,
	}
}

func testOps() config.OperationsConfig {
	return config.OperationsConfig{
		OperatingStartHour: 6,
		OperatingEndHour:   22,
		WorkingDays:        6,
		IdleLoadFraction:   0.3,
		IdleMinShare:       0.2,
		OffHoursMinShare:   0.15,
		DriftSignificance:  0.05,
		ScanConcurrency:    2,
	}
}

func testBands() models.StatusPolicy {
	return models.StatusPolicy{ExcellentMax: -10, OnTrackMax: 2, AttentionMax: 10}
}

func noCache() *Cache {
	return NewCache(nil, 0, 0, zap.NewNop())
}

// testRegistry builds an electricity catalog with a production and a
// temperature driver, the same shape the seed migrations install.
func testRegistry(t *testing.T) *features.Registry {
	t.Helper()
	reg, err := features.NewRegistry([]models.Feature{
		{
			EnergySource:      "electricity",
			Name:              models.TargetFeature,
			SourceTable:       "energy_readings",
			SourceColumn:      "kwh",
			DataType:          "numeric",
			Aggregation:       models.AggregationSum,
			ScopedToEquipment: true,
		},
		{
			EnergySource:      "electricity",
			Name:              models.ProductionFeature,
			SourceTable:       "production_logs",
			SourceColumn:      "units",
			DataType:          "numeric",
			Aggregation:       models.AggregationSum,
			IsRegressor:       true,
			ScopedToEquipment: true,
		},
		{
			EnergySource: "electricity",
			Name:         "avg_temperature_c",
			SourceTable:  "weather_data",
			SourceColumn: "temperature_c",
			DataType:     "numeric",
			Aggregation:  models.AggregationAvg,
			IsRegressor:  true,
		},
	})
	require.NoError(t, err)
	return reg
}

func testPlanner() *features.PlanBuilder {
	return &features.PlanBuilder{DegreeDayBaseC: 18}
}

func testSEU(src *models.EnergySource) *models.SEU {
	return &models.SEU{
		ID:             uuid.New(),
		Factory:        "linz",
		Name:           "compressor_station",
		EnergySourceID: src.ID,
		EnergySource:   src.Name,
		EquipmentIDs:   []string{"comp-01", "comp-02"},
		RatedPowerKW:   100,
		IsActive:       true,
	}
}

func testSource() *models.EnergySource {
	return &models.EnergySource{
		ID:           uuid.New(),
		Name:         "electricity",
		Unit:         "kWh",
		CostPerUnit:  decimal.NewFromFloat(0.25),
		CarbonFactor: 0.4,
	}
}

// makeDays builds one aggregated row per day starting at from.
func makeDays(from time.Time, n int, gen func(i int) map[string]*float64) []features.DayRow {
	rows := make([]features.DayRow, n)
	for i := range rows {
		rows[i] = features.DayRow{Day: from.AddDate(0, 0, i), Values: gen(i)}
	}
	return rows
}

type stubSEURepo struct {
	byName      map[string]*models.SEU
	byEquipment map[string]*models.SEU
	byFactory   []*models.SEU
	err         error

	lastFactory string
}

func (m *stubSEURepo) Create(ctx context.Context, seu *models.SEU) error { return m.err }

func (m *stubSEURepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SEU, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, seu := range m.byName {
		if seu.ID == id {
			return seu, nil
		}
	}
	return nil, apperrors.NotFound("SEU %s not found", id)
}

func (m *stubSEURepo) GetByName(ctx context.Context, name string) (*models.SEU, error) {
	if m.err != nil {
		return nil, m.err
	}
	if seu, ok := m.byName[name]; ok {
		return seu, nil
	}
	return nil, apperrors.NotFound("SEU %q not found", name)
}

func (m *stubSEURepo) GetByEquipment(ctx context.Context, equipmentID, energySource string) (*models.SEU, error) {
	if m.err != nil {
		return nil, m.err
	}
	if seu, ok := m.byEquipment[equipmentID+"/"+energySource]; ok {
		return seu, nil
	}
	return nil, apperrors.NotFound("no SEU backs equipment %q on %s", equipmentID, energySource)
}

func (m *stubSEURepo) ListByFactory(ctx context.Context, factory string, onlyActive bool) ([]*models.SEU, error) {
	m.lastFactory = factory
	if m.err != nil {
		return nil, m.err
	}
	return m.byFactory, nil
}

func (m *stubSEURepo) ListNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	return names, m.err
}

var _ repositories.SEURepository = (*stubSEURepo)(nil)

type stubSourceRepo struct {
	sources []*models.EnergySource
	err     error
}

func (m *stubSourceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EnergySource, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, src := range m.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return nil, apperrors.NotFound("energy source %s not found", id)
}

func (m *stubSourceRepo) GetByName(ctx context.Context, name string) (*models.EnergySource, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, src := range m.sources {
		if src.Name == name {
			return src, nil
		}
	}
	return nil, apperrors.NotFound("energy source %q not found", name)
}

func (m *stubSourceRepo) List(ctx context.Context) ([]*models.EnergySource, error) {
	return m.sources, m.err
}

var _ repositories.EnergySourceRepository = (*stubSourceRepo)(nil)

type stubBaselineRepo struct {
	active        *models.Baseline
	activeForYear *models.Baseline
	history       []*models.Baseline
	insertErr     error
	err           error

	inserted []*models.Baseline
}

func (m *stubBaselineRepo) Insert(ctx context.Context, b *models.Baseline) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	b.ID = uuid.New()
	b.IsActive = true
	m.inserted = append(m.inserted, b)
	return nil
}

func (m *stubBaselineRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Baseline, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.active, nil
}

func (m *stubBaselineRepo) GetActive(ctx context.Context, seuID uuid.UUID) (*models.Baseline, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.active == nil {
		return nil, apperrors.NotFound("SEU %s has no active baseline", seuID)
	}
	return m.active, nil
}

func (m *stubBaselineRepo) GetActiveForYear(ctx context.Context, seuID uuid.UUID, year int) (*models.Baseline, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.activeForYear == nil {
		return nil, apperrors.NotFound("SEU %s has no active baseline for %d", seuID, year)
	}
	return m.activeForYear, nil
}

func (m *stubBaselineRepo) ListBySEU(ctx context.Context, seuID uuid.UUID) ([]*models.Baseline, error) {
	return m.history, m.err
}

var _ repositories.BaselineRepository = (*stubBaselineRepo)(nil)

type stubPerformanceRepo struct {
	records        []*models.PerformanceRecord
	savingsForYear float64
	upsertErr      error
	err            error

	upserted []*models.PerformanceRecord
}

func (m *stubPerformanceRepo) Upsert(ctx context.Context, record *models.PerformanceRecord) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	record.ID = uuid.New()
	m.upserted = append(m.upserted, record)
	return nil
}

func (m *stubPerformanceRepo) GetByWindow(ctx context.Context, seuID uuid.UUID, periodStart, periodEnd time.Time) (*models.PerformanceRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.records) == 0 {
		return nil, apperrors.NotFound("no record for that window")
	}
	return m.records[0], nil
}

func (m *stubPerformanceRepo) ListForPeriod(ctx context.Context, seuIDs []uuid.UUID, from, to time.Time) ([]*models.PerformanceRecord, error) {
	return m.records, m.err
}

func (m *stubPerformanceRepo) SumSavingsForYear(ctx context.Context, seuID uuid.UUID, year int) (float64, error) {
	return m.savingsForYear, m.err
}

var _ repositories.PerformanceRepository = (*stubPerformanceRepo)(nil)

type stubTargetRepo struct {
	byYear map[int]*models.Target
	list   []*models.Target
	err    error

	created         *models.Target
	updatedProgress *models.Target
}

func (m *stubTargetRepo) Create(ctx context.Context, target *models.Target) error {
	if m.err != nil {
		return m.err
	}
	target.ID = uuid.New()
	m.created = target
	return nil
}

func (m *stubTargetRepo) GetBySEUYear(ctx context.Context, seuID uuid.UUID, targetYear int) (*models.Target, error) {
	if m.err != nil {
		return nil, m.err
	}
	if target, ok := m.byYear[targetYear]; ok {
		return target, nil
	}
	return nil, apperrors.NotFound("no target for %d", targetYear)
}

func (m *stubTargetRepo) ListBySEU(ctx context.Context, seuID uuid.UUID) ([]*models.Target, error) {
	return m.list, m.err
}

func (m *stubTargetRepo) UpdateProgress(ctx context.Context, target *models.Target) error {
	m.updatedProgress = target
	return m.err
}

var _ repositories.TargetRepository = (*stubTargetRepo)(nil)

type stubPlanRepo struct {
	plans  map[uuid.UUID]*models.ActionPlan
	list   []*models.ActionPlan
	counts map[models.ActionPlanStatus]int
	err    error

	created    *models.ActionPlan
	updated    *models.ActionPlan
	lastFilter repositories.ActionPlanFilter
}

func (m *stubPlanRepo) Create(ctx context.Context, plan *models.ActionPlan) error {
	if m.err != nil {
		return m.err
	}
	plan.ID = uuid.New()
	m.created = plan
	return nil
}

func (m *stubPlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error) {
	if m.err != nil {
		return nil, m.err
	}
	if plan, ok := m.plans[id]; ok {
		return plan, nil
	}
	return nil, apperrors.NotFound("action plan %s not found", id)
}

func (m *stubPlanRepo) Update(ctx context.Context, plan *models.ActionPlan) error {
	m.updated = plan
	return m.err
}

func (m *stubPlanRepo) List(ctx context.Context, filter repositories.ActionPlanFilter) ([]*models.ActionPlan, error) {
	m.lastFilter = filter
	return m.list, m.err
}

func (m *stubPlanRepo) CountByStatus(ctx context.Context, factory string) (map[models.ActionPlanStatus]int, error) {
	return m.counts, m.err
}

var _ repositories.ActionPlanRepository = (*stubPlanRepo)(nil)

// stubReadingsRepo serves canned aggregation results. Coverage defaults to
// a fully observed window unless observedHours is set.
type stubReadingsRepo struct {
	daily         []features.DayRow
	hourly        []features.HourPoint
	observedHours float64
	dailyErr      error
	coverageErr   error
	hourlyErr     error

	lastDailyPlan  features.QueryPlan
	lastHourlyPlan features.QueryPlan
}

func (m *stubReadingsRepo) FetchDaily(ctx context.Context, plan features.QueryPlan) ([]features.DayRow, error) {
	m.lastDailyPlan = plan
	if m.dailyErr != nil {
		return nil, m.dailyErr
	}
	return m.daily, nil
}

func (m *stubReadingsRepo) FetchCoverage(ctx context.Context, plan features.QueryPlan, periodHours float64) (features.Coverage, error) {
	if m.coverageErr != nil {
		return features.Coverage{}, m.coverageErr
	}
	observed := m.observedHours
	if observed == 0 {
		observed = periodHours
	}
	return features.Coverage{ObservedHours: observed, PeriodHours: periodHours}, nil
}

func (m *stubReadingsRepo) FetchHourly(ctx context.Context, plan features.QueryPlan) ([]features.HourPoint, error) {
	m.lastHourlyPlan = plan
	if m.hourlyErr != nil {
		return nil, m.hourlyErr
	}
	return m.hourly, nil
}

var _ repositories.ReadingsRepository = (*stubReadingsRepo)(nil)
