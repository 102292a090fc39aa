//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/testhelpers"
)

// baselineTestContext holds shared fixtures for baseline repository tests.
type baselineTestContext struct {
	t       *testing.T
	testDB  *testhelpers.TestDB
	repo    BaselineRepository
	seuRepo SEURepository
	seu     *models.SEU
}

func setupBaselineTest(t *testing.T) *baselineTestContext {
	testDB := testhelpers.GetTestDB(t)
	tc := &baselineTestContext{
		t:       t,
		testDB:  testDB,
		repo:    NewBaselineRepository(testDB.DB),
		seuRepo: NewSEURepository(testDB.DB),
	}
	tc.seu = tc.createTestSEU("baseline-repo-seu-" + uuid.NewString()[:8])
	t.Cleanup(tc.cleanup)
	return tc
}

func (tc *baselineTestContext) createTestSEU(name string) *models.SEU {
	tc.t.Helper()
	ctx := context.Background()

	srcRepo := NewEnergySourceRepository(tc.testDB.DB)
	src, err := srcRepo.GetByName(ctx, models.SourceElectricity)
	if err != nil {
		tc.t.Fatalf("failed to load seeded electricity source: %v", err)
	}

	seu := &models.SEU{
		Factory:        "test-factory",
		Name:           name,
		EnergySourceID: src.ID,
		EquipmentIDs:   []string{"TST-001"},
		RatedPowerKW:   120,
		IsActive:       true,
	}
	if err := tc.seuRepo.Create(ctx, seu); err != nil {
		tc.t.Fatalf("failed to create test SEU: %v", err)
	}
	return seu
}

func (tc *baselineTestContext) cleanup() {
	ctx := context.Background()
	_, _ = tc.testDB.DB.Exec(ctx, "DELETE FROM enpi_baselines WHERE seu_id = $1", tc.seu.ID)
	_, _ = tc.testDB.DB.Exec(ctx, "DELETE FROM enpi_seus WHERE id = $1", tc.seu.ID)
}

func (tc *baselineTestContext) newBaseline(year int) *models.Baseline {
	sec := 0.45
	return &models.Baseline{
		SEUID:        tc.seu.ID,
		BaselineYear: year,
		PeriodStart:  time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(year+1, 1, 1, 0, 0, 0, 0, time.UTC),
		Intercept:    120.5,
		FeatureNames: []string{"production_units", "avg_temperature_c"},
		Coefficients: map[string]float64{
			"production_units":  0.42,
			"avg_temperature_c": -3.1,
		},
		FeatureMeans: map[string]float64{
			"production_units":  900,
			"avg_temperature_c": 17.5,
		},
		RSquared:        0.93,
		RMSE:            54.2,
		SampleCount:     312,
		TotalEnergyKWh:  182000,
		TotalProduction: 404000,
		SEC:             &sec,
		Formula:         "energy_kwh = 120.5 + 0.42 x production_units - 3.1 x avg_temperature_c",
	}
}

func TestBaselineRepository_InsertAndGetActive(t *testing.T) {
	tc := setupBaselineTest(t)
	ctx := context.Background()

	b := tc.newBaseline(2024)
	require.NoError(t, tc.repo.Insert(ctx, b))
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.True(t, b.IsActive)

	got, err := tc.repo.GetActiveForYear(ctx, tc.seu.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.InDelta(t, 120.5, got.Intercept, 1e-9)
	assert.Equal(t, []string{"production_units", "avg_temperature_c"}, got.FeatureNames)
	assert.InDelta(t, 0.42, got.Coefficients["production_units"], 1e-9)
	assert.InDelta(t, 17.5, got.FeatureMeans["avg_temperature_c"], 1e-9)
	require.NotNil(t, got.SEC)
	assert.InDelta(t, 0.45, *got.SEC, 1e-9)
}

func TestBaselineRepository_RetrainSupersedes(t *testing.T) {
	tc := setupBaselineTest(t)
	ctx := context.Background()

	first := tc.newBaseline(2024)
	require.NoError(t, tc.repo.Insert(ctx, first))

	second := tc.newBaseline(2024)
	second.Intercept = 99.9
	require.NoError(t, tc.repo.Insert(ctx, second))

	active, err := tc.repo.GetActiveForYear(ctx, tc.seu.ID, 2024)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.InDelta(t, 99.9, active.Intercept, 1e-9)

	// History keeps the superseded row, newest first.
	history, err := tc.repo.ListBySEU(ctx, tc.seu.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
	assert.False(t, history[1].IsActive)
}

func TestBaselineRepository_GetActivePicksNewestAcrossYears(t *testing.T) {
	tc := setupBaselineTest(t)
	ctx := context.Background()

	b2023 := tc.newBaseline(2023)
	require.NoError(t, tc.repo.Insert(ctx, b2023))
	b2024 := tc.newBaseline(2024)
	require.NoError(t, tc.repo.Insert(ctx, b2024))

	active, err := tc.repo.GetActive(ctx, tc.seu.ID)
	require.NoError(t, err)
	assert.Equal(t, b2024.ID, active.ID)
}

func TestBaselineRepository_GetActive_NoneTrained(t *testing.T) {
	tc := setupBaselineTest(t)

	_, err := tc.repo.GetActive(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}
