package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, -10.0, cfg.Policy.ExcellentMaxPct)
	assert.Equal(t, 2.0, cfg.Policy.OnTrackMaxPct)
	assert.Equal(t, 10.0, cfg.Policy.AttentionMaxPct)
	assert.Equal(t, 7, cfg.Policy.MinTrainingSamples)
	assert.Equal(t, 999.99, cfg.Policy.ProgressCapPct)
	assert.Equal(t, 6, cfg.Operations.OperatingStartHour)
	assert.Equal(t, 22, cfg.Operations.OperatingEndHour)
}

func TestPolicyEnvOverride(t *testing.T) {
	t.Setenv("POLICY_ATTENTION_MAX_PCT", "15")

	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, 15.0, cfg.Policy.AttentionMaxPct)
}

func TestPolicyValidateRejectsOverlappingBands(t *testing.T) {
	p := PolicyConfig{
		ExcellentMaxPct:    5,
		OnTrackMaxPct:      2,
		AttentionMaxPct:    10,
		MinTrainingSamples: 7,
		MaxMissingRatio:    0.5,
		ProgressCapPct:     999.99,
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "excellent_max_pct")
}

func TestPolicyValidateRejectsLowProgressCap(t *testing.T) {
	p := PolicyConfig{
		ExcellentMaxPct:    -10,
		OnTrackMaxPct:      2,
		AttentionMaxPct:    10,
		MinTrainingSamples: 7,
		MaxMissingRatio:    0.5,
		ProgressCapPct:     50,
	}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "progress_cap_pct")
}

func TestOperationsValidateRejectsEmptyWindow(t *testing.T) {
	o := OperationsConfig{
		OperatingStartHour: 22,
		OperatingEndHour:   6,
		WorkingDays:        6,
		ScanConcurrency:    4,
	}
	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operating window is empty")
}

func TestDatabaseConnectionString(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5433, User: "enpi", Password: "secret",
		Database: "enpi_engine", SSLMode: "disable",
	}
	assert.Equal(t,
		"host=db port=5433 user=enpi password=secret dbname=enpi_engine sslmode=disable",
		c.ConnectionString(),
	)
}
