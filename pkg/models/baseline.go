package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Baseline is a regression model fit on a reference period, used to predict
// expected energy for later periods. At most one baseline is active per
// (SEU, baseline_year); retraining supersedes the active row, it never
// mutates history.
type Baseline struct {
	ID           uuid.UUID `json:"id"`
	SEUID        uuid.UUID `json:"seu_id"`
	BaselineYear int       `json:"baseline_year"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`

	Intercept float64 `json:"intercept"`
	// FeatureNames is the ordered list of regressors; Coefficients and
	// FeatureMeans are keyed by those names.
	FeatureNames []string           `json:"feature_names"`
	Coefficients map[string]float64 `json:"coefficients"`
	// FeatureMeans holds each regressor's mean over the training window.
	// Root-cause attribution compares period drivers against these.
	FeatureMeans map[string]float64 `json:"feature_means"`

	RSquared    float64 `json:"r_squared"`
	RMSE        float64 `json:"rmse"`
	SampleCount int     `json:"sample_count"`

	// TotalEnergyKWh and TotalProduction are the training-window sums;
	// SEC (specific energy consumption = energy / production) is derived
	// from them and kept for periods without production-based inputs.
	TotalEnergyKWh  float64  `json:"total_energy_kwh"`
	TotalProduction float64  `json:"total_production,omitempty"`
	SEC             *float64 `json:"sec,omitempty"`

	// Formula is the human-readable rendering used by downstream
	// natural-language summaries.
	Formula   string    `json:"formula"`
	IsActive  bool      `json:"is_active"`
	TrainedAt time.Time `json:"trained_at"`
}

// Predict evaluates the baseline formula against one day's driver values.
// Every feature the model was trained on must be present.
func (b *Baseline) Predict(values map[string]float64) (float64, error) {
	y := b.Intercept
	for _, name := range b.FeatureNames {
		v, ok := values[name]
		if !ok {
			return 0, fmt.Errorf("missing required feature %q", name)
		}
		y += b.Coefficients[name] * v
	}
	return y, nil
}

// RenderFormula builds the human-readable formula text stored alongside the
// coefficients, e.g.
//
//	energy_kwh = 12.4000 + 0.000123 x production_units - 0.000005 x avg_temperature_c
func RenderFormula(intercept float64, featureNames []string, coefficients map[string]float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = %.6g", TargetFeature, intercept)
	for _, name := range featureNames {
		c := coefficients[name]
		if c < 0 {
			fmt.Fprintf(&sb, " - %.6g x %s", -c, name)
		} else {
			fmt.Fprintf(&sb, " + %.6g x %s", c, name)
		}
	}
	return sb.String()
}
