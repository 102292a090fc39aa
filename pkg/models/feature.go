package models

import (
	"time"

	"github.com/google/uuid"
)

// AggregationRule selects how raw readings collapse into one value per
// calendar day before any cross-table join.
type AggregationRule string

const (
	// AggregationSum is for cumulative quantities (consumption, production).
	AggregationSum AggregationRule = "SUM"
	// AggregationAvg is for instantaneous quantities (temperature, pressure).
	AggregationAvg AggregationRule = "AVG"
	// AggregationCustom applies a SQL expression on top of the daily
	// average, e.g. degree-day computation.
	AggregationCustom AggregationRule = "CUSTOM"
)

// ValidAggregationRule reports whether r is a known rule.
func ValidAggregationRule(r AggregationRule) bool {
	switch r {
	case AggregationSum, AggregationAvg, AggregationCustom:
		return true
	}
	return false
}

// Feature maps one measurable quantity of an energy source onto the raw
// table/column that backs it. (energy_source, name) is unique. The feature
// named by TargetFeature is the regression target; the rest are candidate
// drivers.
type Feature struct {
	ID             uuid.UUID `json:"id"`
	EnergySourceID uuid.UUID `json:"energy_source_id"`
	// EnergySource is the denormalized source name, filled on reads.
	EnergySource string          `json:"energy_source,omitempty"`
	Name         string          `json:"name"`
	SourceTable  string          `json:"source_table"`
	SourceColumn string          `json:"source_column"`
	DataType     string          `json:"data_type"` // "numeric" for every seeded feature
	Aggregation  AggregationRule `json:"aggregation"`
	// CustomExpr is the SQL expression template for CUSTOM aggregation.
	// The placeholder %s is replaced by the daily aggregate of SourceColumn;
	// the placeholder :base by the configured degree-day base temperature.
	CustomExpr string `json:"custom_expr,omitempty"`
	// IsRegressor marks the feature as usable as a regression input.
	IsRegressor bool `json:"is_regressor"`
	// ScopedToEquipment is true when SourceTable carries an equipment_id
	// column, so readings can be filtered to the SEU's equipment. Site-wide
	// tables (weather) are not scoped.
	ScopedToEquipment bool      `json:"scoped_to_equipment"`
	CreatedAt         time.Time `json:"created_at"`
}

// TargetFeature is the name of the dependent variable in every catalog:
// the daily energy consumption of the SEU's own source.
const TargetFeature = "energy_kwh"

// ProductionFeature is the canonical production-volume feature name. When a
// training window includes it, SEC = total energy / total production is
// derived and stored on the baseline.
const ProductionFeature = "production_units"
