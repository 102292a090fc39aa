package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EffortTier buckets a recommendation by implementation effort.
type EffortTier string

const (
	EffortLow    EffortTier = "low"
	EffortMedium EffortTier = "medium"
	EffortHigh   EffortTier = "high"
)

// DriverContribution quantifies how much one regression driver moved
// expected consumption in the analyzed period relative to the baseline.
// ContributionKWh = coefficient x (period mean - baseline mean) x days.
type DriverContribution struct {
	Feature         string  `json:"feature"`
	Coefficient     float64 `json:"coefficient"`
	BaselineMean    float64 `json:"baseline_mean"`
	PeriodMean      float64 `json:"period_mean"`
	ContributionKWh float64 `json:"contribution_kwh"`
	SharePct        float64 `json:"share_pct"`
}

// RootCause is one explanation for a deviation, ranked by impact.
type RootCause struct {
	Rank       int     `json:"rank"`
	Cause      string  `json:"cause"`
	Detail     string  `json:"detail"`
	ImpactKWh  float64 `json:"impact_kwh"`
	ImpactPct  float64 `json:"impact_pct"`
	Confidence string  `json:"confidence"` // high, medium, low
	DriverName string  `json:"driver_name,omitempty"`
	Residual   bool    `json:"residual"` // true when the cause is unexplained residual drift
}

// Recommendation is an actionable measure proposed by the analysis.
type Recommendation struct {
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Priority          string          `json:"priority"` // high, medium, low
	Effort            EffortTier      `json:"effort"`
	EstimatedKWh      float64         `json:"estimated_kwh"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	PaybackDays       int             `json:"payback_days,omitempty"`
	RelatedIssueType  string          `json:"related_issue_type,omitempty"`
	SuggestActionPlan bool            `json:"suggest_action_plan"`
}

// PerformanceAnalysis is the full deviation diagnosis for one SEU and
// period: the tracked record, the per-driver decomposition, ranked root
// causes, recommendations, and a plain-language summary.
type PerformanceAnalysis struct {
	SEUID        uuid.UUID `json:"seu_id"`
	SEUName      string    `json:"seu_name"`
	EnergySource string    `json:"energy_source"`
	PeriodStart  time.Time `json:"period_start"`
	PeriodEnd    time.Time `json:"period_end"`

	Record          PerformanceRecord    `json:"record"`
	Drivers         []DriverContribution `json:"drivers"`
	ResidualKWh     float64              `json:"residual_kwh"`
	RootCauses      []RootCause          `json:"root_causes"`
	Recommendations []Recommendation     `json:"recommendations"`

	// CarbonImpactKgCO2 is the deviation converted through the source's
	// carbon factor: positive means extra emissions, negative means avoided.
	CarbonImpactKgCO2 float64 `json:"carbon_impact_kg_co2"`

	Summary  string   `json:"summary"`
	Warnings []string `json:"warnings,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}
