package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Issue types detected by the factory-wide opportunity scan.
const (
	IssueIdleConsumption = "idle_consumption"
	IssueOffHoursUsage   = "off_hours_usage"
	IssueEfficiencyDrift = "efficiency_drift"
	IssueSetpointReview  = "setpoint_review"
)

// Opportunity is one savings candidate surfaced by the scan, sized in
// annualized kWh and cost at the SEU's energy-source tariff.
type Opportunity struct {
	SEUID        uuid.UUID `json:"seu_id"`
	SEUName      string    `json:"seu_name"`
	EnergySource string    `json:"energy_source"`
	IssueType    string    `json:"issue_type"`
	Description  string    `json:"description"`

	EstimatedAnnualKWh  float64         `json:"estimated_annual_kwh"`
	EstimatedAnnualCost decimal.Decimal `json:"estimated_annual_cost"`
	Effort              EffortTier      `json:"effort"`
	Confidence          string          `json:"confidence"` // high, medium, low

	Evidence map[string]float64 `json:"evidence,omitempty"`
}

// OpportunityScan aggregates a factory scan: every opportunity across all
// active SEUs, ordered by estimated annual savings descending.
type OpportunityScan struct {
	Factory         string          `json:"factory"`
	WindowStart     time.Time       `json:"window_start"`
	WindowEnd       time.Time       `json:"window_end"`
	SEUsScanned     int             `json:"seus_scanned"`
	SEUsSkipped     int             `json:"seus_skipped"`
	Opportunities   []Opportunity   `json:"opportunities"`
	TotalAnnualKWh  float64         `json:"total_annual_kwh"`
	TotalAnnualCost decimal.Decimal `json:"total_annual_cost"`
	Warnings        []string        `json:"warnings,omitempty"`
	Summary         string          `json:"summary"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// TemplateAction is one concrete step in a generated action-plan template.
type TemplateAction struct {
	Step     int    `json:"step"`
	Action   string `json:"action"`
	Timeline string `json:"timeline"` // e.g. "week 1-2"
	Owner    string `json:"owner"`    // role, not a person
}

// ActionPlanTemplate is a ready-to-edit plan skeleton generated for an
// opportunity: a problem statement, two to four probable root causes,
// two to four sequenced actions with timelines, quantified outcomes, and
// how to verify them once implemented.
type ActionPlanTemplate struct {
	IssueType        string           `json:"issue_type"`
	SEUID            uuid.UUID        `json:"seu_id"`
	SEUName          string           `json:"seu_name"`
	Title            string           `json:"title"`
	ProblemStatement string           `json:"problem_statement"`
	RootCauses       []string         `json:"root_causes"`
	Actions          []TemplateAction `json:"actions"`
	ExpectedOutcomes []string         `json:"expected_outcomes"`
	MonitoringPlan   string           `json:"monitoring_plan"`

	TargetSavingsKWh  float64         `json:"target_savings_kwh"`
	TargetSavingsCost decimal.Decimal `json:"target_savings_cost"`
	SuggestedPriority string          `json:"suggested_priority"`
	SuggestedEffort   EffortTier      `json:"suggested_effort"`
}
