package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActionPlanStatus follows the lifecycle
// planned -> in_progress -> {completed, cancelled, on_hold}; on-hold plans
// may resume or be cancelled. Completed and cancelled are terminal.
type ActionPlanStatus string

const (
	PlanStatusPlanned    ActionPlanStatus = "planned"
	PlanStatusInProgress ActionPlanStatus = "in_progress"
	PlanStatusCompleted  ActionPlanStatus = "completed"
	PlanStatusCancelled  ActionPlanStatus = "cancelled"
	PlanStatusOnHold     ActionPlanStatus = "on_hold"
)

// ValidPlanStatus reports whether s is a known status.
func ValidPlanStatus(s ActionPlanStatus) bool {
	switch s {
	case PlanStatusPlanned, PlanStatusInProgress, PlanStatusCompleted,
		PlanStatusCancelled, PlanStatusOnHold:
		return true
	}
	return false
}

// CanTransitionTo reports whether the move from s to next is allowed.
func (s ActionPlanStatus) CanTransitionTo(next ActionPlanStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case PlanStatusPlanned:
		return next == PlanStatusInProgress || next == PlanStatusCancelled || next == PlanStatusOnHold
	case PlanStatusInProgress:
		return next == PlanStatusCompleted || next == PlanStatusCancelled || next == PlanStatusOnHold
	case PlanStatusOnHold:
		return next == PlanStatusInProgress || next == PlanStatusCancelled
	default: // completed, cancelled are terminal
		return false
	}
}

// Plan priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// ValidPlanPriority reports whether p is a known priority.
func ValidPlanPriority(p string) bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// ActionPlan is an improvement measure tracked through its lifecycle. The
// derived fields (payback, ROI, completion date, progress) are recomputed
// whenever savings/investment change or the status transitions to completed.
type ActionPlan struct {
	ID      uuid.UUID  `json:"id"`
	Factory string     `json:"factory"`
	SEUID   *uuid.UUID `json:"seu_id,omitempty"` // nil for factory-wide plans

	Title     string `json:"title"`
	Objective string `json:"objective"`
	IssueType string `json:"issue_type,omitempty"` // origin pattern, when generated from a scan

	TargetSavingsKWh    float64         `json:"target_savings_kwh"`
	TargetSavingsCost   decimal.Decimal `json:"target_savings_cost"`
	EstimatedInvestment decimal.Decimal `json:"estimated_investment"`
	// PaybackMonths = investment / annualized savings x 12.
	PaybackMonths decimal.Decimal `json:"payback_months"`
	ROIPct        decimal.Decimal `json:"roi_pct"`

	Status      ActionPlanStatus `json:"status"`
	Priority    string           `json:"priority"`
	Responsible string           `json:"responsible,omitempty"`

	StartDate      *time.Time `json:"start_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	ProgressPct    float64    `json:"progress_pct"`

	ActualSavingsKWh *float64         `json:"actual_savings_kwh,omitempty"`
	ActualInvestment *decimal.Decimal `json:"actual_investment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputePaybackMonths derives the payback horizon in months from an
// investment and an annualized savings amount. Zero savings yields zero
// payback (unknown), never a division error.
func ComputePaybackMonths(investment, annualSavings decimal.Decimal) decimal.Decimal {
	if annualSavings.IsZero() || annualSavings.IsNegative() {
		return decimal.Zero
	}
	return investment.Div(annualSavings).Mul(decimal.NewFromInt(12)).Round(2)
}

// ComputeROIPct derives return-on-investment percent from realized savings
// and investment. Zero investment yields zero ROI.
func ComputeROIPct(savings, investment decimal.Decimal) decimal.Decimal {
	if investment.IsZero() || investment.IsNegative() {
		return decimal.Zero
	}
	return savings.Sub(investment).Div(investment).Mul(decimal.NewFromInt(100)).Round(2)
}
