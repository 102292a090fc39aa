package models

import (
	"time"

	"github.com/google/uuid"
)

// Target is an annual reduction goal for a SEU, expressed against a baseline
// year. target_savings = baseline energy x reduction%; progress is current
// savings over target savings, clamped to the storage field's bound
// (NUMERIC(5,2) -> 999.99) rather than allowed to overflow. Progress above
// 100 means the target is achieved, not an error.
type Target struct {
	ID           uuid.UUID `json:"id"`
	SEUID        uuid.UUID `json:"seu_id"`
	TargetYear   int       `json:"target_year"`
	BaselineYear int       `json:"baseline_year"`

	ReductionPct     float64 `json:"reduction_pct"` // 0-100
	TargetSavingsKWh float64 `json:"target_savings_kwh"`

	CurrentSavingsKWh float64 `json:"current_savings_kwh"`
	ProgressPct       float64 `json:"progress_pct"`
	Achieved          bool    `json:"achieved"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
