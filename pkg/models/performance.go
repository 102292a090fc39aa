package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ISOStatus is the compliance classification derived purely from deviation
// percentage.
type ISOStatus string

const (
	StatusExcellent         ISOStatus = "excellent"
	StatusOnTrack           ISOStatus = "on_track"
	StatusRequiresAttention ISOStatus = "requires_attention"
	StatusCritical          ISOStatus = "critical"
)

// StatusPolicy holds the ordered deviation-percent band bounds. The status
// function is total and monotonic: every deviation maps to exactly one
// status, and a smaller deviation never maps to a worse status.
type StatusPolicy struct {
	ExcellentMax float64 // deviation <= this -> excellent
	OnTrackMax   float64 // deviation <= this -> on_track
	AttentionMax float64 // deviation <= this -> requires_attention; above -> critical
}

// DefaultStatusPolicy mirrors the canonical policy defaults (-10/+2/+10).
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{ExcellentMax: -10, OnTrackMax: 2, AttentionMax: 10}
}

// Validate rejects band bounds that are not strictly ascending.
func (p StatusPolicy) Validate() error {
	if !(p.ExcellentMax < p.OnTrackMax && p.OnTrackMax < p.AttentionMax) {
		return fmt.Errorf("status bands must be strictly ascending: %.2f / %.2f / %.2f",
			p.ExcellentMax, p.OnTrackMax, p.AttentionMax)
	}
	return nil
}

// Classify maps a deviation percentage onto its ISO status.
func (p StatusPolicy) Classify(deviationPct float64) ISOStatus {
	switch {
	case deviationPct <= p.ExcellentMax:
		return StatusExcellent
	case deviationPct <= p.OnTrackMax:
		return StatusOnTrack
	case deviationPct <= p.AttentionMax:
		return StatusRequiresAttention
	default:
		return StatusCritical
	}
}

// Severity orders statuses from best (0) to worst (3), for monotonicity
// checks and report roll-ups.
func (s ISOStatus) Severity() int {
	switch s {
	case StatusExcellent:
		return 0
	case StatusOnTrack:
		return 1
	case StatusRequiresAttention:
		return 2
	default:
		return 3
	}
}

// PerformanceRecord captures one tracked period of a SEU against its active
// baseline. (seu, period_start, period_end) is unique; re-tracking the same
// window upserts.
type PerformanceRecord struct {
	ID         uuid.UUID `json:"id"`
	SEUID      uuid.UUID `json:"seu_id"`
	BaselineID uuid.UUID `json:"baseline_id"`

	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	ActualKWh   float64 `json:"actual_kwh"`
	ExpectedKWh float64 `json:"expected_kwh"`
	// DeviationKWh = ActualKWh - ExpectedKWh, always.
	DeviationKWh float64 `json:"deviation_kwh"`
	// DeviationPct = DeviationKWh / ExpectedKWh * 100.
	DeviationPct float64   `json:"deviation_pct"`
	ISOStatus    ISOStatus `json:"iso_status"`

	// SavingsKWh is positive only when the SEU used less than expected;
	// over-consumption never records savings.
	SavingsKWh           float64         `json:"savings_kwh"`
	SavingsCost          decimal.Decimal `json:"savings_cost"`
	CumulativeSavingsKWh float64         `json:"cumulative_savings_kwh"`

	// Projected marks records whose actual energy was scaled up from
	// partial coverage; CoverageRatio is observed hours over period hours
	// and Confidence shrinks with it.
	Projected     bool    `json:"projected"`
	CoverageRatio float64 `json:"coverage_ratio"`
	Confidence    float64 `json:"confidence"`

	GeneratedAt time.Time `json:"generated_at"`
}
