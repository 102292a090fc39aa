package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
)

// ReportPeriod is a resolved reporting window. Label keeps the original
// token so responses echo what the caller asked for.
type ReportPeriod struct {
	Label   string    `json:"label"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Quarter int       `json:"quarter,omitempty"` // 0 for annual periods
	Year    int       `json:"year"`
}

// ParsePeriodToken resolves a period token into calendar bounds. Accepted
// forms are "YYYY" (Jan 1 - Dec 31) and "YYYY-Qn" with fixed quarters
// (Q1 = Jan-Mar ... Q4 = Oct-Dec). The end bound is exclusive.
func ParsePeriodToken(token string) (ReportPeriod, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ReportPeriod{}, apperrors.Validation("period token is required")
	}

	yearPart, quarterPart, hasQuarter := strings.Cut(trimmed, "-")
	year, err := strconv.Atoi(yearPart)
	if err != nil || year < 1970 || year > 9999 {
		return ReportPeriod{}, apperrors.ValidationWithAlternatives(
			fmt.Sprintf("unparseable period token %q", token),
			[]string{"2025", "2025-Q3"},
		)
	}

	if !hasQuarter {
		return ReportPeriod{
			Label: trimmed,
			Start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC),
			Year:  year,
		}, nil
	}

	upper := strings.ToUpper(quarterPart)
	if len(upper) != 2 || upper[0] != 'Q' || upper[1] < '1' || upper[1] > '4' {
		return ReportPeriod{}, apperrors.ValidationWithAlternatives(
			fmt.Sprintf("unparseable period token %q", token),
			[]string{fmt.Sprintf("%d", year), fmt.Sprintf("%d-Q1", year)},
		)
	}
	quarter := int(upper[1] - '0')
	startMonth := time.Month((quarter-1)*3 + 1)

	return ReportPeriod{
		Label:   strings.ToUpper(trimmed),
		Start:   time.Date(year, startMonth, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(year, startMonth+3, 1, 0, 0, 0, 0, time.UTC),
		Quarter: quarter,
		Year:    year,
	}, nil
}

// SEUPerformanceSummary is one row of the per-SEU breakdown in a report.
type SEUPerformanceSummary struct {
	SEUID        uuid.UUID       `json:"seu_id"`
	SEUName      string          `json:"seu_name"`
	EnergySource string          `json:"energy_source"`
	ExpectedKWh  float64         `json:"expected_kwh"`
	ActualKWh    float64         `json:"actual_kwh"`
	DeviationPct float64         `json:"deviation_pct"`
	ISOStatus    ISOStatus       `json:"iso_status"`
	SavingsKWh   float64         `json:"savings_kwh"`
	SavingsCost  decimal.Decimal `json:"savings_cost"`
	RecordCount  int             `json:"record_count"`
}

// EnPIReport is the factory-level compliance report for one period. The
// aggregate deviation is recomputed from summed totals, never averaged
// from the per-SEU percentages.
type EnPIReport struct {
	Factory string       `json:"factory"`
	Period  ReportPeriod `json:"period"`

	TotalExpectedKWh float64         `json:"total_expected_kwh"`
	TotalActualKWh   float64         `json:"total_actual_kwh"`
	DeviationKWh     float64         `json:"deviation_kwh"`
	DeviationPct     float64         `json:"deviation_pct"`
	OverallStatus    ISOStatus       `json:"overall_status"`
	TotalSavingsKWh  float64         `json:"total_savings_kwh"`
	TotalSavingsCost decimal.Decimal `json:"total_savings_cost"`
	CarbonSavedKgCO2 float64         `json:"carbon_saved_kg_co2"`

	SEUs []SEUPerformanceSummary `json:"seus"`

	ActionPlansByStatus map[ActionPlanStatus]int `json:"action_plans_by_status"`

	Summary     string    `json:"summary"`
	GeneratedAt time.Time `json:"generated_at"`
}
