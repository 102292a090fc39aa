package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/enmetrica/enpi-engine/pkg/models"
)

// The summary builders render the spoken-word companion of each response.
// Every summary is composed from the same struct fields it accompanies, so
// the text can never disagree with the numbers; any derived wording (above
// vs below, status phrase) follows the sign and status already stored on
// the record.

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

func statusPhrase(s models.ISOStatus) string {
	switch s {
	case models.StatusExcellent:
		return "an excellent result"
	case models.StatusOnTrack:
		return "on track"
	case models.StatusRequiresAttention:
		return "requires attention"
	default:
		return "critical overconsumption"
	}
}

func deviationPhrase(pct float64) string {
	if pct < 0 {
		return fmt.Sprintf("%.1f%% below baseline", math.Abs(pct))
	}
	return fmt.Sprintf("%.1f%% above baseline", pct)
}

// issuePhrase turns an issue-type constant into speakable words.
func issuePhrase(issueType string) string {
	return strings.ReplaceAll(issueType, "_", " ")
}

func predictionSummary(seuName string, predicted float64, b *models.Baseline) string {
	return fmt.Sprintf("%s is predicted to consume %.1f kWh under the given conditions. The %d baseline behind this prediction explains %.0f%% of historical variation across %s.",
		seuName, predicted, b.BaselineYear, b.RSquared*100, pluralize(len(b.FeatureNames), "driver"))
}

func trackSummary(seuName string, rec *models.PerformanceRecord, src *models.EnergySource) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s consumed %.1f kWh of %s between %s and %s against an expected %.1f, %s: %s.",
		seuName, rec.ActualKWh, issuePhrase(src.Name),
		rec.PeriodStart.Format("January 2"), rec.PeriodEnd.Format("January 2"),
		rec.ExpectedKWh, deviationPhrase(rec.DeviationPct), statusPhrase(rec.ISOStatus))
	if rec.SavingsKWh > 0 {
		fmt.Fprintf(&sb, " That books %.1f kWh of savings, %.1f kWh cumulative this year.",
			rec.SavingsKWh, rec.CumulativeSavingsKWh)
	}
	if rec.Projected {
		fmt.Fprintf(&sb, " Figures are projected from %.0f%% coverage.", rec.CoverageRatio*100)
	}
	return sb.String()
}

func analyzeSummary(a *models.PerformanceAnalysis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "On %s, %s consumed %.1f kWh against an expected %.1f, %s: %s.",
		a.PeriodStart.Format("January 2, 2006"), a.SEUName,
		a.Record.ActualKWh, a.Record.ExpectedKWh,
		deviationPhrase(a.Record.DeviationPct), statusPhrase(a.Record.ISOStatus))
	if len(a.RootCauses) > 0 {
		fmt.Fprintf(&sb, " Most likely cause: %s.", a.RootCauses[0].Cause)
	}
	if n := len(a.Recommendations); n > 0 {
		fmt.Fprintf(&sb, " Generated %s.", pluralize(n, "recommendation"))
	}
	return sb.String()
}

func scanSummary(scan *models.OpportunityScan) string {
	window := fmt.Sprintf("%s to %s",
		scan.WindowStart.Format("January 2"), scan.WindowEnd.Format("January 2, 2006"))
	if len(scan.Opportunities) == 0 {
		return fmt.Sprintf("Scanned %s in %s from %s; no savings opportunities stood out.",
			pluralize(scan.SEUsScanned, "SEU"), scan.Factory, window)
	}
	top := scan.Opportunities[0]
	return fmt.Sprintf("Found %s across %s in %s from %s, worth an estimated %.0f kWh per year. The largest is %s at %s, worth %.0f kWh per year.",
		pluralize(len(scan.Opportunities), "opportunity"),
		pluralize(scan.SEUsScanned, "SEU"), scan.Factory, window,
		scan.TotalAnnualKWh, issuePhrase(top.IssueType), top.SEUName, top.EstimatedAnnualKWh)
}

func reportSummary(r *models.EnPIReport) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s consumed %.0f kWh against an expected %.0f in %s, %s: %s.",
		r.Factory, r.TotalActualKWh, r.TotalExpectedKWh, r.Period.Label,
		deviationPhrase(r.DeviationPct), statusPhrase(r.OverallStatus))
	fmt.Fprintf(&sb, " %s contributed records.", pluralize(len(r.SEUs), "SEU"))
	if r.TotalSavingsKWh > 0 {
		fmt.Fprintf(&sb, " Total savings of %.0f kWh avoided %.0f kg of CO2.",
			r.TotalSavingsKWh, r.CarbonSavedKgCO2)
	}
	if open := r.ActionPlansByStatus[models.PlanStatusPlanned] + r.ActionPlansByStatus[models.PlanStatusInProgress]; open > 0 {
		fmt.Fprintf(&sb, " %s in flight.", pluralize(open, "action plan"))
	}
	return sb.String()
}
