package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/metrics"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// AnalyzeRequest identifies one SEU and calendar day to diagnose.
type AnalyzeRequest struct {
	SEUName      string
	EnergySource string // optional; validated against the SEU's source when set
	Date         time.Time
}

// AnalysisService runs the single-call deviation diagnosis: actuals,
// baseline expectation, root-cause attribution, and recommendations.
type AnalysisService interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*models.PerformanceAnalysis, error)
}

type analysisService struct {
	performance PerformanceService
	logger      *zap.Logger
}

func NewAnalysisService(performance PerformanceService, logger *zap.Logger) AnalysisService {
	return &analysisService{
		performance: performance,
		logger:      logger.Named("analysis"),
	}
}

var _ AnalysisService = (*analysisService)(nil)

func (s *analysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*models.PerformanceAnalysis, error) {
	day := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day.After(today) {
		return nil, apperrors.Validation("cannot analyze %s: the date is in the future", day.Format("2006-01-02"))
	}

	comp, err := s.performance.ComputeRecord(ctx, req.SEUName, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if req.EnergySource != "" && comp.Source.Name != req.EnergySource {
		return nil, apperrors.Validation("SEU %q is metered on %s, not %s", comp.SEU.Name, comp.Source.Name, req.EnergySource)
	}

	rec := comp.Record
	analysis := &models.PerformanceAnalysis{
		SEUID:        comp.SEU.ID,
		SEUName:      comp.SEU.Name,
		EnergySource: comp.Source.Name,
		PeriodStart:  rec.PeriodStart,
		PeriodEnd:    rec.PeriodEnd,
		Record:       rec,
		// The deviation is what the drivers do not explain: expected
		// energy already re-priced every driver at its period level.
		ResidualKWh:       rec.DeviationKWh,
		CarbonImpactKgCO2: rec.DeviationKWh * comp.Source.CarbonFactor,
		Warnings:          comp.Warnings,
		GeneratedAt:       time.Now().UTC(),
	}

	analysis.Drivers = driverContributions(comp)
	analysis.RootCauses = rankRootCauses(analysis.Drivers, &rec)
	analysis.Recommendations = buildRecommendations(primaryFactor(analysis.RootCauses), &rec, comp.Source)
	analysis.Summary = analyzeSummary(analysis)

	metrics.Analyses.Inc()
	s.logger.Info("analysis served",
		zap.String("seu", comp.SEU.Name),
		zap.Time("date", day),
		zap.Float64("deviation_pct", rec.DeviationPct),
		zap.String("iso_status", string(rec.ISOStatus)),
		zap.Int("recommendations", len(analysis.Recommendations)))
	return analysis, nil
}

// driverContributions decomposes the gap between the period's expected
// energy and a baseline-typical period into per-driver shifts:
// coefficient x (period mean - baseline mean) x observed days.
func driverContributions(comp *Computation) []models.DriverContribution {
	b := comp.Baseline
	days := float64(comp.ObservedDays)

	out := make([]models.DriverContribution, 0, len(b.FeatureNames))
	totalAbs := 0.0
	for _, name := range b.FeatureNames {
		periodMean := comp.DriverMeans[name]
		contribution := b.Coefficients[name] * (periodMean - b.FeatureMeans[name]) * days
		out = append(out, models.DriverContribution{
			Feature:         name,
			Coefficient:     b.Coefficients[name],
			BaselineMean:    b.FeatureMeans[name],
			PeriodMean:      periodMean,
			ContributionKWh: contribution,
		})
		totalAbs += math.Abs(contribution)
	}
	if totalAbs > 0 {
		for i := range out {
			out[i].SharePct = math.Abs(out[i].ContributionKWh) / totalAbs * 100
		}
	}
	return out
}

// rankRootCauses orders driver shifts and the unexplained residual by
// absolute impact. The residual is always a candidate cause: a deviation with
// quiet drivers points at the equipment itself.
func rankRootCauses(drivers []models.DriverContribution, rec *models.PerformanceRecord) []models.RootCause {
	confidence := confidenceTier(rec.Confidence)

	var causes []models.RootCause
	for _, d := range drivers {
		if math.Abs(d.ContributionKWh) < 1e-9 {
			continue
		}
		causes = append(causes, models.RootCause{
			Cause: fmt.Sprintf("%s shifted from its baseline average", d.Feature),
			Detail: fmt.Sprintf("%s averaged %.2f against a baseline mean of %.2f, moving expected consumption by %+.1f kWh",
				d.Feature, d.PeriodMean, d.BaselineMean, d.ContributionKWh),
			ImpactKWh:  d.ContributionKWh,
			Confidence: confidence,
			DriverName: d.Feature,
		})
	}

	residual := models.RootCause{
		ImpactKWh:  rec.DeviationKWh,
		Confidence: confidence,
		Residual:   true,
	}
	if rec.DeviationKWh >= 0 {
		residual.Cause = "consumption above the driver-adjusted expectation"
		residual.Detail = fmt.Sprintf("the SEU used %.1f kWh more than its drivers explain; efficiency loss, idle running, or setpoint drift are the usual suspects",
			rec.DeviationKWh)
	} else {
		residual.Cause = "consumption below the driver-adjusted expectation"
		residual.Detail = fmt.Sprintf("the SEU used %.1f kWh less than its drivers predict; recent efficiency measures may be paying off",
			-rec.DeviationKWh)
	}
	causes = append(causes, residual)

	sort.SliceStable(causes, func(i, j int) bool {
		return math.Abs(causes[i].ImpactKWh) > math.Abs(causes[j].ImpactKWh)
	})

	totalAbs := 0.0
	for _, c := range causes {
		totalAbs += math.Abs(c.ImpactKWh)
	}
	for i := range causes {
		causes[i].Rank = i + 1
		if totalAbs > 0 {
			causes[i].ImpactPct = math.Abs(causes[i].ImpactKWh) / totalAbs * 100
		}
	}
	return causes
}

func confidenceTier(c float64) string {
	switch {
	case c >= 0.9:
		return "high"
	case c >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

// factorKind buckets the primary cause for the recommendation rule table.
type factorKind int

const (
	factorResidual factorKind = iota
	factorProduction
	factorTemperature
	factorPressure
	factorOther
)

func primaryFactor(causes []models.RootCause) factorKind {
	if len(causes) == 0 || causes[0].Residual {
		return factorResidual
	}
	return classifyDriver(causes[0].DriverName)
}

func classifyDriver(name string) factorKind {
	switch {
	case strings.Contains(name, "production"):
		return factorProduction
	case strings.Contains(name, "temperature"), strings.Contains(name, "degree_days"):
		return factorTemperature
	case strings.Contains(name, "pressure"), strings.Contains(name, "flow"):
		return factorPressure
	default:
		return factorOther
	}
}

// recommendationRule is one row of the static rule table. RecoverShare is
// the fraction of the excess the measure typically recovers; rules are
// alternatives, so shares are not meant to sum to one.
type recommendationRule struct {
	title        string
	description  string
	effort       models.EffortTier
	recoverShare float64
	paybackDays  int
	issueType    string
}

var recommendationRules = map[factorKind][]recommendationRule{
	factorResidual: {
		{
			title:        "Schedule an efficiency inspection",
			description:  "The excess is not explained by production or weather. Inspect filters, heat-exchange surfaces, drive belts and motor condition.",
			effort:       models.EffortMedium,
			recoverShare: 0.6,
			paybackDays:  90,
			issueType:    models.IssueEfficiencyDrift,
		},
		{
			title:        "Verify control setpoints",
			description:  "Setpoint drift after maintenance or shift changes is a common cause of unexplained excess. Compare against the commissioning values.",
			effort:       models.EffortLow,
			recoverShare: 0.3,
			paybackDays:  30,
			issueType:    models.IssueSetpointReview,
		},
		{
			title:        "Check for idle operation outside production",
			description:  "Compare overnight and weekend load against rated power; sustained draw without output is recoverable by scheduling or interlocks.",
			effort:       models.EffortLow,
			recoverShare: 0.4,
			paybackDays:  45,
			issueType:    models.IssueIdleConsumption,
		},
	},
	factorProduction: {
		{
			title:        "Re-validate the baseline against the current production profile",
			description:  "Production volume moved well away from the training range; the model may no longer represent the process. Retrain on recent data.",
			effort:       models.EffortLow,
			recoverShare: 0.2,
		},
		{
			title:        "Review energy intensity at the changed throughput",
			description:  "Batch sizing and sequencing drive specific consumption at off-design throughput. Flatten peaks where scheduling allows.",
			effort:       models.EffortMedium,
			recoverShare: 0.3,
			paybackDays:  120,
		},
	},
	factorTemperature: {
		{
			title:        "Review HVAC and process-cooling setpoints",
			description:  "Ambient conditions shifted against the baseline. Seasonal setpoint adjustment recovers weather-driven excess cheaply.",
			effort:       models.EffortLow,
			recoverShare: 0.4,
			paybackDays:  30,
			issueType:    models.IssueSetpointReview,
		},
		{
			title:        "Inspect insulation and door seals",
			description:  "Weather-correlated excess often enters through degraded insulation, open doors, or failed seals on conditioned spaces.",
			effort:       models.EffortMedium,
			recoverShare: 0.3,
			paybackDays:  180,
		},
	},
	factorPressure: {
		{
			title:        "Run a compressed-air leak survey",
			description:  "Pressure-correlated excess is usually leakage. An ultrasonic survey plus tagging typically recovers a large share within weeks.",
			effort:       models.EffortLow,
			recoverShare: 0.5,
			paybackDays:  45,
		},
		{
			title:        "Lower header pressure to the minimum stable level",
			description:  "Every extra bar of header pressure costs roughly seven percent of compressor energy. Step down until the weakest consumer complains.",
			effort:       models.EffortLow,
			recoverShare: 0.3,
			paybackDays:  14,
			issueType:    models.IssueSetpointReview,
		},
	},
	factorOther: {
		{
			title:        "Investigate the dominant driver shift",
			description:  "The leading driver moved well away from its baseline mean. Confirm the sensor is healthy, then review the process change behind it.",
			effort:       models.EffortLow,
			recoverShare: 0.3,
			paybackDays:  60,
		},
		{
			title:        "Schedule an efficiency inspection",
			description:  "Rule out equipment degradation while the driver shift is investigated.",
			effort:       models.EffortMedium,
			recoverShare: 0.4,
			paybackDays:  90,
			issueType:    models.IssueEfficiencyDrift,
		},
	},
}

// buildRecommendations applies the rule table for the primary factor.
// Within tolerance there is nothing to recommend: the empty list is the
// correct answer, not an error. Savings potential annualizes the period's
// excess on the assumption it persists.
func buildRecommendations(kind factorKind, rec *models.PerformanceRecord, src *models.EnergySource) []models.Recommendation {
	if rec.ISOStatus != models.StatusRequiresAttention && rec.ISOStatus != models.StatusCritical {
		return nil
	}
	if rec.DeviationKWh <= 0 {
		return nil
	}

	rules := recommendationRules[kind]
	priority := "medium"
	suggestPlan := false
	if rec.ISOStatus == models.StatusCritical {
		priority = "high"
		suggestPlan = true
	} else if len(rules) > 2 {
		rules = rules[:2]
	}

	periodDays := rec.PeriodEnd.Sub(rec.PeriodStart).Hours() / 24
	if periodDays <= 0 {
		periodDays = 1
	}
	dailyExcess := rec.DeviationKWh / periodDays

	out := make([]models.Recommendation, 0, len(rules))
	for i, rule := range rules {
		annualKWh := dailyExcess * 365 * rule.recoverShare
		out = append(out, models.Recommendation{
			Title:             rule.title,
			Description:       rule.description,
			Priority:          priority,
			Effort:            rule.effort,
			EstimatedKWh:      annualKWh,
			EstimatedCost:     decimal.NewFromFloat(annualKWh).Mul(src.CostPerUnit).Round(2),
			PaybackDays:       rule.paybackDays,
			RelatedIssueType:  rule.issueType,
			SuggestActionPlan: suggestPlan && i == 0,
		})
	}
	return out
}
