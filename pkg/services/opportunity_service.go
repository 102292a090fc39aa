package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/config"
	"github.com/enmetrica/enpi-engine/pkg/features"
	"github.com/enmetrica/enpi-engine/pkg/metrics"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/regression"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// TemplateRequest asks for an action-plan skeleton for one issue type,
// optionally bound to a SEU and sized from a scan finding.
type TemplateRequest struct {
	IssueType          string
	SEUName            string  // optional
	EstimatedAnnualKWh float64 // optional, from the scan finding
}

// OpportunityService runs the factory-wide savings scan and generates
// action-plan templates for its findings.
type OpportunityService interface {
	// Scan inspects every active SEU of a factory for idle draw, off-hours
	// consumption, and baseline drift, ranked by estimated savings. A SEU
	// that cannot be scanned is skipped with a warning, never fatal; an
	// empty result is a valid outcome.
	Scan(ctx context.Context, factory string, from, to time.Time) (*models.OpportunityScan, error)
	Template(ctx context.Context, req TemplateRequest) (*models.ActionPlanTemplate, error)
}

type opportunityService struct {
	seus     repositories.SEURepository
	sources  repositories.EnergySourceRepository
	readings repositories.ReadingsRepository
	registry *features.Registry
	planner  *features.PlanBuilder
	ops      config.OperationsConfig
	logger   *zap.Logger
}

func NewOpportunityService(
	seus repositories.SEURepository,
	sources repositories.EnergySourceRepository,
	readings repositories.ReadingsRepository,
	registry *features.Registry,
	planner *features.PlanBuilder,
	ops config.OperationsConfig,
	logger *zap.Logger,
) OpportunityService {
	return &opportunityService{
		seus:     seus,
		sources:  sources,
		readings: readings,
		registry: registry,
		planner:  planner,
		ops:      ops,
		logger:   logger.Named("opportunity"),
	}
}

var _ OpportunityService = (*opportunityService)(nil)

func (s *opportunityService) Scan(ctx context.Context, factory string, from, to time.Time) (*models.OpportunityScan, error) {
	if !to.After(from) {
		return nil, apperrors.Validation("scan window end %s is not after start %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	seus, err := s.seus.ListByFactory(ctx, factory, true)
	if err != nil {
		return nil, err
	}

	scan := &models.OpportunityScan{
		Factory:     factory,
		WindowStart: from,
		WindowEnd:   to,
		GeneratedAt: time.Now().UTC(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.ops.ScanConcurrency)
	for _, seu := range seus {
		g.Go(func() error {
			found, err := s.scanSEU(gctx, seu, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A single unreadable SEU must not sink the factory
				// scan, but a dead context must.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				scan.SEUsSkipped++
				scan.Warnings = append(scan.Warnings, fmt.Sprintf("SEU %s skipped: %v", seu.Name, err))
				return nil
			}
			scan.SEUsScanned++
			scan.Opportunities = append(scan.Opportunities, found...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(scan.Opportunities, func(i, j int) bool {
		return scan.Opportunities[i].EstimatedAnnualKWh > scan.Opportunities[j].EstimatedAnnualKWh
	})
	total := decimal.Zero
	for _, o := range scan.Opportunities {
		scan.TotalAnnualKWh += o.EstimatedAnnualKWh
		total = total.Add(o.EstimatedAnnualCost)
	}
	scan.TotalAnnualCost = total
	scan.Summary = scanSummary(scan)

	metrics.OpportunityScans.Inc()
	s.logger.Info("factory scanned",
		zap.String("factory", factory),
		zap.Int("seus_scanned", scan.SEUsScanned),
		zap.Int("seus_skipped", scan.SEUsSkipped),
		zap.Int("opportunities", len(scan.Opportunities)),
		zap.Float64("total_annual_kwh", scan.TotalAnnualKWh))
	return scan, nil
}

func (s *opportunityService) scanSEU(ctx context.Context, seu *models.SEU, from, to time.Time) ([]models.Opportunity, error) {
	src, err := s.sources.GetByID(ctx, seu.EnergySourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.registry.Target(src.Name)
	if err != nil {
		return nil, err
	}
	plan, err := s.planner.BuildHourly(seu, from, to, target)
	if err != nil {
		return nil, err
	}
	hours, err := s.readings.FetchHourly(ctx, plan)
	if err != nil {
		return nil, err
	}
	if len(hours) < 48 {
		return nil, apperrors.InsufficientData("only %d hours of readings in the scan window, need at least 48", len(hours))
	}

	windowDays := to.Sub(from).Hours() / 24
	var out []models.Opportunity
	if o := s.detectIdle(seu, src, hours, windowDays); o != nil {
		out = append(out, *o)
	}
	if o := s.detectOffHours(seu, src, hours, windowDays); o != nil {
		out = append(out, *o)
	}
	if o := s.detectDrift(seu, src, hours); o != nil {
		out = append(out, *o)
	}
	return out, nil
}

// detectIdle flags sustained draw below the idle fraction of rated power.
// An hourly kWh reading approximates average kW over that hour.
func (s *opportunityService) detectIdle(seu *models.SEU, src *models.EnergySource, hours []features.HourPoint, windowDays float64) *models.Opportunity {
	if seu.RatedPowerKW <= 0 {
		return nil
	}
	threshold := seu.RatedPowerKW * s.ops.IdleLoadFraction

	idleHours, idleKWh := 0, 0.0
	for _, h := range hours {
		if h.KWh > 0 && h.KWh < threshold {
			idleHours++
			idleKWh += h.KWh
		}
	}
	share := float64(idleHours) / float64(len(hours))
	if share < s.ops.IdleMinShare {
		return nil
	}

	// Roughly half of idle draw is recoverable by standby procedures and
	// interlocks; the rest is genuine minimum load.
	annualKWh := idleKWh / windowDays * 365 * 0.5
	return &models.Opportunity{
		SEUID:        seu.ID,
		SEUName:      seu.Name,
		EnergySource: src.Name,
		IssueType:    models.IssueIdleConsumption,
		Description: fmt.Sprintf("%s ran below %.0f kW (%.0f%% of rated power) for %d of %d observed hours",
			seu.Name, threshold, s.ops.IdleLoadFraction*100, idleHours, len(hours)),
		EstimatedAnnualKWh:  annualKWh,
		EstimatedAnnualCost: decimal.NewFromFloat(annualKWh).Mul(src.CostPerUnit).Round(2),
		Effort:              models.EffortLow,
		Confidence:          "medium",
		Evidence: map[string]float64{
			"idle_hours":        float64(idleHours),
			"observed_hours":    float64(len(hours)),
			"idle_share":        share,
			"idle_threshold_kw": threshold,
			"idle_kwh":          idleKWh,
		},
	}
}

// detectOffHours flags material consumption outside the configured operating
// window: outside [start, end) on working days, or any hour on non-working
// days.
func (s *opportunityService) detectOffHours(seu *models.SEU, src *models.EnergySource, hours []features.HourPoint, windowDays float64) *models.Opportunity {
	totalKWh, offKWh := 0.0, 0.0
	offHours := 0
	for _, h := range hours {
		totalKWh += h.KWh
		if s.isOffHours(h.Hour) {
			offKWh += h.KWh
			offHours++
		}
	}
	if totalKWh <= 0 {
		return nil
	}
	share := offKWh / totalKWh
	if share < s.ops.OffHoursMinShare {
		return nil
	}

	// Base load legitimately spans the night; assume sixty percent of
	// off-hours consumption is reschedulable or switchable.
	annualKWh := offKWh / windowDays * 365 * 0.6
	return &models.Opportunity{
		SEUID:        seu.ID,
		SEUName:      seu.Name,
		EnergySource: src.Name,
		IssueType:    models.IssueOffHoursUsage,
		Description: fmt.Sprintf("%.0f%% of %s's consumption falls outside the %02d:00-%02d:00 operating window",
			share*100, seu.Name, s.ops.OperatingStartHour, s.ops.OperatingEndHour),
		EstimatedAnnualKWh:  annualKWh,
		EstimatedAnnualCost: decimal.NewFromFloat(annualKWh).Mul(src.CostPerUnit).Round(2),
		Effort:              models.EffortMedium,
		Confidence:          "medium",
		Evidence: map[string]float64{
			"off_hours_kwh":   offKWh,
			"total_kwh":       totalKWh,
			"off_hours_share": share,
			"off_hours":       float64(offHours),
		},
	}
}

func (s *opportunityService) isOffHours(t time.Time) bool {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // ISO numbering, Sunday last
	}
	if weekday > s.ops.WorkingDays {
		return true
	}
	return t.Hour() < s.ops.OperatingStartHour || t.Hour() >= s.ops.OperatingEndHour
}

// detectDrift compares daily consumption between the two halves of the
// window with a Welch t-test. Only a significant increase is an opportunity;
// a significant decrease is an improvement, not a finding.
func (s *opportunityService) detectDrift(seu *models.SEU, src *models.EnergySource, hours []features.HourPoint) *models.Opportunity {
	daily := dailyTotals(hours)
	if len(daily) < 4 {
		return nil
	}
	half := len(daily) / 2
	res, err := regression.WelchTTest(daily[:half], daily[half:])
	if err != nil {
		return nil
	}
	if res.PValue >= s.ops.DriftSignificance || res.MeanB <= res.MeanA {
		return nil
	}

	annualKWh := (res.MeanB - res.MeanA) * 365
	return &models.Opportunity{
		SEUID:        seu.ID,
		SEUName:      seu.Name,
		EnergySource: src.Name,
		IssueType:    models.IssueEfficiencyDrift,
		Description: fmt.Sprintf("%s's daily consumption rose from %.0f to %.0f kWh between the first and second half of the window (p=%.3f)",
			seu.Name, res.MeanA, res.MeanB, res.PValue),
		EstimatedAnnualKWh:  annualKWh,
		EstimatedAnnualCost: decimal.NewFromFloat(annualKWh).Mul(src.CostPerUnit).Round(2),
		Effort:              models.EffortMedium,
		Confidence:          confidenceTier(1 - res.PValue),
		Evidence: map[string]float64{
			"first_half_mean_kwh":  res.MeanA,
			"second_half_mean_kwh": res.MeanB,
			"t_stat":               res.TStat,
			"p_value":              res.PValue,
		},
	}
}

// dailyTotals collapses an hourly series to per-day sums, in day order.
func dailyTotals(hours []features.HourPoint) []float64 {
	var out []float64
	var day time.Time
	for _, h := range hours {
		d := h.Hour.Truncate(24 * time.Hour)
		if out == nil || !d.Equal(day) {
			out = append(out, 0)
			day = d
		}
		out[len(out)-1] += h.KWh
	}
	return out
}

// templateSpec is the static skeleton per issue type. Timelines and owners
// are roles and phases, never people or dates.
type templateSpec struct {
	title            string
	problem          string
	rootCauses       []string
	actions          []models.TemplateAction
	expectedOutcomes []string
	monitoring       string
	priority         string
	effort           models.EffortTier
}

var templateSpecs = map[string]templateSpec{
	models.IssueIdleConsumption: {
		title:   "Eliminate idle consumption",
		problem: "The equipment draws significant power during hours without production output.",
		rootCauses: []string{
			"No automatic shutdown or standby between production runs",
			"Auxiliary systems left running across breaks and shift changes",
			"Minimum-load setpoints higher than the process requires",
		},
		actions: []models.TemplateAction{
			{Step: 1, Action: "Log idle periods for two weeks and map when and why the equipment idles", Timeline: "week 1-2", Owner: "energy team"},
			{Step: 2, Action: "Define standby procedures per shift and train operators on them", Timeline: "week 3-4", Owner: "production lead"},
			{Step: 3, Action: "Install timers or interlocks that force standby after a set idle time", Timeline: "month 2", Owner: "maintenance"},
			{Step: 4, Action: "Review minimum-load setpoints with the equipment vendor", Timeline: "month 3", Owner: "maintenance"},
		},
		expectedOutcomes: []string{
			"Idle consumption reduced by half or better",
			"A documented standby procedure per production line",
			"Automatic enforcement on lines with repeat findings",
		},
		monitoring: "Track the weekly idle-hour share from hourly load data; flag two consecutive weeks above the idle threshold.",
		priority:   models.PriorityMedium,
		effort:     models.EffortLow,
	},
	models.IssueOffHoursUsage: {
		title:   "Reschedule off-hours consumption",
		problem: "A material share of consumption falls outside the plant's operating window.",
		rootCauses: []string{
			"Equipment startup scheduled earlier than production requires",
			"Nightly cleaning or maintenance runs on full process power",
			"No shutdown checklist at the end of the last shift",
		},
		actions: []models.TemplateAction{
			{Step: 1, Action: "Break down off-hours consumption by hour and identify the consuming systems", Timeline: "week 1-2", Owner: "energy team"},
			{Step: 2, Action: "Introduce an end-of-shift shutdown checklist and assign responsibility", Timeline: "week 3", Owner: "production lead"},
			{Step: 3, Action: "Shift movable loads (cleaning, charging, conveying) into the operating window or cheap-tariff hours", Timeline: "month 2", Owner: "production planning"},
		},
		expectedOutcomes: []string{
			"Off-hours share below the configured threshold",
			"A nightly shutdown state that is audited, not assumed",
		},
		monitoring: "Compare weekend and night consumption against the operating-window average every week.",
		priority:   models.PriorityMedium,
		effort:     models.EffortMedium,
	},
	models.IssueEfficiencyDrift: {
		title:   "Reverse efficiency drift",
		problem: "Consumption at unchanged production and weather has risen significantly across the observed window.",
		rootCauses: []string{
			"Fouled filters, heat-exchange surfaces, or nozzles degrading efficiency",
			"Mechanical wear raising friction losses",
			"Sensor or control drift shifting the operating point",
			"Compressed-air or steam leaks growing over time",
		},
		actions: []models.TemplateAction{
			{Step: 1, Action: "Run a condition inspection: filters, heat exchangers, belts, bearings, leaks", Timeline: "week 1-2", Owner: "maintenance"},
			{Step: 2, Action: "Recalibrate the sensors feeding the control loop", Timeline: "week 2-3", Owner: "instrumentation"},
			{Step: 3, Action: "Repair the defects found and verify consumption returns toward baseline", Timeline: "month 2", Owner: "maintenance"},
			{Step: 4, Action: "Retrain the baseline once consumption stabilizes", Timeline: "month 3", Owner: "energy team"},
		},
		expectedOutcomes: []string{
			"Daily consumption back within the baseline's on-track band",
			"A documented inspection result for every suspected cause",
		},
		monitoring: "Weekly deviation tracking against the active baseline until three consecutive on-track weeks.",
		priority:   models.PriorityHigh,
		effort:     models.EffortMedium,
	},
	models.IssueSetpointReview: {
		title:   "Review and tighten setpoints",
		problem: "Operating setpoints appear higher than the process requires, wasting energy in every run.",
		rootCauses: []string{
			"Setpoints raised during past incidents and never lowered",
			"Margins stacked across cascaded control loops",
			"Seasonal conditions changed but setpoints did not follow",
		},
		actions: []models.TemplateAction{
			{Step: 1, Action: "Inventory the current setpoints and compare against commissioning values and process requirements", Timeline: "week 1-2", Owner: "process engineering"},
			{Step: 2, Action: "Step setpoints down gradually while monitoring quality and stability", Timeline: "week 3-6", Owner: "process engineering"},
			{Step: 3, Action: "Document the approved setpoint window and lock it in the control system", Timeline: "month 2", Owner: "automation"},
		},
		expectedOutcomes: []string{
			"Setpoints at the minimum stable level with documented margins",
			"Unauthorized setpoint changes visible and reversible",
		},
		monitoring: "Monthly setpoint audit against the documented window; alert on deviations.",
		priority:   models.PriorityLow,
		effort:     models.EffortLow,
	},
}

func validIssueTypes() []string {
	return []string{
		models.IssueIdleConsumption,
		models.IssueOffHoursUsage,
		models.IssueEfficiencyDrift,
		models.IssueSetpointReview,
	}
}

// Template renders the deterministic action-plan skeleton for one issue
// type. A known SEU binds the template to it and prices the savings at its
// tariff.
func (s *opportunityService) Template(ctx context.Context, req TemplateRequest) (*models.ActionPlanTemplate, error) {
	spec, ok := templateSpecs[req.IssueType]
	if !ok {
		return nil, apperrors.ValidationWithAlternatives(
			fmt.Sprintf("unknown issue type %q", req.IssueType), validIssueTypes())
	}

	tpl := &models.ActionPlanTemplate{
		IssueType:         req.IssueType,
		Title:             spec.title,
		ProblemStatement:  spec.problem,
		RootCauses:        spec.rootCauses,
		Actions:           spec.actions,
		ExpectedOutcomes:  spec.expectedOutcomes,
		MonitoringPlan:    spec.monitoring,
		TargetSavingsKWh:  req.EstimatedAnnualKWh,
		SuggestedPriority: spec.priority,
		SuggestedEffort:   spec.effort,
	}

	if req.SEUName != "" {
		seu, src, err := resolveSEU(ctx, s.seus, s.sources, req.SEUName)
		if err != nil {
			return nil, err
		}
		tpl.SEUID = seu.ID
		tpl.SEUName = seu.Name
		tpl.Title = fmt.Sprintf("%s: %s", spec.title, seu.Name)
		tpl.TargetSavingsCost = decimal.NewFromFloat(req.EstimatedAnnualKWh).Mul(src.CostPerUnit).Round(2)
	}
	return tpl, nil
}
