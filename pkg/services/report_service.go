package services

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/metrics"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// ReportService assembles the factory-level compliance report for one
// reporting period.
type ReportService interface {
	// Generate builds the report for a factory and period token ("2025",
	// "2025-Q3"). Reports are cached per factory and token; tracking any
	// SEU of the factory invalidates them.
	Generate(ctx context.Context, factory, periodToken string) (*models.EnPIReport, error)
}

type reportService struct {
	seus        repositories.SEURepository
	sources     repositories.EnergySourceRepository
	performance repositories.PerformanceRepository
	plans       repositories.ActionPlanRepository
	bands       models.StatusPolicy
	cache       *Cache
	logger      *zap.Logger
}

func NewReportService(
	seus repositories.SEURepository,
	sources repositories.EnergySourceRepository,
	performance repositories.PerformanceRepository,
	plans repositories.ActionPlanRepository,
	bands models.StatusPolicy,
	cache *Cache,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		seus:        seus,
		sources:     sources,
		performance: performance,
		plans:       plans,
		bands:       bands,
		cache:       cache,
		logger:      logger.Named("report"),
	}
}

var _ ReportService = (*reportService)(nil)

func (s *reportService) Generate(ctx context.Context, factory, periodToken string) (*models.EnPIReport, error) {
	period, err := models.ParsePeriodToken(periodToken)
	if err != nil {
		return nil, err
	}

	if cached := s.cache.GetReport(ctx, factory, period.Label); cached != nil {
		metrics.ReportsGenerated.WithLabelValues("cache").Inc()
		return cached, nil
	}

	seus, err := s.seus.ListByFactory(ctx, factory, true)
	if err != nil {
		return nil, err
	}
	if len(seus) == 0 {
		return nil, apperrors.NotFound("factory %q has no active SEUs", factory)
	}

	ids := make([]uuid.UUID, len(seus))
	for i, seu := range seus {
		ids[i] = seu.ID
	}
	records, err := s.performance.ListForPeriod(ctx, ids, period.Start, period.End)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		// A report full of zeros would classify as on-track; refusing is
		// more honest than fabricating a verdict from nothing.
		return nil, apperrors.InsufficientData("no performance records for factory %q in %s", factory, period.Label)
	}

	perSEU := map[uuid.UUID]*models.SEUPerformanceSummary{}
	for _, rec := range records {
		row := perSEU[rec.SEUID]
		if row == nil {
			row = &models.SEUPerformanceSummary{SEUID: rec.SEUID}
			perSEU[rec.SEUID] = row
		}
		row.ExpectedKWh += rec.ExpectedKWh
		row.ActualKWh += rec.ActualKWh
		row.SavingsKWh += rec.SavingsKWh
		row.SavingsCost = row.SavingsCost.Add(rec.SavingsCost)
		row.RecordCount++
	}

	report := &models.EnPIReport{
		Factory:     factory,
		Period:      period,
		GeneratedAt: time.Now().UTC(),
	}

	srcByID := map[uuid.UUID]*models.EnergySource{}
	for _, seu := range seus {
		row, ok := perSEU[seu.ID]
		if !ok {
			continue // active SEU without records this period
		}
		src := srcByID[seu.EnergySourceID]
		if src == nil {
			src, err = s.sources.GetByID(ctx, seu.EnergySourceID)
			if err != nil {
				return nil, err
			}
			srcByID[seu.EnergySourceID] = src
		}
		row.SEUName = seu.Name
		row.EnergySource = src.Name
		// Deviation is recomputed from the summed totals; averaging the
		// per-record percentages would weight a short window like a long one.
		if row.ExpectedKWh > 0 {
			row.DeviationPct = (row.ActualKWh - row.ExpectedKWh) / row.ExpectedKWh * 100
		}
		row.ISOStatus = s.bands.Classify(row.DeviationPct)

		report.TotalExpectedKWh += row.ExpectedKWh
		report.TotalActualKWh += row.ActualKWh
		report.TotalSavingsKWh += row.SavingsKWh
		report.TotalSavingsCost = report.TotalSavingsCost.Add(row.SavingsCost)
		report.CarbonSavedKgCO2 += row.SavingsKWh * src.CarbonFactor
		report.SEUs = append(report.SEUs, *row)
	}

	report.DeviationKWh = report.TotalActualKWh - report.TotalExpectedKWh
	if report.TotalExpectedKWh > 0 {
		report.DeviationPct = report.DeviationKWh / report.TotalExpectedKWh * 100
	}
	report.OverallStatus = s.bands.Classify(report.DeviationPct)

	// Worst performers first.
	sort.SliceStable(report.SEUs, func(i, j int) bool {
		if report.SEUs[i].DeviationPct != report.SEUs[j].DeviationPct {
			return report.SEUs[i].DeviationPct > report.SEUs[j].DeviationPct
		}
		return report.SEUs[i].SEUName < report.SEUs[j].SEUName
	})

	counts, err := s.plans.CountByStatus(ctx, factory)
	if err != nil {
		return nil, err
	}
	report.ActionPlansByStatus = counts
	report.Summary = reportSummary(report)

	s.cache.SetReport(ctx, factory, period.Label, report)
	metrics.ReportsGenerated.WithLabelValues("store").Inc()
	s.logger.Info("report generated",
		zap.String("factory", factory),
		zap.String("period", period.Label),
		zap.Int("seus", len(report.SEUs)),
		zap.Float64("deviation_pct", report.DeviationPct),
		zap.String("overall_status", string(report.OverallStatus)))
	return report, nil
}
