package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
	"github.com/enmetrica/enpi-engine/pkg/services"
)

// mockBaselineService is a configurable mock for handler tests.
type mockBaselineService struct {
	baseline   *models.Baseline
	prediction *services.Prediction
	history    []*models.Baseline
	err        error

	lastTrain   services.TrainRequest
	lastPredict services.PredictRequest
}

func (m *mockBaselineService) Train(ctx context.Context, req services.TrainRequest) (*models.Baseline, error) {
	m.lastTrain = req
	if m.err != nil {
		return nil, m.err
	}
	if m.baseline != nil {
		return m.baseline, nil
	}
	return &models.Baseline{ID: uuid.New(), BaselineYear: req.BaselineYear, IsActive: true}, nil
}

func (m *mockBaselineService) Predict(ctx context.Context, req services.PredictRequest) (*services.Prediction, error) {
	m.lastPredict = req
	if m.err != nil {
		return nil, m.err
	}
	if m.prediction != nil {
		return m.prediction, nil
	}
	return &services.Prediction{SEUName: req.Identifier, PredictedKWh: 1234.5}, nil
}

func (m *mockBaselineService) GetActive(ctx context.Context, seuName string) (*models.Baseline, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.baseline != nil {
		return m.baseline, nil
	}
	return &models.Baseline{ID: uuid.New(), IsActive: true}, nil
}

func (m *mockBaselineService) History(ctx context.Context, seuName string) ([]*models.Baseline, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.history, nil
}

// mockPerformanceService returns a canned track result.
type mockPerformanceService struct {
	result      *services.TrackResult
	computation *services.Computation
	err         error

	lastTrack services.TrackRequest
}

func (m *mockPerformanceService) Track(ctx context.Context, req services.TrackRequest) (*services.TrackResult, error) {
	m.lastTrack = req
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &services.TrackResult{
		Record:  &models.PerformanceRecord{ID: uuid.New(), SEUID: uuid.New()},
		Summary: "tracked",
	}, nil
}

func (m *mockPerformanceService) ComputeRecord(ctx context.Context, seuName string, from, to time.Time) (*services.Computation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.computation, nil
}

// mockAnalysisService returns a canned analysis.
type mockAnalysisService struct {
	analysis *models.PerformanceAnalysis
	err      error

	lastReq services.AnalyzeRequest
}

func (m *mockAnalysisService) Analyze(ctx context.Context, req services.AnalyzeRequest) (*models.PerformanceAnalysis, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	if m.analysis != nil {
		return m.analysis, nil
	}
	return &models.PerformanceAnalysis{SEUName: req.SEUName, Summary: "within tolerance"}, nil
}

// mockOpportunityService returns canned scan results and templates.
type mockOpportunityService struct {
	scan     *models.OpportunityScan
	template *models.ActionPlanTemplate
	err      error

	lastFactory  string
	lastTemplate services.TemplateRequest
}

func (m *mockOpportunityService) Scan(ctx context.Context, factory string, from, to time.Time) (*models.OpportunityScan, error) {
	m.lastFactory = factory
	if m.err != nil {
		return nil, m.err
	}
	if m.scan != nil {
		return m.scan, nil
	}
	return &models.OpportunityScan{Factory: factory, WindowStart: from, WindowEnd: to}, nil
}

func (m *mockOpportunityService) Template(ctx context.Context, req services.TemplateRequest) (*models.ActionPlanTemplate, error) {
	m.lastTemplate = req
	if m.err != nil {
		return nil, m.err
	}
	if m.template != nil {
		return m.template, nil
	}
	return &models.ActionPlanTemplate{IssueType: req.IssueType}, nil
}

// mockReportService returns a canned report.
type mockReportService struct {
	report *models.EnPIReport
	err    error

	lastFactory string
	lastToken   string
}

func (m *mockReportService) Generate(ctx context.Context, factory, periodToken string) (*models.EnPIReport, error) {
	m.lastFactory = factory
	m.lastToken = periodToken
	if m.err != nil {
		return nil, m.err
	}
	if m.report != nil {
		return m.report, nil
	}
	return &models.EnPIReport{Factory: factory}, nil
}

// mockPlanService is a configurable mock for plan handler tests.
type mockPlanService struct {
	plan  *models.ActionPlan
	plans []*models.ActionPlan
	err   error

	lastCreate services.PlanCreateRequest
	lastUpdate services.PlanUpdateRequest
	lastFilter repositories.ActionPlanFilter
}

func (m *mockPlanService) Create(ctx context.Context, req services.PlanCreateRequest) (*models.ActionPlan, error) {
	m.lastCreate = req
	if m.err != nil {
		return nil, m.err
	}
	if m.plan != nil {
		return m.plan, nil
	}
	return &models.ActionPlan{ID: uuid.New(), Title: req.Title, Status: models.PlanStatusPlanned}, nil
}

func (m *mockPlanService) Get(ctx context.Context, id uuid.UUID) (*models.ActionPlan, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.plan != nil {
		return m.plan, nil
	}
	return &models.ActionPlan{ID: id}, nil
}

func (m *mockPlanService) Update(ctx context.Context, id uuid.UUID, req services.PlanUpdateRequest) (*models.ActionPlan, error) {
	m.lastUpdate = req
	if m.err != nil {
		return nil, m.err
	}
	if m.plan != nil {
		return m.plan, nil
	}
	return &models.ActionPlan{ID: id}, nil
}

func (m *mockPlanService) List(ctx context.Context, filter repositories.ActionPlanFilter) ([]*models.ActionPlan, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return m.plans, nil
}

// mockTargetService is a configurable mock for target handler tests.
type mockTargetService struct {
	target  *models.Target
	targets []*models.Target
	err     error

	lastCreate services.TargetCreateRequest
}

func (m *mockTargetService) Create(ctx context.Context, req services.TargetCreateRequest) (*models.Target, error) {
	m.lastCreate = req
	if m.err != nil {
		return nil, m.err
	}
	if m.target != nil {
		return m.target, nil
	}
	return &models.Target{ID: uuid.New(), TargetYear: req.TargetYear}, nil
}

func (m *mockTargetService) ListBySEU(ctx context.Context, seuName string) ([]*models.Target, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.targets, nil
}
