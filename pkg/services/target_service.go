package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
	"github.com/enmetrica/enpi-engine/pkg/repositories"
)

// TargetCreateRequest defines a reduction target for one SEU and year,
// expressed as a percentage of the baseline year's total consumption.
type TargetCreateRequest struct {
	SEUName      string
	TargetYear   int
	BaselineYear int
	ReductionPct float64
}

// TargetService manages annual reduction targets. Progress against a target
// is written by the performance tracker as periods are recorded, never here.
type TargetService interface {
	Create(ctx context.Context, req TargetCreateRequest) (*models.Target, error)
	ListBySEU(ctx context.Context, seuName string) ([]*models.Target, error)
}

type targetService struct {
	targets   repositories.TargetRepository
	baselines repositories.BaselineRepository
	seus      repositories.SEURepository
	logger    *zap.Logger
}

func NewTargetService(
	targets repositories.TargetRepository,
	baselines repositories.BaselineRepository,
	seus repositories.SEURepository,
	logger *zap.Logger,
) TargetService {
	return &targetService{
		targets:   targets,
		baselines: baselines,
		seus:      seus,
		logger:    logger.Named("target"),
	}
}

var _ TargetService = (*targetService)(nil)

func (s *targetService) Create(ctx context.Context, req TargetCreateRequest) (*models.Target, error) {
	if req.ReductionPct <= 0 || req.ReductionPct > 100 {
		return nil, apperrors.Validation("reduction percent must be within (0, 100], got %.1f", req.ReductionPct)
	}
	if req.TargetYear < req.BaselineYear {
		return nil, apperrors.Validation("target year %d is before baseline year %d", req.TargetYear, req.BaselineYear)
	}

	seu, err := s.seus.GetByName(ctx, req.SEUName)
	if err != nil {
		return nil, err
	}
	baseline, err := s.baselines.GetActiveForYear(ctx, seu.ID, req.BaselineYear)
	if err != nil {
		return nil, err
	}

	target := &models.Target{
		SEUID:            seu.ID,
		TargetYear:       req.TargetYear,
		BaselineYear:     req.BaselineYear,
		ReductionPct:     req.ReductionPct,
		TargetSavingsKWh: baseline.TotalEnergyKWh * req.ReductionPct / 100,
	}
	if err := s.targets.Create(ctx, target); err != nil {
		return nil, err
	}

	s.logger.Info("target created",
		zap.String("seu", seu.Name),
		zap.Int("target_year", req.TargetYear),
		zap.Float64("reduction_pct", req.ReductionPct),
		zap.Float64("target_savings_kwh", target.TargetSavingsKWh))
	return target, nil
}

func (s *targetService) ListBySEU(ctx context.Context, seuName string) ([]*models.Target, error) {
	seu, err := s.seus.GetByName(ctx, seuName)
	if err != nil {
		return nil, err
	}
	return s.targets.ListBySEU(ctx, seu.ID)
}
