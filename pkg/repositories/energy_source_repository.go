package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/database"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// EnergySourceRepository provides data access for energy source reference
// rows.
type EnergySourceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.EnergySource, error)
	GetByName(ctx context.Context, name string) (*models.EnergySource, error)
	List(ctx context.Context) ([]*models.EnergySource, error)
}

type energySourceRepository struct {
	db *database.DB
}

// NewEnergySourceRepository creates a new EnergySourceRepository.
func NewEnergySourceRepository(db *database.DB) EnergySourceRepository {
	return &energySourceRepository{db: db}
}

var _ EnergySourceRepository = (*energySourceRepository)(nil)

const energySourceColumns = `id, name, unit, cost_per_unit, carbon_factor, created_at`

func (r *energySourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EnergySource, error) {
	query := `SELECT ` + energySourceColumns + ` FROM enpi_energy_sources WHERE id = $1`

	var src models.EnergySource
	err := r.db.QueryRow(ctx, query, id).Scan(
		&src.ID, &src.Name, &src.Unit, &src.CostPerUnit, &src.CarbonFactor, &src.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("energy source %s not found", id)
		}
		return nil, fmt.Errorf("failed to get energy source: %w", err)
	}
	return &src, nil
}

func (r *energySourceRepository) GetByName(ctx context.Context, name string) (*models.EnergySource, error) {
	query := `SELECT ` + energySourceColumns + ` FROM enpi_energy_sources WHERE name = $1`

	var src models.EnergySource
	err := r.db.QueryRow(ctx, query, name).Scan(
		&src.ID, &src.Name, &src.Unit, &src.CostPerUnit, &src.CarbonFactor, &src.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			known, listErr := r.List(ctx)
			if listErr != nil {
				return nil, apperrors.NotFound("energy source %q not found", name)
			}
			names := make([]string, 0, len(known))
			for _, k := range known {
				names = append(names, k.Name)
			}
			return nil, apperrors.NotFoundWithAlternatives(
				fmt.Sprintf("energy source %q not found", name), names)
		}
		return nil, fmt.Errorf("failed to get energy source by name: %w", err)
	}
	return &src, nil
}

func (r *energySourceRepository) List(ctx context.Context) ([]*models.EnergySource, error) {
	query := `SELECT ` + energySourceColumns + ` FROM enpi_energy_sources ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list energy sources: %w", err)
	}
	defer rows.Close()

	var out []*models.EnergySource
	for rows.Next() {
		var src models.EnergySource
		if err := rows.Scan(&src.ID, &src.Name, &src.Unit, &src.CostPerUnit, &src.CarbonFactor, &src.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan energy source: %w", err)
		}
		out = append(out, &src)
	}
	return out, rows.Err()
}
