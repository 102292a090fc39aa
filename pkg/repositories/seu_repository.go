package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/database"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// SEURepository provides data access for significant energy uses.
type SEURepository interface {
	Create(ctx context.Context, seu *models.SEU) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SEU, error)
	GetByName(ctx context.Context, name string) (*models.SEU, error)
	// GetByEquipment resolves the SEU backing a machine for one energy
	// source. A physical machine may back multiple SEUs, one per source.
	GetByEquipment(ctx context.Context, equipmentID, energySource string) (*models.SEU, error)
	ListByFactory(ctx context.Context, factory string, onlyActive bool) ([]*models.SEU, error)
	ListNames(ctx context.Context) ([]string, error)
}

type seuRepository struct {
	db *database.DB
}

// NewSEURepository creates a new SEURepository.
func NewSEURepository(db *database.DB) SEURepository {
	return &seuRepository{db: db}
}

var _ SEURepository = (*seuRepository)(nil)

const seuSelect = `
	SELECT s.id, s.factory, s.name, s.energy_source_id, es.name,
	       s.equipment_ids, s.rated_power_kw, COALESCE(s.description, ''),
	       s.is_active, s.created_at, s.updated_at
	FROM enpi_seus s
	JOIN enpi_energy_sources es ON es.id = s.energy_source_id`

func scanSEU(row pgx.Row) (*models.SEU, error) {
	var seu models.SEU
	err := row.Scan(
		&seu.ID, &seu.Factory, &seu.Name, &seu.EnergySourceID, &seu.EnergySource,
		&seu.EquipmentIDs, &seu.RatedPowerKW, &seu.Description,
		&seu.IsActive, &seu.CreatedAt, &seu.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &seu, nil
}

func (r *seuRepository) Create(ctx context.Context, seu *models.SEU) error {
	now := time.Now()

	query := `
		INSERT INTO enpi_seus (
			factory, name, energy_source_id, equipment_ids, rated_power_kw,
			description, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		seu.Factory,
		seu.Name,
		seu.EnergySourceID,
		seu.EquipmentIDs,
		seu.RatedPowerKW,
		nullString(seu.Description),
		seu.IsActive,
		now,
	).Scan(&seu.ID, &seu.CreatedAt, &seu.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.Conflict("SEU %q already exists", seu.Name)
		}
		return fmt.Errorf("failed to create SEU: %w", err)
	}
	return nil
}

func (r *seuRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SEU, error) {
	seu, err := scanSEU(r.db.QueryRow(ctx, seuSelect+` WHERE s.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("SEU %s not found", id)
		}
		return nil, fmt.Errorf("failed to get SEU: %w", err)
	}
	return seu, nil
}

func (r *seuRepository) GetByName(ctx context.Context, name string) (*models.SEU, error) {
	seu, err := scanSEU(r.db.QueryRow(ctx, seuSelect+` WHERE s.name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			names, listErr := r.ListNames(ctx)
			if listErr != nil {
				return nil, apperrors.NotFound("SEU %q not found", name)
			}
			return nil, apperrors.NotFoundWithAlternatives(
				fmt.Sprintf("SEU %q not found", name), names)
		}
		return nil, fmt.Errorf("failed to get SEU by name: %w", err)
	}
	return seu, nil
}

func (r *seuRepository) GetByEquipment(ctx context.Context, equipmentID, energySource string) (*models.SEU, error) {
	query := seuSelect + ` WHERE $1 = ANY(s.equipment_ids) AND es.name = $2 AND s.is_active`

	seu, err := scanSEU(r.db.QueryRow(ctx, query, equipmentID, energySource))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("no active SEU tracks equipment %q on energy source %q", equipmentID, energySource)
		}
		return nil, fmt.Errorf("failed to get SEU by equipment: %w", err)
	}
	return seu, nil
}

func (r *seuRepository) ListByFactory(ctx context.Context, factory string, onlyActive bool) ([]*models.SEU, error) {
	query := seuSelect + ` WHERE s.factory = $1`
	if onlyActive {
		query += ` AND s.is_active`
	}
	query += ` ORDER BY s.name`

	rows, err := r.db.Query(ctx, query, factory)
	if err != nil {
		return nil, fmt.Errorf("failed to list SEUs: %w", err)
	}
	defer rows.Close()

	var out []*models.SEU
	for rows.Next() {
		seu, err := scanSEU(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan SEU: %w", err)
		}
		out = append(out, seu)
	}
	return out, rows.Err()
}

func (r *seuRepository) ListNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT name FROM enpi_seus ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list SEU names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
