package repositories

import (
	"context"
	"fmt"

	"github.com/enmetrica/enpi-engine/pkg/database"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// FeatureRepository loads the feature catalog. The catalog is read in full
// and validated into a features.Registry; nothing queries single rows.
type FeatureRepository interface {
	ListAll(ctx context.Context) ([]models.Feature, error)
}

type featureRepository struct {
	db *database.DB
}

// NewFeatureRepository creates a new FeatureRepository.
func NewFeatureRepository(db *database.DB) FeatureRepository {
	return &featureRepository{db: db}
}

var _ FeatureRepository = (*featureRepository)(nil)

func (r *featureRepository) ListAll(ctx context.Context) ([]models.Feature, error) {
	query := `
		SELECT f.id, f.energy_source_id, es.name, f.name, f.source_table,
		       f.source_column, f.data_type, f.aggregation,
		       COALESCE(f.custom_expr, ''), f.is_regressor,
		       f.scoped_to_equipment, f.created_at
		FROM enpi_features f
		JOIN enpi_energy_sources es ON es.id = f.energy_source_id
		ORDER BY es.name, f.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature catalog: %w", err)
	}
	defer rows.Close()

	var out []models.Feature
	for rows.Next() {
		var f models.Feature
		if err := rows.Scan(
			&f.ID, &f.EnergySourceID, &f.EnergySource, &f.Name, &f.SourceTable,
			&f.SourceColumn, &f.DataType, &f.Aggregation, &f.CustomExpr,
			&f.IsRegressor, &f.ScopedToEquipment, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
