package models

import (
	"time"

	"github.com/google/uuid"
)

// SEU is a Significant Energy Use: one logical energy consumer tracked
// independently for compliance. A physical machine may back multiple SEUs,
// one per energy source it consumes. SEUs are never hard-deleted while
// performance records reference them; deactivation hides them from scans and
// reports.
type SEU struct {
	ID             uuid.UUID `json:"id"`
	Factory        string    `json:"factory"`
	Name           string    `json:"name"` // unique
	EnergySourceID uuid.UUID `json:"energy_source_id"`
	EnergySource   string    `json:"energy_source,omitempty"` // denormalized name, filled on reads
	EquipmentIDs   []string  `json:"equipment_ids"`
	// RatedPowerKW is the aggregate rated capacity of the underlying
	// equipment; zero when unknown. Used by idle detection.
	RatedPowerKW float64   `json:"rated_power_kw,omitempty"`
	Description  string    `json:"description,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
