package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EnergySource is immutable reference data describing one metered energy
// carrier (electricity, natural gas, compressed air). Created at setup time;
// SEUs and feature catalogs hang off it.
type EnergySource struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"` // unique, e.g. "electricity"
	Unit         string          `json:"unit"` // e.g. "kWh"
	CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
	CarbonFactor float64         `json:"carbon_factor"` // kg CO2e per unit
	CreatedAt    time.Time       `json:"created_at"`
}

// Canonical energy source names seeded by the migrations.
const (
	SourceElectricity   = "electricity"
	SourceNaturalGas    = "natural_gas"
	SourceCompressedAir = "compressed_air"
)
