package features

import (
	"fmt"
	"strings"
	"time"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// QueryPlan is a ready-to-execute aggregation query. Columns names the
// result columns after the leading day column, in SELECT order.
type QueryPlan struct {
	SQL     string
	Args    []any
	Columns []string
	Tables  []string // distinct source tables, anchor first
}

// DayRow is one calendar day of aggregated values. A nil value means the
// backing table had no readings that day — which is not the same as a
// reading of zero, and must never be treated as one.
type DayRow struct {
	Day    time.Time
	Values map[string]*float64
}

// Coverage summarizes how much of a window the energy table actually
// observed, in distinct hours.
type Coverage struct {
	ObservedHours float64
	PeriodHours   float64
}

// Ratio returns observed over period hours, in [0, 1].
func (c Coverage) Ratio() float64 {
	if c.PeriodHours <= 0 {
		return 0
	}
	r := c.ObservedHours / c.PeriodHours
	if r > 1 {
		return 1
	}
	return r
}

// PlanBuilder turns resolved catalog features into day-bucketed SQL. Every
// source table is collapsed to one row per calendar day inside its own CTE
// before any join happens; joining raw tables with different sampling rates
// would multiply rows and corrupt every SUM downstream.
type PlanBuilder struct {
	// DegreeDayBaseC feeds the :base placeholder of CUSTOM expressions.
	DegreeDayBaseC float64
}

// Build produces the day-bucketed aggregation plan for one SEU and window.
// feats must include the energy target; the target's table anchors the
// join, so days without energy readings are absent from the result rather
// than fabricated as zeros. Driver values missing on an observed day come
// back NULL.
func (pb *PlanBuilder) Build(seu *models.SEU, from, to time.Time, feats []models.Feature) (QueryPlan, error) {
	if !to.After(from) {
		return QueryPlan{}, apperrors.Validation("period end %s is not after period start %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	anchorTable := ""
	for _, f := range feats {
		if f.Name == models.TargetFeature {
			anchorTable = f.SourceTable
			break
		}
	}
	if anchorTable == "" {
		return QueryPlan{}, apperrors.Internal(fmt.Errorf("aggregation plan built without the %s target", models.TargetFeature))
	}

	// Group features per source table, preserving first-appearance order
	// with the anchor table forced first.
	tables := []string{anchorTable}
	perTable := map[string][]models.Feature{}
	scoped := map[string]bool{}
	for _, f := range feats {
		if _, seen := perTable[f.SourceTable]; !seen && f.SourceTable != anchorTable {
			tables = append(tables, f.SourceTable)
		}
		perTable[f.SourceTable] = append(perTable[f.SourceTable], f)
		if f.ScopedToEquipment {
			scoped[f.SourceTable] = true
		}
	}

	args := []any{from, to}
	equipmentArg := 0
	needBase := false
	for _, f := range feats {
		if f.Aggregation == models.AggregationCustom && strings.Contains(f.CustomExpr, ":base") {
			needBase = true
		}
	}
	for _, t := range tables {
		if scoped[t] {
			if len(seu.EquipmentIDs) == 0 {
				return QueryPlan{}, apperrors.Validation("SEU %q has no equipment identifiers but table %q is equipment-scoped", seu.Name, t)
			}
			args = append(args, seu.EquipmentIDs)
			equipmentArg = len(args)
			break
		}
	}
	baseArg := 0
	if needBase {
		args = append(args, pb.DegreeDayBaseC)
		baseArg = len(args)
	}

	var sb strings.Builder
	sb.WriteString("WITH ")
	aliases := map[string]string{}
	for i, table := range tables {
		alias := fmt.Sprintf("t%d", i)
		aliases[table] = alias
		if i > 0 {
			sb.WriteString(", ")
		}
		pb.writeDailyCTE(&sb, table, perTable[table], scoped[table], equipmentArg, baseArg)
	}

	sb.WriteString("\nSELECT t0.day")
	var columns []string
	for _, f := range feats {
		fmt.Fprintf(&sb, ", %s.%s", aliases[f.SourceTable], f.Name)
		columns = append(columns, f.Name)
	}
	fmt.Fprintf(&sb, "\nFROM %s_daily t0", anchorTable)
	for i, table := range tables[1:] {
		fmt.Fprintf(&sb, "\nLEFT JOIN %s_daily t%d ON t%d.day = t0.day", table, i+1, i+1)
	}
	sb.WriteString("\nORDER BY t0.day")

	return QueryPlan{SQL: sb.String(), Args: args, Columns: columns, Tables: tables}, nil
}

// writeDailyCTE emits one per-table CTE: raw readings collapsed to one row
// per calendar day with every requested feature of that table as a column.
func (pb *PlanBuilder) writeDailyCTE(sb *strings.Builder, table string, feats []models.Feature, scoped bool, equipmentArg, baseArg int) {
	fmt.Fprintf(sb, "%s_daily AS (\n", table)
	sb.WriteString("    SELECT date_trunc('day', ts)::date AS day")
	for _, f := range feats {
		fmt.Fprintf(sb, ",\n           %s AS %s", pb.aggregateExpr(f, baseArg), f.Name)
	}
	fmt.Fprintf(sb, "\n    FROM %s\n    WHERE ts >= $1 AND ts < $2", table)
	if scoped {
		fmt.Fprintf(sb, " AND equipment_id = ANY($%d)", equipmentArg)
	}
	sb.WriteString("\n    GROUP BY 1\n)")
}

func (pb *PlanBuilder) aggregateExpr(f models.Feature, baseArg int) string {
	switch f.Aggregation {
	case models.AggregationSum:
		return fmt.Sprintf("SUM(%s)", f.SourceColumn)
	case models.AggregationAvg:
		return fmt.Sprintf("AVG(%s)", f.SourceColumn)
	default: // CUSTOM, validated at registry build time
		expr := strings.ReplaceAll(f.CustomExpr, "%s", fmt.Sprintf("AVG(%s)", f.SourceColumn))
		return strings.ReplaceAll(expr, ":base", fmt.Sprintf("$%d", baseArg))
	}
}

// BuildCoverage produces the coverage probe for a window: how many distinct
// hours of the energy table actually hold readings. The tracker projects
// partial periods from this.
func (pb *PlanBuilder) BuildCoverage(seu *models.SEU, from, to time.Time, target models.Feature) (QueryPlan, error) {
	if !to.After(from) {
		return QueryPlan{}, apperrors.Validation("period end %s is not after period start %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	args := []any{from, to}
	var where string
	if target.ScopedToEquipment {
		if len(seu.EquipmentIDs) == 0 {
			return QueryPlan{}, apperrors.Validation("SEU %q has no equipment identifiers but table %q is equipment-scoped", seu.Name, target.SourceTable)
		}
		args = append(args, seu.EquipmentIDs)
		where = " AND equipment_id = ANY($3)"
	}

	sql := fmt.Sprintf(
		"SELECT COUNT(DISTINCT date_trunc('hour', ts))::float8 AS observed_hours\nFROM %s\nWHERE ts >= $1 AND ts < $2%s",
		target.SourceTable, where)

	return QueryPlan{SQL: sql, Args: args, Columns: []string{"observed_hours"}, Tables: []string{target.SourceTable}}, nil
}

// BuildHourly produces an hour-bucketed series of the energy target over a
// window. The opportunity detectors (idle draw, off-hours consumption) work
// on this series; they never touch raw tables either.
func (pb *PlanBuilder) BuildHourly(seu *models.SEU, from, to time.Time, target models.Feature) (QueryPlan, error) {
	if !to.After(from) {
		return QueryPlan{}, apperrors.Validation("period end %s is not after period start %s",
			to.Format("2006-01-02"), from.Format("2006-01-02"))
	}

	args := []any{from, to}
	var where string
	if target.ScopedToEquipment {
		if len(seu.EquipmentIDs) == 0 {
			return QueryPlan{}, apperrors.Validation("SEU %q has no equipment identifiers but table %q is equipment-scoped", seu.Name, target.SourceTable)
		}
		args = append(args, seu.EquipmentIDs)
		where = " AND equipment_id = ANY($3)"
	}

	sql := fmt.Sprintf(
		"SELECT date_trunc('hour', ts) AS hour, SUM(%s) AS %s\nFROM %s\nWHERE ts >= $1 AND ts < $2%s\nGROUP BY 1\nORDER BY 1",
		target.SourceColumn, target.Name, target.SourceTable, where)

	return QueryPlan{SQL: sql, Args: args, Columns: []string{target.Name}, Tables: []string{target.SourceTable}}, nil
}

// HourPoint is one hour of the energy series.
type HourPoint struct {
	Hour time.Time
	KWh  float64
}

// PeriodHours returns the nominal hour count of a window.
func PeriodHours(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}
