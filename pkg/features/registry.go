// Package features holds the feature catalog registry and the day-bucketed
// aggregation planner. Every component that needs raw readings goes through
// a plan built here; nothing else in the codebase joins raw tables directly.
package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

// Registry is the validated feature catalog, keyed by energy source name
// and feature name. It is immutable after construction; rebuild it when the
// catalog table changes.
type Registry struct {
	sources map[string]*sourceCatalog
}

type sourceCatalog struct {
	order  []string // catalog insertion order, target first
	byName map[string]models.Feature
}

// NewRegistry validates every catalog row and indexes it. A row with an
// unsafe table/column identifier, a malformed CUSTOM expression, or an
// unknown aggregation rule fails construction: a bad catalog row must never
// reach the SQL planner.
func NewRegistry(feats []models.Feature) (*Registry, error) {
	r := &Registry{sources: make(map[string]*sourceCatalog)}

	for _, f := range feats {
		if err := validateCatalogEntry(f); err != nil {
			return nil, err
		}

		cat, ok := r.sources[f.EnergySource]
		if !ok {
			cat = &sourceCatalog{byName: make(map[string]models.Feature)}
			r.sources[f.EnergySource] = cat
		}
		if _, dup := cat.byName[f.Name]; dup {
			return nil, apperrors.Validation("duplicate feature %q for energy source %q", f.Name, f.EnergySource)
		}
		cat.byName[f.Name] = f
		if f.Name == models.TargetFeature {
			cat.order = append([]string{f.Name}, cat.order...)
		} else {
			cat.order = append(cat.order, f.Name)
		}
	}

	for source, cat := range r.sources {
		if _, ok := cat.byName[models.TargetFeature]; !ok {
			return nil, apperrors.Validation("energy source %q has no %s target feature", source, models.TargetFeature)
		}
	}
	return r, nil
}

// Sources lists the registered energy source names, sorted.
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.sources))
	for name := range r.sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Candidates returns the regressor features of an energy source in catalog
// order, i.e. the auto-selection candidate pool.
func (r *Registry) Candidates(source string) ([]models.Feature, error) {
	cat, ok := r.sources[source]
	if !ok {
		return nil, apperrors.NotFoundWithAlternatives(
			fmt.Sprintf("unknown energy source %q", source), r.Sources())
	}
	var out []models.Feature
	for _, name := range cat.order {
		if f := cat.byName[name]; f.IsRegressor {
			out = append(out, f)
		}
	}
	return out, nil
}

// Target returns the energy target feature of a source.
func (r *Registry) Target(source string) (models.Feature, error) {
	cat, ok := r.sources[source]
	if !ok {
		return models.Feature{}, apperrors.NotFoundWithAlternatives(
			fmt.Sprintf("unknown energy source %q", source), r.Sources())
	}
	return cat.byName[models.TargetFeature], nil
}

// Resolve maps requested feature names onto validated catalog entries,
// preserving request order. An unknown name fails with a validation error
// naming the offender and listing the valid features for that source.
// Requested names are screened for injection patterns before lookup; the
// screen runs first so a hostile name is reported as hostile, not merely
// unknown.
func (r *Registry) Resolve(source string, names []string) ([]models.Feature, error) {
	cat, ok := r.sources[source]
	if !ok {
		return nil, apperrors.NotFoundWithAlternatives(
			fmt.Sprintf("unknown energy source %q", source), r.Sources())
	}

	resolved := make([]models.Feature, 0, len(names))
	for _, name := range names {
		if hit := ScreenValue("feature", name); hit != nil {
			return nil, apperrors.Validation("feature name %q rejected: injection pattern %s", name, hit.Fingerprint)
		}
		f, ok := cat.byName[name]
		if !ok {
			return nil, apperrors.ValidationWithAlternatives(
				fmt.Sprintf("unknown feature %q for energy source %q", name, source),
				cat.order)
		}
		resolved = append(resolved, f)
	}
	return resolved, nil
}

func validateCatalogEntry(f models.Feature) error {
	if f.EnergySource == "" {
		return apperrors.Validation("feature %q has no energy source name", f.Name)
	}
	if !ValidIdentifier(f.Name) {
		return apperrors.Validation("feature name %q is not a valid identifier", f.Name)
	}
	if !ValidIdentifier(f.SourceTable) {
		return apperrors.Validation("feature %q: source table %q is not a valid identifier", f.Name, f.SourceTable)
	}
	if !ValidIdentifier(f.SourceColumn) {
		return apperrors.Validation("feature %q: source column %q is not a valid identifier", f.Name, f.SourceColumn)
	}
	if hit := ScreenValue("source_table", f.SourceTable); hit != nil {
		return apperrors.Validation("feature %q: source table rejected: injection pattern %s", f.Name, hit.Fingerprint)
	}
	if hit := ScreenValue("source_column", f.SourceColumn); hit != nil {
		return apperrors.Validation("feature %q: source column rejected: injection pattern %s", f.Name, hit.Fingerprint)
	}
	if !models.ValidAggregationRule(f.Aggregation) {
		return apperrors.Validation("feature %q: unknown aggregation rule %q", f.Name, f.Aggregation)
	}

	if f.Aggregation == models.AggregationCustom {
		if err := validateCustomExpr(f.CustomExpr); err != nil {
			return apperrors.Validation("feature %q: %v", f.Name, err)
		}
	} else if strings.TrimSpace(f.CustomExpr) != "" {
		return apperrors.Validation("feature %q: custom expression set but aggregation is %s", f.Name, f.Aggregation)
	}
	return nil
}
