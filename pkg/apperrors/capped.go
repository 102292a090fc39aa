package apperrors

import "fmt"

// CappedWarning flags a computed value that exceeded a storage bound and was
// clamped. It is not an error: the operation succeeded, but the response must
// carry the flag so a clamped figure is never mistaken for an unconstrained
// one.
type CappedWarning struct {
	Field  string  `json:"field"`
	Raw    float64 `json:"raw"`
	Capped float64 `json:"capped"`
}

func (w CappedWarning) String() string {
	return fmt.Sprintf("%s capped at %.2f (raw value %.2f exceeds storage bound)", w.Field, w.Capped, w.Raw)
}

// CapValue clamps v to [-limit, +limit] and reports a warning when clamping
// occurred. Storage fields with NUMERIC(p,2) semantics use this so overflow
// becomes a flagged cap instead of a write error or wrapped garbage.
func CapValue(field string, v, limit float64) (float64, *CappedWarning) {
	if v > limit {
		return limit, &CappedWarning{Field: field, Raw: v, Capped: limit}
	}
	if v < -limit {
		return -limit, &CappedWarning{Field: field, Raw: v, Capped: -limit}
	}
	return v, nil
}
