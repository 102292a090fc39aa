package features

import (
	"fmt"
	"regexp"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// identRe matches plain SQL identifiers. Catalog table/column names must
// match; anything needing quoting is rejected outright.
var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// ValidIdentifier reports whether s is safe to interpolate as a table or
// column name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// ScreenResult describes an input that failed the injection screen.
type ScreenResult struct {
	Field       string
	Value       string
	Fingerprint string
}

// ScreenValue runs libinjection over a string that will travel anywhere near
// query construction. Non-hostile values return nil. Catalog rows are data,
// not trusted code: they are screened at registry build time, and request
// inputs are screened again at resolve time.
func ScreenValue(field, value string) *ScreenResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &ScreenResult{Field: field, Value: value, Fingerprint: fingerprint}
}

// exprTokenRe tokenizes a CUSTOM aggregation expression; anything the
// allowlist below does not cover fails validation.
var exprTokenRe = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*|:base|%s|[0-9]+(?:\.[0-9]+)?|[(),+*/-]|\s+`)

// exprAllowedFuncs are the SQL functions a CUSTOM expression may call.
var exprAllowedFuncs = map[string]struct{}{
	"greatest": {},
	"least":    {},
	"abs":      {},
	"coalesce": {},
	"round":    {},
}

// validateCustomExpr enforces the CUSTOM expression contract: it must embed
// the %s daily-aggregate placeholder, may reference the :base policy
// placeholder, and may only combine numbers, the allowlisted functions, and
// arithmetic. Everything else — identifiers, quotes, semicolons, comments —
// is rejected.
func validateCustomExpr(expr string) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return fmt.Errorf("custom aggregation requires an expression")
	}
	if !strings.Contains(trimmed, "%s") {
		return fmt.Errorf("custom expression must contain the %%s aggregate placeholder")
	}
	if strings.Count(trimmed, "%s") > 1 {
		return fmt.Errorf("custom expression must contain exactly one %%s placeholder")
	}

	rest := trimmed
	for len(rest) > 0 {
		loc := exprTokenRe.FindStringIndex(rest)
		if loc == nil || loc[0] != 0 {
			return fmt.Errorf("custom expression contains disallowed text near %q", rest)
		}
		token := rest[:loc[1]]
		rest = rest[loc[1]:]

		switch {
		case strings.TrimSpace(token) == "":
		case token == ":base" || token == "%s":
		case token[0] == '_' || (token[0] >= 'a' && token[0] <= 'z') || (token[0] >= 'A' && token[0] <= 'Z'):
			if _, ok := exprAllowedFuncs[strings.ToLower(token)]; !ok {
				return fmt.Errorf("custom expression calls disallowed function %q", token)
			}
		}
	}
	return nil
}
