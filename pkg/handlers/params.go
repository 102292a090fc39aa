package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// ParsePlanID extracts and validates the action plan ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: plan_id
func ParsePlanID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "plan_id", "invalid_plan_id", "Invalid action plan ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// parseDateParam reads a required YYYY-MM-DD query parameter, writing a 400
// when it is absent or malformed.
func parseDateParam(w http.ResponseWriter, r *http.Request, param string, logger *zap.Logger) (time.Time, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_"+param,
			fmt.Sprintf("Query parameter %q is required (YYYY-MM-DD)", param)); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return time.Time{}, false
	}
	return parseDateValue(w, raw, param, logger)
}

// parseDateValue parses one YYYY-MM-DD string, writing a 400 on failure.
func parseDateValue(w http.ResponseWriter, raw, field string, logger *zap.Logger) (time.Time, bool) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_"+field,
			fmt.Sprintf("Field %q must be a YYYY-MM-DD date, got %q", field, raw)); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return time.Time{}, false
	}
	return t, true
}

// parseOptionalDate parses a YYYY-MM-DD string that may be empty; an empty
// value yields the zero time, which services treat as "not set".
func parseOptionalDate(w http.ResponseWriter, raw, field string, logger *zap.Logger) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	return parseDateValue(w, raw, field, logger)
}

// parseFloatParam reads an optional float query parameter, writing a 400 when
// present but malformed.
func parseFloatParam(w http.ResponseWriter, r *http.Request, param string, logger *zap.Logger) (float64, bool) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_"+param,
			fmt.Sprintf("Query parameter %q must be a number, got %q", param, raw)); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return 0, false
	}
	return v, true
}
