package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
)

// ApiResponse wraps successful payloads.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorBody is the wire shape of a failed request. Alternatives carries the
// valid inputs when the service could enumerate them, so a caller who sent an
// unknown feature or energy source sees what it could have asked for.
type ErrorBody struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	Alternatives []string `json:"alternatives,omitempty"`
	Retryable    bool     `json:"retryable,omitempty"`
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse writes a JSON error response and returns any encoding error.
// Handlers use it for transport-level rejections (malformed body, bad path
// parameter); service errors go through RespondError instead.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(ErrorBody{Error: errorCode, Message: message})
}

// RespondError translates a service error onto the wire: the error kind picks
// the status code, the structured message and alternatives pass through.
// Internal causes stay in the log, never in the response body.
func RespondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}
	status := statusForKind(appErr.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", zap.Error(err))
	}
	if wErr := WriteJSON(w, status, ErrorBody{
		Error:        string(appErr.Kind),
		Message:      appErr.Message,
		Alternatives: appErr.Alternatives,
		Retryable:    appErr.Retryable,
	}); wErr != nil {
		logger.Error("Failed to write error response", zap.Error(wErr))
	}
}

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindInsufficientData, apperrors.KindDegenerateModel:
		return http.StatusUnprocessableEntity
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindAggregationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
