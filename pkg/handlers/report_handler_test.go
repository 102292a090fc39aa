package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

func TestReportHandler_Generate_Success(t *testing.T) {
	mock := &mockReportService{report: &models.EnPIReport{
		Factory:        "plant_nord",
		TotalActualKWh: 182000,
		OverallStatus:  models.StatusOnTrack,
	}}
	handler := NewReportHandler(mock, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/factories/plant_nord/reports/2025-Q2", nil)
	req.SetPathValue("factory", "plant_nord")
	req.SetPathValue("period", "2025-Q2")
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "plant_nord", mock.lastFactory)
	assert.Equal(t, "2025-Q2", mock.lastToken)

	var response ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.True(t, response.Success)
}

func TestReportHandler_Generate_BadPeriodToken(t *testing.T) {
	mock := &mockReportService{err: apperrors.ValidationWithAlternatives(
		`invalid report period "2025-Q5"`, []string{"2025", "2025-Q1", "2025-Q2", "2025-Q3", "2025-Q4"})}
	handler := NewReportHandler(mock, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/factories/plant_nord/reports/2025-Q5", nil)
	req.SetPathValue("factory", "plant_nord")
	req.SetPathValue("period", "2025-Q5")
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Contains(t, errResp.Alternatives, "2025-Q1")
}

func TestReportHandler_Generate_NoSEUs(t *testing.T) {
	mock := &mockReportService{err: apperrors.NotFound("no SEUs registered for factory %q", "plant_ost")}
	handler := NewReportHandler(mock, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/factories/plant_ost/reports/2025", nil)
	req.SetPathValue("factory", "plant_ost")
	req.SetPathValue("period", "2025")
	rec := httptest.NewRecorder()

	handler.Generate(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
