package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/apperrors"
	"github.com/enmetrica/enpi-engine/pkg/models"
)

func TestAnalysisHandler_Analyze_Success(t *testing.T) {
	mock := &mockAnalysisService{analysis: &models.PerformanceAnalysis{
		SEUName:      "compressor_station",
		EnergySource: "electricity",
		Summary:      "consumption ran 12.4% over expectation; compressed air leaks are the leading suspect",
	}}
	handler := NewAnalysisHandler(mock, zap.NewNop())

	body := `{"seu_name": "compressor_station", "date": "2025-06-15"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Analyze(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "compressor_station", mock.lastReq.SEUName)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), mock.lastReq.Date)

	var response ApiResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.True(t, response.Success)
}

func TestAnalysisHandler_Analyze_FutureDate(t *testing.T) {
	mock := &mockAnalysisService{err: apperrors.Validation("cannot analyze 2099-01-01: the date is in the future")}
	handler := NewAnalysisHandler(mock, zap.NewNop())

	body := `{"seu_name": "compressor_station", "date": "2099-01-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Analyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "validation", errResp.Error)
	assert.Contains(t, errResp.Message, "future")
}

func TestAnalysisHandler_Analyze_BadDate(t *testing.T) {
	handler := NewAnalysisHandler(&mockAnalysisService{}, zap.NewNop())

	body := `{"seu_name": "compressor_station", "date": "June 15"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Analyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisHandler_Analyze_MalformedJSON(t *testing.T) {
	handler := NewAnalysisHandler(&mockAnalysisService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader("{"))
	rec := httptest.NewRecorder()

	handler.Analyze(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisHandler_Analyze_AggregationTimeoutMarksRetryable(t *testing.T) {
	mock := &mockAnalysisService{err: apperrors.AggregationTimeout(context.DeadlineExceeded)}
	handler := NewAnalysisHandler(mock, zap.NewNop())

	body := `{"seu_name": "compressor_station", "date": "2025-06-15"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analysis", strings.NewReader(body))
	rec := httptest.NewRecorder()

	handler.Analyze(rec, req)

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	var errResp ErrorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.True(t, errResp.Retryable)
}
