package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/enmetrica/enpi-engine/pkg/services"
)

// TrainBaselineRequest for POST /api/baselines/train
type TrainBaselineRequest struct {
	SEUName      string   `json:"seu_name"`
	EnergySource string   `json:"energy_source,omitempty"`
	BaselineYear int      `json:"baseline_year"`
	PeriodStart  string   `json:"period_start"` // YYYY-MM-DD
	PeriodEnd    string   `json:"period_end"`   // YYYY-MM-DD
	Features     []string `json:"features,omitempty"`
}

// PredictRequest for POST /api/baselines/predict
type PredictRequest struct {
	Identifier   string             `json:"identifier"`
	EnergySource string             `json:"energy_source,omitempty"`
	Values       map[string]float64 `json:"values"`
}

// BaselineHandler serves baseline training, prediction, and history.
type BaselineHandler struct {
	baselines services.BaselineService
	logger    *zap.Logger
}

// NewBaselineHandler creates a new baseline handler.
func NewBaselineHandler(baselines services.BaselineService, logger *zap.Logger) *BaselineHandler {
	return &BaselineHandler{baselines: baselines, logger: logger}
}

// RegisterRoutes registers the baseline handler's routes on the given mux.
func (h *BaselineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/baselines/train", h.Train)
	mux.HandleFunc("POST /api/baselines/predict", h.Predict)
	mux.HandleFunc("GET /api/seus/{seu_name}/baseline", h.GetActive)
	mux.HandleFunc("GET /api/seus/{seu_name}/baselines", h.History)
}

// Train handles POST /api/baselines/train
func (h *BaselineHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	start, ok := parseDateValue(w, req.PeriodStart, "period_start", h.logger)
	if !ok {
		return
	}
	end, ok := parseDateValue(w, req.PeriodEnd, "period_end", h.logger)
	if !ok {
		return
	}

	baseline, err := h.baselines.Train(r.Context(), services.TrainRequest{
		SEUName:      req.SEUName,
		EnergySource: req.EnergySource,
		BaselineYear: req.BaselineYear,
		PeriodStart:  start,
		PeriodEnd:    end,
		Features:     req.Features,
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: baseline}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Predict handles POST /api/baselines/predict
func (h *BaselineHandler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	prediction, err := h.baselines.Predict(r.Context(), services.PredictRequest{
		Identifier:   req.Identifier,
		EnergySource: req.EnergySource,
		Values:       req.Values,
	})
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: prediction}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetActive handles GET /api/seus/{seu_name}/baseline
func (h *BaselineHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	baseline, err := h.baselines.GetActive(r.Context(), r.PathValue("seu_name"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: baseline}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// History handles GET /api/seus/{seu_name}/baselines
func (h *BaselineHandler) History(w http.ResponseWriter, r *http.Request) {
	baselines, err := h.baselines.History(r.Context(), r.PathValue("seu_name"))
	if err != nil {
		RespondError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: baselines}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
