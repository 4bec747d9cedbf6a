package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// ControlHandler serves status, the control switches, mode and risk state.
type ControlHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(engine Engine, logger *slog.Logger) *ControlHandler {
	return &ControlHandler{engine: engine, logger: logger}
}

type killRequest struct {
	Reason string `json:"reason"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// GetStatus responds with the engine status snapshot.
// GET /api/status
func (h *ControlHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Kill stops all evaluation until reset.
// POST /api/control/kill
func (h *ControlHandler) Kill(w http.ResponseWriter, r *http.Request) {
	var req killRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual kill via api"
	}
	h.engine.Kill(r.Context(), reason)
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Pause suspends evaluation.
// POST /api/control/pause
func (h *ControlHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.engine.Pause(r.Context())
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Resume lifts a pause. It has no effect on a killed engine.
// POST /api/control/resume
func (h *ControlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.engine.Resume(r.Context())
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// Reset clears the kill and pause flags.
// POST /api/control/reset
func (h *ControlHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.engine.Reset(r.Context())
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// SetMode switches the autonomy mode.
// PUT /api/mode
func (h *ControlHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		writeEngineError(w, r, h.logger, "set mode", err)
		return
	}
	if err := h.engine.SetMode(r.Context(), mode); err != nil {
		writeEngineError(w, r, h.logger, "set mode", err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// GetRisk returns the current risk state.
// GET /api/risk
func (h *ControlHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.RiskState())
}

// UpdateRisk merges a partial risk-state update.
// PATCH /api/risk
func (h *ControlHandler) UpdateRisk(w http.ResponseWriter, r *http.Request) {
	var patch domain.RiskStatePatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "risk patch has no fields")
		return
	}
	st, err := h.engine.UpdateRiskState(r.Context(), patch)
	if err != nil {
		writeEngineError(w, r, h.logger, "update risk", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
