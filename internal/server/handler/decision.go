package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/tradepilot/internal/domain"
)

// DecisionHandler serves the decision lifecycle endpoints.
type DecisionHandler struct {
	engine Engine
	lookup DecisionLookup
	logger *slog.Logger
}

// NewDecisionHandler creates a DecisionHandler. lookup may be nil.
func NewDecisionHandler(engine Engine, lookup DecisionLookup, logger *slog.Logger) *DecisionHandler {
	return &DecisionHandler{
		engine: engine,
		lookup: lookup,
		logger: logger,
	}
}

type evaluateRequest struct {
	Opportunity domain.Opportunity `json:"opportunity"`
	Analysis    domain.Analysis    `json:"analysis"`
}

type approveRequest struct {
	Approver string `json:"approver"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type decisionsResponse struct {
	Decisions []domain.Decision `json:"decisions"`
	Count     int               `json:"count"`
}

func newDecisionsResponse(ds []domain.Decision) decisionsResponse {
	if ds == nil {
		ds = []domain.Decision{}
	}
	return decisionsResponse{Decisions: ds, Count: len(ds)}
}

// Evaluate runs an opportunity through the engine. A risk-gate rejection is
// a normal 200 response carrying the rejected decision.
// POST /api/decisions/evaluate
func (h *DecisionHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := h.engine.EvaluateOpportunity(r.Context(), req.Opportunity, req.Analysis)
	if err != nil {
		writeEngineError(w, r, h.logger, "evaluate", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListPending returns live pending decisions, oldest first.
// GET /api/decisions/pending
func (h *DecisionHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newDecisionsResponse(h.engine.PendingDecisions(r.Context())))
}

// ListHistory returns recent decisions, newest first.
// GET /api/decisions?limit=50
func (h *DecisionHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 1000)
	writeJSON(w, http.StatusOK, newDecisionsResponse(h.engine.DecisionHistory(r.Context(), limit)))
}

// GetDecision returns one decision by id, falling back to the persisted copy
// when the engine has evicted it.
// GET /api/decisions/{id}
func (h *DecisionHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing decision id")
		return
	}

	d, err := h.engine.Decision(r.Context(), id)
	if errors.Is(err, domain.ErrDecisionNotFound) && h.lookup != nil {
		d, err = h.lookup.Get(r.Context(), id)
	}
	if err != nil {
		writeEngineError(w, r, h.logger, "get decision", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Approve resolves a pending decision as approved and dispatches it.
// POST /api/decisions/{id}/approve
func (h *DecisionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	approver := strings.TrimSpace(req.Approver)
	if approver == "" {
		approver = "api"
	}

	d, err := h.engine.ApproveDecision(r.Context(), pathParam(r, "id"), approver)
	if err != nil {
		writeEngineError(w, r, h.logger, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Reject resolves a pending decision as rejected.
// POST /api/decisions/{id}/reject
func (h *DecisionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := h.engine.RejectDecision(r.Context(), pathParam(r, "id"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeEngineError(w, r, h.logger, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
