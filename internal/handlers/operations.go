package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/scriptstudio/backend/internal/agent"
	"github.com/scriptstudio/backend/internal/middleware"
	"github.com/scriptstudio/backend/internal/orchestrator"
	"github.com/scriptstudio/backend/internal/services"
)

const maxBodyBytes = 1 << 20

// Orchestrator is the interface the operation handlers call into.
type Orchestrator interface {
	AnalyzeReference(ctx context.Context, userID uuid.UUID, in orchestrator.AnalyzeReferenceInput) (*orchestrator.Result, error)
	GenerateScript(ctx context.Context, userID uuid.UUID, in orchestrator.GenerateScriptInput) (*orchestrator.Result, error)
	GetDailyTrends(ctx context.Context, userID uuid.UUID, in orchestrator.DailyTrendsInput) (*orchestrator.Result, error)
	TaskStatus(ctx context.Context, userID uuid.UUID, taskID string) (*agent.TaskStatus, error)
}

// OperationHandler serves the synchronous costed operations. Each request
// blocks until the agent task finishes or its context is cancelled.
type OperationHandler struct {
	Orchestrator Orchestrator
	Logger       *slog.Logger
}

func NewOperationHandler(o Orchestrator, log *slog.Logger) *OperationHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OperationHandler{Orchestrator: o, Logger: log}
}

// POST /api/v1/references/analyze
func (h *OperationHandler) AnalyzeReference(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.AnalyzeReferenceInput
	userID, ok := h.decode(w, r, &in)
	if !ok {
		return
	}
	res, err := h.Orchestrator.AnalyzeReference(r.Context(), userID, in)
	h.respond(w, res, err)
}

// POST /api/v1/scripts/generate
func (h *OperationHandler) GenerateScript(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.GenerateScriptInput
	userID, ok := h.decode(w, r, &in)
	if !ok {
		return
	}
	res, err := h.Orchestrator.GenerateScript(r.Context(), userID, in)
	h.respond(w, res, err)
}

// POST /api/v1/trends/daily
func (h *OperationHandler) DailyTrends(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.DailyTrendsInput
	userID, ok := h.decode(w, r, &in)
	if !ok {
		return
	}
	res, err := h.Orchestrator.GetDailyTrends(r.Context(), userID, in)
	h.respond(w, res, err)
}

// GET /api/v1/agent-tasks/{id}
// Only the submitting user sees a task; anyone else gets 404.
func (h *OperationHandler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	taskID := r.PathValue("id")
	if taskID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing task id"})
		return
	}
	st, err := h.Orchestrator.TaskStatus(r.Context(), userID, taskID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *OperationHandler) decode(w http.ResponseWriter, r *http.Request, dst any) (uuid.UUID, bool) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return uuid.Nil, false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		WriteError(w, h.Logger, fmt.Errorf("%w: %v", services.ErrValidation, err))
		return uuid.Nil, false
	}
	return userID, true
}

func (h *OperationHandler) respond(w http.ResponseWriter, res *orchestrator.Result, err error) {
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
