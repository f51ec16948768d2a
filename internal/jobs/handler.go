package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/scriptstudio/backend/internal/handlers"
	"github.com/scriptstudio/backend/internal/middleware"
	"github.com/scriptstudio/backend/internal/models"
	"github.com/scriptstudio/backend/internal/services"
)

type CreateRunRequest struct {
	Operation string          `json:"operation"`
	Input     json.RawMessage `json:"input"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// POST /api/v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if !models.IsValidOperation(req.Operation) {
		handlers.WriteError(w, h.log, fmt.Errorf("%w: unknown operation %q", services.ErrValidation, req.Operation))
		return
	}
	if len(req.Input) == 0 {
		req.Input = json.RawMessage(`{}`)
	}
	run, err := h.svc.Enqueue(r.Context(), userID, req.Operation, req.Input)
	if err != nil {
		handlers.WriteError(w, h.log, err)
		return
	}
	handlers.WriteJSON(w, http.StatusAccepted, run)
}

// GET /api/v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.List(r.Context(), userID)
	if err != nil {
		h.log.Error("list runs failed", "error", err)
		http.Error(w, "list runs failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Run{}
	}
	handlers.WriteJSON(w, http.StatusOK, list)
}

// GET /api/v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	run, err := h.svc.Get(r.Context(), userID, runID)
	if errors.Is(err, ErrRunNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("get run failed", "run_id", runID, "error", err)
		http.Error(w, "get run failed", http.StatusInternalServerError)
		return
	}
	handlers.WriteJSON(w, http.StatusOK, run)
}
