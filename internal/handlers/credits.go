package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/scriptstudio/backend/internal/ledger"
	"github.com/scriptstudio/backend/internal/middleware"
	"github.com/scriptstudio/backend/internal/models"
	"github.com/scriptstudio/backend/internal/services"
)

// CreditLedger is the subset of ledger.Service behind the credit endpoints.
type CreditLedger interface {
	GetStats(ctx context.Context, userID uuid.UUID) (ledger.Stats, error)
	Add(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditEntry, error)
}

type CreditHandler struct {
	Ledger CreditLedger
	Logger *slog.Logger
}

func NewCreditHandler(l CreditLedger, log *slog.Logger) *CreditHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CreditHandler{Ledger: l, Logger: log}
}

type addCreditsRequest struct {
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type addCreditsResponse struct {
	Success    bool  `json:"success"`
	NewBalance int64 `json:"newBalance"`
}

// GET /api/v1/credits
func (h *CreditHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	stats, err := h.Ledger.GetStats(r.Context(), userID)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// POST /api/v1/credits
func (h *CreditHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var req addCreditsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, h.Logger, fmt.Errorf("%w: %v", services.ErrValidation, err))
		return
	}
	if req.Reason == "" {
		req.Reason = "manual top-up"
	}
	bal, err := h.Ledger.Add(r.Context(), userID, req.Amount, req.Reason)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, addCreditsResponse{Success: true, NewBalance: bal})
}

// GET /api/v1/credits/history?limit=N
func (h *CreditHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromCtx(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
			return
		}
		limit = n
	}
	entries, err := h.Ledger.History(r.Context(), userID, limit)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if entries == nil {
		entries = []*models.CreditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
