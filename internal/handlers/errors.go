package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/scriptstudio/backend/internal/agent"
	"github.com/scriptstudio/backend/internal/extract"
	"github.com/scriptstudio/backend/internal/ledger"
	"github.com/scriptstudio/backend/internal/poller"
	"github.com/scriptstudio/backend/internal/services"
)

// StatusClientClosedRequest is the non-standard status logged when the caller
// went away before the operation finished.
const StatusClientClosedRequest = 499

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Balance *int64 `json:"currentBalance,omitempty"`
	Need    *int64 `json:"required,omitempty"`
	Deficit *int64 `json:"deficit,omitempty"`
}

// Classify maps an operation error to an HTTP status and a stable error code.
func Classify(err error) (int, string) {
	var insufficient *ledger.InsufficientCreditsError
	switch {
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "cancelled"
	case errors.As(err, &insufficient):
		return http.StatusPaymentRequired, "insufficient_credits"
	case errors.Is(err, services.ErrValidation), errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_input"
	case errors.Is(err, poller.ErrPollTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "poll_timeout"
	case errors.Is(err, poller.ErrTaskFailed):
		return http.StatusBadGateway, "task_failed"
	case errors.Is(err, extract.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_agent_response"
	case errors.Is(err, agent.ErrTaskNotFound):
		return http.StatusNotFound, "task_not_found"
	case errors.Is(err, agent.ErrAgentUnreachable):
		return http.StatusBadGateway, "agent_unreachable"
	case errors.Is(err, agent.ErrAgentRejected):
		return http.StatusBadGateway, "agent_rejected"
	case errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	}
	return http.StatusInternalServerError, "ledger_error"
}

// WriteError writes the mapped error. Server-side faults are logged at error level.
func WriteError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, code := Classify(err)
	switch {
	case status == StatusClientClosedRequest:
		log.Info("request cancelled by client", "error", err)
		w.WriteHeader(status)
		return
	case status >= 500:
		log.Error("operation failed", "code", code, "error", err)
	default:
		log.Warn("operation rejected", "code", code, "error", err)
	}

	resp := errorResponse{Error: err.Error(), Code: code}
	if status >= 500 && code == "ledger_error" {
		resp.Error = "internal error"
	}
	var insufficient *ledger.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		resp.Balance = &insufficient.CurrentBalance
		resp.Need = &insufficient.Required
		resp.Deficit = &insufficient.Deficit
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteJSON is writeJSON for handlers in other packages.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v)
}
