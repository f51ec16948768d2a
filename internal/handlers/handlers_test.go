package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/scriptstudio/backend/internal/agent"
	"github.com/scriptstudio/backend/internal/extract"
	"github.com/scriptstudio/backend/internal/ledger"
	"github.com/scriptstudio/backend/internal/middleware"
	"github.com/scriptstudio/backend/internal/models"
	"github.com/scriptstudio/backend/internal/orchestrator"
	"github.com/scriptstudio/backend/internal/poller"
	"github.com/scriptstudio/backend/internal/services"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubOrchestrator struct {
	res      *orchestrator.Result
	err      error
	status   *agent.TaskStatus
	owner    uuid.UUID
	gotInput any
}

func (s *stubOrchestrator) AnalyzeReference(_ context.Context, _ uuid.UUID, in orchestrator.AnalyzeReferenceInput) (*orchestrator.Result, error) {
	s.gotInput = in
	return s.res, s.err
}

func (s *stubOrchestrator) GenerateScript(_ context.Context, _ uuid.UUID, in orchestrator.GenerateScriptInput) (*orchestrator.Result, error) {
	s.gotInput = in
	return s.res, s.err
}

func (s *stubOrchestrator) GetDailyTrends(_ context.Context, _ uuid.UUID, in orchestrator.DailyTrendsInput) (*orchestrator.Result, error) {
	s.gotInput = in
	return s.res, s.err
}

func (s *stubOrchestrator) TaskStatus(_ context.Context, userID uuid.UUID, _ string) (*agent.TaskStatus, error) {
	if s.owner != uuid.Nil && s.owner != userID {
		return nil, agent.ErrTaskNotFound
	}
	return s.status, s.err
}

type stubLedger struct {
	stats   ledger.Stats
	addErr  error
	added   int64
	entries []*models.CreditEntry
}

func (s *stubLedger) GetStats(context.Context, uuid.UUID) (ledger.Stats, error) {
	return s.stats, nil
}

func (s *stubLedger) Add(_ context.Context, _ uuid.UUID, amount int64, _ string) (int64, error) {
	if s.addErr != nil {
		return 0, s.addErr
	}
	s.added += amount
	return s.stats.CurrentBalance + s.added, nil
}

func (s *stubLedger) History(context.Context, uuid.UUID, int) ([]*models.CreditEntry, error) {
	return s.entries, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func authed(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithUserID(r.Context(), uuid.New()))
}

func post(path, body string) *http.Request {
	return authed(httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
}

// =====================================================================
// Operations
// =====================================================================

func TestAnalyzeReference_OK(t *testing.T) {
	orch := &stubOrchestrator{res: &orchestrator.Result{Operation: "analyze_reference", TaskID: "task-1", Text: "A", CreditsCharged: 80, NewBalance: 920}}
	h := NewOperationHandler(orch, slog.Default())

	rec := httptest.NewRecorder()
	h.AnalyzeReference(rec, post("/api/v1/references/analyze", `{"videoUrl":"https://v.example/1","niche":"food"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got orchestrator.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.NewBalance != 920 || got.Text != "A" {
		t.Errorf("got %+v", got)
	}
	in, _ := orch.gotInput.(orchestrator.AnalyzeReferenceInput)
	if in.VideoURL != "https://v.example/1" || in.Niche != "food" {
		t.Errorf("input not decoded: %+v", in)
	}
}

func TestOperations_Unauthenticated(t *testing.T) {
	h := NewOperationHandler(&stubOrchestrator{}, slog.Default())

	rec := httptest.NewRecorder()
	h.GenerateScript(rec, httptest.NewRequest(http.MethodPost, "/api/v1/scripts/generate", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOperations_UnknownFieldRejected(t *testing.T) {
	orch := &stubOrchestrator{}
	h := NewOperationHandler(orch, slog.Default())

	rec := httptest.NewRecorder()
	h.DailyTrends(rec, post("/api/v1/trends/daily", `{"count":3,"bogus":true}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if orch.gotInput != nil {
		t.Error("orchestrator must not be called for a bad body")
	}
}

func TestOperations_InsufficientCreditsBody(t *testing.T) {
	orch := &stubOrchestrator{err: &ledger.InsufficientCreditsError{CurrentBalance: 20, Required: 30, Deficit: 10}}
	h := NewOperationHandler(orch, slog.Default())

	rec := httptest.NewRecorder()
	h.DailyTrends(rec, post("/api/v1/trends/daily", `{}`))

	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["code"] != "insufficient_credits" {
		t.Errorf("code: got %v", body["code"])
	}
	if body["deficit"] != float64(10) || body["currentBalance"] != float64(20) || body["required"] != float64(30) {
		t.Errorf("balance fields: got %v", body)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&ledger.InsufficientCreditsError{}, http.StatusPaymentRequired, "insufficient_credits"},
		{&poller.TimeoutError{TaskID: "t", Attempts: 150}, http.StatusGatewayTimeout, "poll_timeout"},
		{fmt.Errorf("poll task t: %w", context.Canceled), StatusClientClosedRequest, "cancelled"},
		{&agent.UnreachableError{Op: "submit task", Err: errors.New("dial tcp")}, http.StatusBadGateway, "agent_unreachable"},
		{&agent.RejectedError{Op: "submit task", StatusCode: 401}, http.StatusBadGateway, "agent_rejected"},
		{&poller.TaskFailedError{TaskID: "t"}, http.StatusBadGateway, "task_failed"},
		{fmt.Errorf("x: %w", extract.ErrMalformedResponse), http.StatusBadGateway, "malformed_agent_response"},
		{agent.ErrTaskNotFound, http.StatusNotFound, "task_not_found"},
		{fmt.Errorf("%w: bad", services.ErrValidation), http.StatusUnprocessableEntity, "invalid_input"},
		{ledger.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_input"},
		{ledger.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{fmt.Errorf("charge task t: %w", ledger.ErrAlreadyCharged), http.StatusInternalServerError, "ledger_error"},
		{ledger.ErrLedgerUpdateFailed, http.StatusInternalServerError, "ledger_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			status, code := Classify(tc.err)
			if status != tc.status || code != tc.code {
				t.Errorf("Classify(%v): got %d/%s, want %d/%s", tc.err, status, code, tc.status, tc.code)
			}
		})
	}
}

func TestWriteError_CancelledHasNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, slog.Default(), context.Canceled)
	if rec.Code != StatusClientClosedRequest {
		t.Fatalf("expected 499, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
}

func TestTaskStatus_OK(t *testing.T) {
	orch := &stubOrchestrator{status: &agent.TaskStatus{ID: "task-9", Status: agent.StatusRunning}}
	h := NewOperationHandler(orch, slog.Default())

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/agent-tasks/task-9", nil))
	req.SetPathValue("id", "task-9")
	rec := httptest.NewRecorder()
	h.TaskStatus(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"running"`) {
		t.Errorf("body: %s", rec.Body.String())
	}
}

func TestTaskStatus_OtherUsersTaskIsNotFound(t *testing.T) {
	orch := &stubOrchestrator{
		owner:  uuid.New(),
		status: &agent.TaskStatus{ID: "task-9", Status: agent.StatusCompleted},
	}
	h := NewOperationHandler(orch, slog.Default())

	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/agent-tasks/task-9", nil))
	req.SetPathValue("id", "task-9")
	rec := httptest.NewRecorder()
	h.TaskStatus(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"status":"completed"`) {
		t.Errorf("body leaks task status: %s", rec.Body.String())
	}
}

// =====================================================================
// Credits
// =====================================================================

func TestGetBalance(t *testing.T) {
	l := &stubLedger{stats: ledger.Stats{CurrentBalance: 1420, TotalUsed: 80, TotalEarned: 1500}}
	h := NewCreditHandler(l, slog.Default())

	rec := httptest.NewRecorder()
	h.GetBalance(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got ledger.Stats
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got != l.stats {
		t.Errorf("got %+v, want %+v", got, l.stats)
	}
}

func TestAddCredits(t *testing.T) {
	l := &stubLedger{stats: ledger.Stats{CurrentBalance: 920}}
	h := NewCreditHandler(l, slog.Default())

	rec := httptest.NewRecorder()
	h.AddCredits(rec, post("/api/v1/credits", `{"amount":500,"reason":"plan"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got addCreditsResponse
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.NewBalance != 1420 {
		t.Errorf("newBalance: got %d, want 1420", got.NewBalance)
	}
}

func TestAddCredits_InvalidAmount(t *testing.T) {
	l := &stubLedger{addErr: ledger.ErrInvalidAmount}
	h := NewCreditHandler(l, slog.Default())

	rec := httptest.NewRecorder()
	h.AddCredits(rec, post("/api/v1/credits", `{"amount":-5}`))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHistory_EmptyIsArray(t *testing.T) {
	h := NewCreditHandler(&stubLedger{}, slog.Default())

	rec := httptest.NewRecorder()
	h.History(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/credits/history?limit=5", nil)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body: got %q, want []", rec.Body.String())
	}
}

func TestHistory_BadLimit(t *testing.T) {
	h := NewCreditHandler(&stubLedger{}, slog.Default())

	rec := httptest.NewRecorder()
	h.History(rec, authed(httptest.NewRequest(http.MethodGet, "/api/v1/credits/history?limit=ten", nil)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
