// Package orchestrator runs credit-gated agent operations: validate, gate on
// the fixed cost, submit, poll to completion, extract, then charge once.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scriptstudio/backend/internal/agent"
	"github.com/scriptstudio/backend/internal/extract"
	"github.com/scriptstudio/backend/internal/ledger"
	"github.com/scriptstudio/backend/internal/models"
	"github.com/scriptstudio/backend/internal/poller"
	"github.com/scriptstudio/backend/internal/services"
)

const defaultTrendCount = 10

// Ledger is the part of ledger.Service the orchestrator needs.
type Ledger interface {
	RequireCredits(ctx context.Context, userID uuid.UUID, required int64) error
	Deduct(ctx context.Context, userID, chargeID uuid.UUID, taskID string, amount int64) (int64, error)
}

// TaskStore remembers which user submitted each agent task; *TaskRepository implements it.
type TaskStore interface {
	Record(ctx context.Context, userID uuid.UUID, taskID, op string) error
	Owner(ctx context.Context, taskID string) (uuid.UUID, error)
}

type TaskClient interface {
	Submit(ctx context.Context, req agent.SubmitRequest) (*agent.Submission, error)
	FetchStatus(ctx context.Context, taskID string) (*agent.TaskStatus, error)
}

type Poller interface {
	Run(ctx context.Context, taskID string) (*agent.TaskStatus, error)
}

type Validator interface {
	ValidateInput(operation string, input json.RawMessage) error
	ValidateOutput(operation string, doc any) error
	extract.TrendValidator
}

// Settings selects agent profiles and locale.
type Settings struct {
	ProfileAnalyze string
	ProfileScript  string
	ProfileTrends  string
	Locale         string
}

type AnalyzeReferenceInput struct {
	VideoURL    string `json:"videoUrl"`
	Niche       string `json:"niche,omitempty"`
	CreatorName string `json:"creatorName,omitempty"`
}

type GenerateScriptInput struct {
	Theme             string `json:"theme"`
	ReferenceAnalysis string `json:"referenceAnalysis,omitempty"`
	// Duration is one of short, medium or long.
	Duration string `json:"duration,omitempty"`
	// PreviousTaskID continues an earlier agent conversation.
	PreviousTaskID string `json:"previousTaskId,omitempty"`
}

type DailyTrendsInput struct {
	Niche string `json:"niche,omitempty"`
	Count int    `json:"count,omitempty"`
}

// Result is the outcome of one successful operation.
type Result struct {
	Operation      string          `json:"operation"`
	TaskID         string          `json:"taskId"`
	TaskURL        string          `json:"taskUrl,omitempty"`
	ShareURL       string          `json:"shareUrl,omitempty"`
	Text           string          `json:"text,omitempty"`
	Trends         []extract.Trend `json:"trends,omitempty"`
	Degraded       bool            `json:"degraded,omitempty"`
	CreditsCharged int64           `json:"creditsCharged"`
	NewBalance     int64           `json:"newBalance"`
}

type Service struct {
	ledger    Ledger
	tasks     TaskStore
	client    TaskClient
	poller    Poller
	validator Validator
	settings  Settings
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the orchestrator. metrics and logger may be nil.
func NewService(l Ledger, t TaskStore, c TaskClient, p Poller, v Validator, s Settings, m *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		ledger:    l,
		tasks:     t,
		client:    c,
		poller:    p,
		validator: v,
		settings:  s,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) AnalyzeReference(ctx context.Context, userID uuid.UUID, in AnalyzeReferenceInput) (*Result, error) {
	return s.run(ctx, userID, models.OperationAnalyzeReference, in, agent.SubmitRequest{
		Prompt:       analyzePrompt(in),
		AgentProfile: s.settings.ProfileAnalyze,
		Attachments:  []agent.Attachment{{URL: in.VideoURL}},
		Locale:       s.settings.Locale,
	}, nil)
}

// GenerateScript continues PreviousTaskID when set, which must belong to userID.
func (s *Service) GenerateScript(ctx context.Context, userID uuid.UUID, in GenerateScriptInput) (*Result, error) {
	if in.PreviousTaskID != "" {
		if err := s.checkOwner(ctx, userID, in.PreviousTaskID); err != nil {
			return nil, fmt.Errorf("previous task: %w", err)
		}
	}
	return s.run(ctx, userID, models.OperationGenerateScript, in, agent.SubmitRequest{
		Prompt:       scriptPrompt(in),
		AgentProfile: s.settings.ProfileScript,
		TaskID:       in.PreviousTaskID,
		Locale:       s.settings.Locale,
	}, nil)
}

func (s *Service) GetDailyTrends(ctx context.Context, userID uuid.UUID, in DailyTrendsInput) (*Result, error) {
	if in.Count == 0 {
		in.Count = defaultTrendCount
	}
	return s.run(ctx, userID, models.OperationDailyTrends, in, agent.SubmitRequest{
		Prompt:       trendsPrompt(in, s.now()),
		AgentProfile: s.settings.ProfileTrends,
		Locale:       s.settings.Locale,
	}, func(res *Result) {
		res.Trends, res.Degraded = extract.ParseTrends(res.Text, s.validator)
		if res.Degraded {
			s.logger.Warn("trend list could not be decoded, returning raw text", "task_id", res.TaskID)
		}
	})
}

// TaskStatus is a single uncharged status read. Tasks submitted by someone
// else are reported as agent.ErrTaskNotFound.
func (s *Service) TaskStatus(ctx context.Context, userID uuid.UUID, taskID string) (*agent.TaskStatus, error) {
	if err := s.checkOwner(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.client.FetchStatus(ctx, taskID)
}

func (s *Service) checkOwner(ctx context.Context, userID uuid.UUID, taskID string) error {
	owner, err := s.tasks.Owner(ctx, taskID)
	if err != nil {
		return err
	}
	if owner != userID {
		return fmt.Errorf("%w: %s", agent.ErrTaskNotFound, taskID)
	}
	return nil
}

// Execute dispatches a named operation with a raw JSON input. Async runs use it.
func (s *Service) Execute(ctx context.Context, userID uuid.UUID, op string, input json.RawMessage) (*Result, error) {
	if err := s.validator.ValidateInput(op, input); err != nil {
		return nil, err
	}
	switch op {
	case models.OperationAnalyzeReference:
		var in AnalyzeReferenceInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrValidation, err)
		}
		return s.AnalyzeReference(ctx, userID, in)
	case models.OperationGenerateScript:
		var in GenerateScriptInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrValidation, err)
		}
		return s.GenerateScript(ctx, userID, in)
	case models.OperationDailyTrends:
		var in DailyTrendsInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", services.ErrValidation, err)
		}
		return s.GetDailyTrends(ctx, userID, in)
	}
	return nil, fmt.Errorf("%w: unknown operation %q", services.ErrValidation, op)
}

// run is the shared flow. Nothing before the final Deduct touches the ledger,
// so any failure up to that point leaves the balance unchanged.
func (s *Service) run(ctx context.Context, userID uuid.UUID, op string, input any, req agent.SubmitRequest, post func(*Result)) (res *Result, err error) {
	started := s.now()
	log := s.logger.With("operation", op, "user_id", userID)
	defer func() {
		s.metrics.observe(op, outcome(err), started)
	}()

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal %s input: %w", op, err)
	}
	if err := s.validator.ValidateInput(op, raw); err != nil {
		return nil, err
	}

	fixed := CostOf(op)
	if err := s.ledger.RequireCredits(ctx, userID, fixed); err != nil {
		return nil, err
	}

	sub, err := s.client.Submit(ctx, req)
	if err != nil {
		log.Warn("agent submit failed", "error", err)
		return nil, err
	}
	log = log.With("task_id", sub.TaskID)
	if err := s.tasks.Record(ctx, userID, sub.TaskID, op); err != nil {
		log.Warn("record task owner failed", "error", err)
	}

	st, err := s.poller.Run(ctx, sub.TaskID)
	if err != nil {
		log.Warn("agent task did not complete", "error", err)
		return nil, err
	}

	out, err := extract.Extract(st)
	if err != nil {
		log.Warn("agent response unusable", "error", err)
		return nil, err
	}
	// Trend text is checked item by item in the post hook and may degrade.
	if op != models.OperationDailyTrends {
		if err := s.validator.ValidateOutput(op, out.Text); err != nil {
			log.Warn("agent output rejected", "error", err)
			return nil, fmt.Errorf("%w: %v", extract.ErrMalformedResponse, err)
		}
	}

	res = &Result{
		Operation: op,
		TaskID:    sub.TaskID,
		TaskURL:   sub.TaskURL,
		ShareURL:  sub.ShareURL,
		Text:      out.Text,
	}
	if post != nil {
		post(res)
	}

	// A continued task keeps its id, so the charge is keyed per invocation.
	chargeID := uuid.New()
	amount := chargeFor(op, out.CreditUsage)
	balance, err := s.ledger.Deduct(ctx, userID, chargeID, sub.TaskID, amount)
	if err != nil {
		log.Error("charge after successful task failed", "charge_id", chargeID, "amount", amount, "error", err)
		return nil, fmt.Errorf("charge task %s: %w", sub.TaskID, err)
	}
	res.CreditsCharged = amount
	res.NewBalance = balance
	s.metrics.charged(op, amount)

	log.Info("operation completed", "charged", amount, "balance", balance, "degraded", res.Degraded)
	return res, nil
}

func outcome(err error) string {
	var insufficient *ledger.InsufficientCreditsError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &insufficient):
		return "insufficient_credits"
	case errors.Is(err, services.ErrValidation):
		return "invalid_input"
	case errors.Is(err, poller.ErrPollTimeout):
		return "timeout"
	case errors.Is(err, poller.ErrTaskFailed):
		return "task_failed"
	case errors.Is(err, extract.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, agent.ErrAgentUnreachable), errors.Is(err, agent.ErrAgentRejected), errors.Is(err, agent.ErrTaskNotFound):
		return "agent_error"
	}
	return "ledger_error"
}
