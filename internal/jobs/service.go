package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/scriptstudio/backend/internal/execution"
	"github.com/scriptstudio/backend/internal/models"
	"github.com/scriptstudio/backend/internal/orchestrator"
)

var ErrRunNotFound = errors.New("run not found")

const defaultListLimit = 50

// Store is the persistence contract for runs; *Repository implements it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, run *models.Run) error
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Run, error)
	MarkRunning(ctx context.Context, runID uuid.UUID) error
	MarkCompleted(ctx context.Context, runID uuid.UUID, result json.RawMessage) error
	MarkFailed(ctx context.Context, runID uuid.UUID, reason string) error
}

// InputValidator rejects malformed input before anything is queued.
type InputValidator interface {
	ValidateInput(operation string, input json.RawMessage) error
}

// CreditGate is the pre-flight balance check; ledger.Service implements it.
type CreditGate interface {
	RequireCredits(ctx context.Context, userID uuid.UUID, required int64) error
}

type Service interface {
	Enqueue(ctx context.Context, userID uuid.UUID, op string, input json.RawMessage) (*models.Run, error)
	Get(ctx context.Context, userID, runID uuid.UUID) (*models.Run, error)
	List(ctx context.Context, userID uuid.UUID) ([]*models.Run, error)
}

// InsertRunOperationTxFunc enqueues a RunOperation job within the given transaction. Provided by main using river.Client.InsertTx.
type InsertRunOperationTxFunc func(ctx context.Context, tx pgx.Tx, args execution.RunOperationArgs) error

type service struct {
	store        Store
	validator    InputValidator
	credits      CreditGate
	insertRunJob InsertRunOperationTxFunc
	log          *slog.Logger
}

// NewService creates a runs service. Returns *service so it can be used as
// execution.RunTracker for the River worker.
func NewService(store Store, validator InputValidator, credits CreditGate, insertRunJob InsertRunOperationTxFunc, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, validator: validator, credits: credits, insertRunJob: insertRunJob, log: log}
}

var (
	_ Service              = (*service)(nil)
	_ execution.RunTracker = (*service)(nil)
)

// Enqueue validates and gates the request, then writes the run row and its
// River job in one transaction. The worker charges; Enqueue never does.
func (s *service) Enqueue(ctx context.Context, userID uuid.UUID, op string, input json.RawMessage) (*models.Run, error) {
	if err := s.validator.ValidateInput(op, input); err != nil {
		return nil, err
	}
	if err := s.credits.RequireCredits(ctx, userID, orchestrator.CostOf(op)); err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:        uuid.New(),
		UserID:    userID,
		Operation: op,
		Status:    models.RunStatusQueued,
		Input:     input,
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.store.Create(ctx, tx, run); err != nil {
		return nil, err
	}
	if err := s.insertRunJob(ctx, tx, execution.RunOperationArgs{
		RunID:     run.ID,
		UserID:    userID,
		Operation: op,
		Input:     input,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Info("run queued", "run_id", run.ID, "user_id", userID, "operation", op)
	return run, nil
}

// Get returns ErrRunNotFound for runs owned by someone else.
func (s *service) Get(ctx context.Context, userID, runID uuid.UUID) (*models.Run, error) {
	run, err := s.store.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]*models.Run, error) {
	return s.store.ListByUser(ctx, userID, defaultListLimit)
}

// MarkRunning implements execution.RunTracker.
func (s *service) MarkRunning(ctx context.Context, runID uuid.UUID) error {
	return s.store.MarkRunning(ctx, runID)
}

// MarkCompleted implements execution.RunTracker.
func (s *service) MarkCompleted(ctx context.Context, runID uuid.UUID, result []byte) error {
	return s.store.MarkCompleted(ctx, runID, result)
}

// MarkFailed implements execution.RunTracker.
func (s *service) MarkFailed(ctx context.Context, runID uuid.UUID, reason string) error {
	return s.store.MarkFailed(ctx, runID, reason)
}
