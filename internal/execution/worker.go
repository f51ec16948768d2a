package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/scriptstudio/backend/internal/orchestrator"
)

type RunOperationArgs struct {
	RunID     uuid.UUID       `json:"run_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Operation string          `json:"operation"`
	Input     json.RawMessage `json:"input"`
}

func (RunOperationArgs) Kind() string { return "run_operation" }

// InsertOpts pins every run to a single attempt: a costed operation that
// already reached the agent must never be submitted twice by the queue.
func (RunOperationArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// RunTracker defines the contract the worker needs to report progress.
type RunTracker interface {
	MarkRunning(ctx context.Context, runID uuid.UUID) error
	MarkCompleted(ctx context.Context, runID uuid.UUID, result []byte) error
	MarkFailed(ctx context.Context, runID uuid.UUID, reason string) error
}

// Executor runs one named operation; *orchestrator.Service implements it.
type Executor interface {
	Execute(ctx context.Context, userID uuid.UUID, op string, input json.RawMessage) (*orchestrator.Result, error)
}

type RunOperationWorker struct {
	river.WorkerDefaults[RunOperationArgs]
	tracker  RunTracker
	executor Executor
	timeout  time.Duration
	log      *slog.Logger
}

// NewRunOperationWorker builds the worker. timeout replaces River's one-minute
// default job timeout and must exceed the poll budget.
func NewRunOperationWorker(t RunTracker, e Executor, timeout time.Duration, log *slog.Logger) *RunOperationWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RunOperationWorker{tracker: t, executor: e, timeout: timeout, log: log}
}

// Timeout overrides the client-wide JobTimeout for runs.
func (w *RunOperationWorker) Timeout(*river.Job[RunOperationArgs]) time.Duration {
	return w.timeout
}

func (w *RunOperationWorker) Work(ctx context.Context, job *river.Job[RunOperationArgs]) error {
	args := job.Args
	log := w.log.With("run_id", args.RunID, "operation", args.Operation)

	if err := w.tracker.MarkRunning(ctx, args.RunID); err != nil {
		return fmt.Errorf("failed to mark run running: %w", err)
	}

	res, err := w.executor.Execute(ctx, args.UserID, args.Operation, args.Input)
	if err != nil {
		log.Warn("run failed", "error", err)
		return w.failRun(ctx, args.RunID, err)
	}

	body, err := json.Marshal(res)
	if err != nil {
		return w.failRun(ctx, args.RunID, fmt.Errorf("marshal result: %w", err))
	}
	if err := w.tracker.MarkCompleted(ctx, args.RunID, body); err != nil {
		// The charge has been applied; only the run record is stale.
		log.Error("run completed but could not be recorded", "task_id", res.TaskID, "error", err)
		return river.JobCancel(fmt.Errorf("failed to mark run completed: %w", err))
	}
	log.Info("run completed", "task_id", res.TaskID, "charged", res.CreditsCharged)
	return nil
}

// failRun records the failure and cancels the job so River does not retry it.
func (w *RunOperationWorker) failRun(ctx context.Context, runID uuid.UUID, cause error) error {
	if markErr := w.tracker.MarkFailed(context.WithoutCancel(ctx), runID, cause.Error()); markErr != nil {
		return river.JobCancel(fmt.Errorf("run failed (%v) AND failed to mark run as failed: %w", cause, markErr))
	}
	return river.JobCancel(cause)
}
