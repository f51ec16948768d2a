package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scriptstudio/backend/internal/agent"
)

// TaskRepository stores agent task ownership in agent_tasks.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

var _ TaskStore = (*TaskRepository)(nil)

// Record is a no-op for a task id that is already known; continuations
// keep the original owner.
func (r *TaskRepository) Record(ctx context.Context, userID uuid.UUID, taskID, op string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO agent_tasks (task_id, user_id, operation)
		VALUES ($1, $2, $3)
		ON CONFLICT (task_id) DO NOTHING
	`, taskID, userID, op)
	if err != nil {
		return fmt.Errorf("record agent task: %w", err)
	}
	return nil
}

func (r *TaskRepository) Owner(ctx context.Context, taskID string) (uuid.UUID, error) {
	var owner uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT user_id FROM agent_tasks WHERE task_id = $1`, taskID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %s", agent.ErrTaskNotFound, taskID)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load agent task owner: %w", err)
	}
	return owner, nil
}
