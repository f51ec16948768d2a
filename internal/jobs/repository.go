package jobs

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scriptstudio/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create inserts a queued run inside tx so the row and its River job commit together.
func (r *Repository) Create(ctx context.Context, tx pgx.Tx, run *models.Run) error {
	return tx.QueryRow(ctx, `
		INSERT INTO operation_runs (id, user_id, operation, status, input)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, run.ID, run.UserID, run.Operation, run.Status, run.Input).Scan(&run.CreatedAt, &run.UpdatedAt)
}

const runColumns = `id, user_id, operation, status, input, result, error, created_at, updated_at, completed_at`

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	err := row.Scan(&run.ID, &run.UserID, &run.Operation, &run.Status, &run.Input, &run.Result,
		&run.Error, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error) {
	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM operation_runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	return run, err
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Run, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+runColumns+`
		FROM operation_runs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (r *Repository) MarkRunning(ctx context.Context, runID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE operation_runs SET status = 'running', updated_at = now() WHERE id = $1 AND status = 'queued'
	`, runID)
	return err
}

func (r *Repository) MarkCompleted(ctx context.Context, runID uuid.UUID, result json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE operation_runs SET status = 'completed', result = $1, completed_at = now(), updated_at = now() WHERE id = $2
	`, result, runID)
	return err
}

func (r *Repository) MarkFailed(ctx context.Context, runID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE operation_runs SET status = 'failed', error = $1, completed_at = now(), updated_at = now() WHERE id = $2
	`, reason, runID)
	return err
}
