package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scriptstudio/backend/internal/models"
)

const pgUniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// GetAccount reads the balance columns of one account.
func (r *Repository) GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error) {
	var a models.Account
	err := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, credits, credits_used, created_at, updated_at
		FROM accounts WHERE id = $1
	`, userID).Scan(&a.ID, &a.Email, &a.DisplayName, &a.Credits, &a.CreditsUsed, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Deduct applies one charge in one transaction:
// a) decrements credits and increments credits_used in a single UPDATE evaluated by Postgres
// b) inserts a usage row into credit_ledger; the unique index on charge_id
// rejects a replay of the same charge and the whole transaction rolls back.
// Several charges may reference the same agent task (multi-turn continuations).
func (r *Repository) Deduct(ctx context.Context, userID, chargeID uuid.UUID, taskID string, amount int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE accounts
		SET credits = credits - $1, credits_used = credits_used + $1, updated_at = now()
		WHERE id = $2
		RETURNING credits
	`, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLedgerUpdateFailed
	}
	if err != nil {
		return 0, fmt.Errorf("deduct credits: %w", err)
	}

	entry := &models.CreditEntry{
		ID:           uuid.New(),
		AccountID:    userID,
		ChargeID:     &chargeID,
		TaskID:       &taskID,
		EntryType:    models.CreditEntryUsage,
		Amount:       amount,
		BalanceAfter: newBalance,
	}
	if err := insertEntry(ctx, tx, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, ErrAlreadyCharged
		}
		return 0, fmt.Errorf("insert usage entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// Add credits amount to the account and records a topup entry.
func (r *Repository) Add(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credits = credits + $1, updated_at = now()
		WHERE id = $2
		RETURNING credits
	`, amount, userID).Scan(&newBalance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrLedgerUpdateFailed
	}
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	entry := &models.CreditEntry{
		ID:           uuid.New(),
		AccountID:    userID,
		EntryType:    models.CreditEntryTopUp,
		Amount:       amount,
		BalanceAfter: newBalance,
		Reason:       reason,
	}
	if err := insertEntry(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("insert topup entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ListEntries returns the newest ledger entries for the account.
func (r *Repository) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, charge_id, task_id, entry_type, amount, balance_after, reason, created_at
		FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditEntry
	for rows.Next() {
		var c models.CreditEntry
		if err := rows.Scan(&c.ID, &c.AccountID, &c.ChargeID, &c.TaskID, &c.EntryType, &c.Amount, &c.BalanceAfter, &c.Reason, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

func insertEntry(ctx context.Context, tx pgx.Tx, c *models.CreditEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, account_id, charge_id, task_id, entry_type, amount, balance_after, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, c.ID, c.AccountID, c.ChargeID, c.TaskID, c.EntryType, c.Amount, c.BalanceAfter, c.Reason).Scan(&c.CreatedAt)
}
