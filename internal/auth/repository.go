package auth

import (
	"context"
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

// Create inserts a new account with its opening credit balance.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName string, credits int64) (*models.Account, error) {
	a := models.Account{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, display_name, password_hash, credits)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING credits, credits_used, created_at, updated_at
	`, a.ID, email, displayName, passwordHash, credits)
	if err := row.Scan(&a.Credits, &a.CreditsUsed, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByEmail returns the account including its password hash. Returns nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var a models.Account
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, credits, credits_used, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email)
	err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.PasswordHash, &a.Credits, &a.CreditsUsed, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
