package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/scriptstudio/backend/internal/models"
)

// MaxTopUp bounds a single Add call.
const MaxTopUp int64 = 10000

const defaultHistoryLimit = 50

// Store is the storage contract behind the ledger. Deduct and Add must be
// evaluated by the store as single atomic expressions; implementations never
// read a balance and write it back.
type Store interface {
	GetAccount(ctx context.Context, userID uuid.UUID) (*models.Account, error)
	Deduct(ctx context.Context, userID, chargeID uuid.UUID, taskID string, amount int64) (newBalance int64, err error)
	Add(ctx context.Context, userID uuid.UUID, amount int64, reason string) (newBalance int64, err error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditEntry, error)
}

// Stats is the read projection returned to the credit query API.
type Stats struct {
	CurrentBalance int64 `json:"currentBalance"`
	TotalUsed      int64 `json:"totalUsed"`
	TotalEarned    int64 `json:"totalEarned"`
}

type Service interface {
	CheckBalance(ctx context.Context, userID uuid.UUID, required int64) (sufficient bool, currentBalance int64, err error)
	RequireCredits(ctx context.Context, userID uuid.UUID, required int64) error
	Deduct(ctx context.Context, userID, chargeID uuid.UUID, taskID string, amount int64) (int64, error)
	Add(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error)
	GetStats(ctx context.Context, userID uuid.UUID) (Stats, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditEntry, error)
}

type service struct {
	store Store
	log   *slog.Logger
}

func NewService(store Store, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, log: log}
}

var _ Service = (*service)(nil)

// CheckBalance never mutates. Under concurrent spends it may observe a stale
// balance; the charge itself is applied atomically by the store.
func (s *service) CheckBalance(ctx context.Context, userID uuid.UUID, required int64) (bool, int64, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return acc.Credits >= required, acc.Credits, nil
}

// RequireCredits is the pre-flight gate run before any costed operation.
// It is advisory, not a lock.
func (s *service) RequireCredits(ctx context.Context, userID uuid.UUID, required int64) error {
	ok, balance, err := s.CheckBalance(ctx, userID, required)
	if err != nil {
		return err
	}
	if !ok {
		return &InsufficientCreditsError{
			CurrentBalance: balance,
			Required:       required,
			Deficit:        required - balance,
		}
	}
	s.log.Debug("credits available", "user_id", userID, "balance", balance, "required", required)
	return nil
}

// Deduct does not re-check sufficiency; callers gate with RequireCredits.
// chargeID identifies one operation invocation and is applied at most once.
func (s *service) Deduct(ctx context.Context, userID, chargeID uuid.UUID, taskID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: deduct %d", ErrInvalidAmount, amount)
	}
	newBalance, err := s.store.Deduct(ctx, userID, chargeID, taskID, amount)
	if err != nil {
		return 0, err
	}
	s.log.Info("credits deducted", "user_id", userID, "charge_id", chargeID, "task_id", taskID, "amount", amount, "balance", newBalance)
	if newBalance < 0 {
		s.log.Warn("balance went negative after concurrent charges", "user_id", userID, "balance", newBalance)
	}
	return newBalance, nil
}

func (s *service) Add(ctx context.Context, userID uuid.UUID, amount int64, reason string) (int64, error) {
	if amount <= 0 || amount > MaxTopUp {
		return 0, fmt.Errorf("%w: add %d (allowed 1..%d)", ErrInvalidAmount, amount, MaxTopUp)
	}
	newBalance, err := s.store.Add(ctx, userID, amount, reason)
	if err != nil {
		return 0, err
	}
	s.log.Info("credits added", "user_id", userID, "amount", amount, "balance", newBalance, "reason", reason)
	return newBalance, nil
}

func (s *service) GetStats(ctx context.Context, userID uuid.UUID) (Stats, error) {
	acc, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		CurrentBalance: acc.Credits,
		TotalUsed:      acc.CreditsUsed,
		TotalEarned:    acc.TotalEarned(),
	}, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*models.CreditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	return s.store.ListEntries(ctx, userID, limit)
}
