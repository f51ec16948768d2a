package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultStartingCredits is the balance a freshly registered account receives.
const DefaultStartingCredits int64 = 1000

// Account is a user and its credit balance. Credits and CreditsUsed are only
// ever changed by the ledger through single-statement updates.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Credits      int64     `json:"credits"`
	CreditsUsed  int64     `json:"credits_used"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TotalEarned is everything the account has ever received: what is left plus what was spent.
func (a *Account) TotalEarned() int64 {
	return a.Credits + a.CreditsUsed
}
