package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned when no account row exists for the user.
	ErrAccountNotFound = errors.New("account not found")
	// ErrLedgerUpdateFailed is returned when an atomic update touched no rows,
	// i.e. the account vanished between the pre-flight check and the charge.
	ErrLedgerUpdateFailed = errors.New("ledger update failed")
	// ErrInvalidAmount is returned for non-positive or oversized amounts.
	ErrInvalidAmount = errors.New("invalid credit amount")
	// ErrAlreadyCharged is returned when a usage entry already exists for the charge id.
	ErrAlreadyCharged = errors.New("charge already applied")
	// ErrInsufficientCredits can be used with errors.Is to detect *InsufficientCreditsError.
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// InsufficientCreditsError is returned by RequireCredits when the balance
// cannot cover the fixed cost of an operation.
type InsufficientCreditsError struct {
	CurrentBalance int64
	Required       int64
	Deficit        int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %d, need %d (short %d)", e.CurrentBalance, e.Required, e.Deficit)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
