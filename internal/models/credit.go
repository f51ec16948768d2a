package models

import (
	"time"

	"github.com/google/uuid"
)

// Credit ledger entry_type values.
const (
	CreditEntryUsage = "usage"
	CreditEntryTopUp = "topup"
)

// CreditEntry is one append-only audit row in credit_ledger. Every balance
// change writes exactly one entry in the same transaction.
type CreditEntry struct {
	ID           uuid.UUID  `json:"id"`
	AccountID    uuid.UUID  `json:"account_id"`
	ChargeID     *uuid.UUID `json:"charge_id,omitempty"`
	TaskID       *string    `json:"task_id,omitempty"`
	EntryType    string     `json:"entry_type"`
	Amount       int64      `json:"amount"`
	BalanceAfter int64      `json:"balance_after"`
	Reason       string     `json:"reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
