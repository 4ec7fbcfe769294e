package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

const (
	WithdrawalStatusPending = "pending"
	WithdrawalStatusSent    = "sent"
	WithdrawalStatusFailed  = "failed"
)

// Withdrawal is an on-chain payout of a treasury balance to a TON address.
type Withdrawal struct {
	ID        uuid.UUID    `json:"id"`
	Identity  string       `json:"identity"`
	ToAddress string       `json:"to_address"`
	Amount    *uint256.Int `json:"amount"`
	Status    string       `json:"status"`
	Attempts  int          `json:"attempts"`
	LastError *string      `json:"last_error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	SentAt    *time.Time   `json:"sent_at,omitempty"`
}
