package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction type enums. Every wallet mutation appends exactly one entry.
const (
	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
	TxTypeStake      = "stake"
	TxTypeReward     = "reward"
	TxTypeLoss       = "loss"
)

// Transaction status enums. Only gateway deposits are ever pending: the
// wallet credit is gated on payment confirmation, so the entry is written
// first and settled by the callback/poller.
const (
	TxStatusPending   = "pending"
	TxStatusCompleted = "completed"
	TxStatusFailed    = "failed"
)

type Transaction struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	HabitID           *uuid.UUID `json:"habit_id,omitempty"`
	Type              string     `json:"type"`
	Status            string     `json:"status"`
	Amount            int64      `json:"amount"`
	BalanceAfter      *int64     `json:"balance_after,omitempty"`
	Description       string     `json:"description"`
	CheckoutRequestID *string    `json:"checkout_request_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
