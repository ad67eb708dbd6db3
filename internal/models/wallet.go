package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the per-user money account. All amounts are whole KSH.
// balance never goes below zero; the total_* counters are append-only
// lifetime aggregates segmented by transaction type.
type Wallet struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"total_earned"`
	TotalStaked int64     `json:"total_staked"`
	TotalLost   int64     `json:"total_lost"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
