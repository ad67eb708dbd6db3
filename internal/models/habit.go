package models

import (
	"time"

	"github.com/google/uuid"
)

// Habit is a staked commitment: the stake is debited at creation and paid
// back with a 20% bonus when the streak reaches duration_days.
type Habit struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	StakeAmount   int64     `json:"stake_amount"`
	DurationDays  int       `json:"duration_days"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	IsActive      bool      `json:"is_active"`
	IsCompleted   bool      `json:"is_completed"`
	CurrentStreak int       `json:"current_streak"`
	BestStreak    int       `json:"best_streak"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HabitLog records one completion per habit per calendar day (UTC).
// CompletedOn carries the date only; uniqueness on (habit_id, completed_on)
// is enforced by the database.
type HabitLog struct {
	ID          uuid.UUID `json:"id"`
	HabitID     uuid.UUID `json:"habit_id"`
	UserID      uuid.UUID `json:"user_id"`
	CompletedOn time.Time `json:"completed_on"`
	CompletedAt time.Time `json:"completed_at"`
	Notes       *string   `json:"notes,omitempty"`
}
