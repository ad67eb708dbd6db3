package models

import (
	"time"

	"github.com/google/uuid"
)

// SponsoredHabit is a brand-curated challenge. Rows are maintained by an
// administrative process; the API only lists them.
type SponsoredHabit struct {
	ID                uuid.UUID `json:"id"`
	BrandName         string    `json:"brand_name"`
	BrandLogo         *string   `json:"brand_logo,omitempty"`
	Title             string    `json:"title"`
	Description       *string   `json:"description,omitempty"`
	RewardAmount      int64     `json:"reward_amount"`
	DurationDays      int       `json:"duration_days"`
	ParticipantsCount int       `json:"participants_count"`
	Rating            float64   `json:"rating"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
}
