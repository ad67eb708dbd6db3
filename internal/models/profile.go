package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile holds the user-editable identity fields. MpesaPhone is the saved
// withdrawal destination in canonical 254XXXXXXXXX form.
type Profile struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Username   *string   `json:"username,omitempty"`
	MpesaPhone *string   `json:"mpesa_phone,omitempty"`
	AvatarURL  *string   `json:"avatar_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
