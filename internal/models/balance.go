package models

import (
	"time"
)

// Balance is the single authoritative chip balance for a user.
// Amount is in the smallest currency unit and never goes negative.
type Balance struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
