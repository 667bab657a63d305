package models

import (
	"time"
)

// PasswordResetToken is an emailed reset link. Only the SHA-256 digest of the
// token is stored.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return now.Before(t.ExpiresAt) && t.UsedAt == nil
}
