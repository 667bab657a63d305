package models

import (
	"time"
)

// TwoFactorChallenge is one emailed second-factor code. The code is derived
// from a per-challenge secret that is stored AES-GCM encrypted.
type TwoFactorChallenge struct {
	ID              string
	UserID          string
	SecretEncrypted []byte
	SecretNonce     []byte
	IssuedAt        time.Time
	ExpiresAt       time.Time
	UsedAt          *time.Time
	FailedAttempts  int
}

func (c *TwoFactorChallenge) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

func (c *TwoFactorChallenge) IsUsed() bool {
	return c.UsedAt != nil
}

func (c *TwoFactorChallenge) IsValid(now time.Time) bool {
	return !c.IsExpired(now) && !c.IsUsed()
}
