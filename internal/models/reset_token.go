package models

import "time"

// ResetToken represents a single-use password reset token. Only the
// SHA-256 digest of the secret is persisted; the cleartext secret exists
// only in the reset email. Tokens are retained for audit and never deleted.
type ResetToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"` // never expose the digest
	IPAddress string     `json:"-"`
	UserAgent string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

// IsUsed checks if the token has already been consumed
func (t *ResetToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsExpiredAt checks if the token has expired at the given instant
func (t *ResetToken) IsExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// IsValidAt checks if the token is still valid (not consumed and not expired)
func (t *ResetToken) IsValidAt(now time.Time) bool {
	return !t.IsUsed() && !t.IsExpiredAt(now)
}
