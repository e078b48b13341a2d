package models

import "time"

// AccountLock tracks the lockout state machine for a single account.
// Exactly one row per account, created lazily on the first recorded
// failure and never deleted. All mutations happen under a per-account
// row lock so concurrent attempts cannot lose a failure.
type AccountLock struct {
	UserID              string     `db:"user_id"`
	LockedUntil         *time.Time `db:"locked_until"` // nil means unlocked
	ConsecutiveFailures int        `db:"consecutive_failures"`
	LockoutsLast24h     int        `db:"lockouts_last_24h"`
	LastLockAt          *time.Time `db:"last_lock_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// IsLockedAt reports whether the lock is active at the given instant.
// An expired locked_until is observed lazily; the row is cleaned up on
// the next state transition, not here.
func (l *AccountLock) IsLockedAt(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}
