package models

import "time"

// LoginAttempt is one immutable row in the attempt ledger. Every login
// attempt is recorded, including attempts for unknown emails (UserID nil)
// and attempts rejected by the IP throttle.
type LoginAttempt struct {
	ID          string    `db:"id"`
	Email       string    `db:"email"`
	IPAddress   *string   `db:"ip_address"`
	UserID      *string   `db:"user_id"`
	Success     bool      `db:"success"`
	AttemptTime time.Time `db:"attempt_time"`
}
