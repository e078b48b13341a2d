package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Security event kinds
const (
	EventLockApplied            = "lock_applied"
	EventLockDenied             = "lock_denied"
	EventLockExpired            = "lock_expired"
	EventSecurityAlert          = "security_alert"
	EventIPRateLimited          = "ip_rate_limited"
	EventPasswordResetFailed    = "password_reset_failed"
	EventPasswordResetSucceeded = "password_reset_succeeded"
)

// SecurityEvent is one immutable row in the security audit trail.
// Email is denormalized so events can be recorded for attempts that
// never resolved to an account.
type SecurityEvent struct {
	ID        string        `db:"id"`
	Kind      string        `db:"kind"`
	UserID    *string       `db:"user_id"`
	Email     string        `db:"email"`
	IPAddress *string       `db:"ip_address"`
	Metadata  EventMetadata `db:"metadata"`
	CreatedAt time.Time     `db:"created_at"`
}

// EventMetadata holds additional context for security events
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (em *EventMetadata) Scan(value interface{}) error {
	if value == nil {
		*em = make(EventMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*em = EventMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (em EventMetadata) Value() (driver.Value, error) {
	if em == nil {
		return nil, nil
	}
	return json.Marshal(em)
}
