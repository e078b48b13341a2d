package models

import (
	"errors"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account security errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")

	// Password reset errors. ErrInvalidToken deliberately covers not-found,
	// expired and consumed tokens so callers cannot tell them apart.
	ErrInvalidToken             = errors.New("invalid or expired token")
	ErrTokenGenerationExhausted = errors.New("failed to generate a unique reset token")
)

// AccountLockedError carries the lock expiry so transport code can tell
// the caller when to retry. It matches ErrAccountLocked under errors.Is.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return ErrAccountLocked.Error()
}

func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}
