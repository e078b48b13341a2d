package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

// AccountLockRepository defines the interface for lockout state persistence.
// Mutate must serialize concurrent callers for the same account.
type AccountLockRepository interface {
	Get(ctx context.Context, userID string) (*models.AccountLock, error)
	Mutate(ctx context.Context, userID string, fn func(lock *models.AccountLock) error) (*models.AccountLock, error)
}

// SecurityEventRecorder is the event sink consumed by the lockout engine
type SecurityEventRecorder interface {
	Record(ctx context.Context, kind string, userID *string, email string, ipAddress *string, metadata models.EventMetadata) error
}

// LockoutConfig holds the lockout policy thresholds
type LockoutConfig struct {
	MaxConsecutiveFailures int           // failures that trigger a lock
	LockDuration           time.Duration // duration of an applied lock
	AlertThreshold         int           // lockouts within the window that signal an alert
	Window                 time.Duration // trailing window for counting lockouts (24h)
}

// FailureOutcome describes the result of one failure transition
type FailureOutcome struct {
	Locked      bool       // a lock was applied by this failure
	LockedUntil *time.Time // set when Locked is true
	Lockouts    int        // lockouts within the trailing window after this transition
	Alert       bool       // lockout count reached the alert threshold
}

// LockoutService is the per-account lockout state machine. It consumes
// attempt outcomes and produces lock decisions and alert signals. All
// counter updates run inside the repository's per-account critical
// section so concurrent failures cannot be lost.
type LockoutService struct {
	repo   AccountLockRepository
	events SecurityEventRecorder
	config LockoutConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo AccountLockRepository, events SecurityEventRecorder, config LockoutConfig, logger *slog.Logger) *LockoutService {
	return &LockoutService{
		repo:   repo,
		events: events,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source for deterministic tests
func (s *LockoutService) SetClock(now func() time.Time) {
	s.now = now
}

// Status reports whether the account is currently locked and until when.
// An account with no lock record has never failed a login and is unlocked.
// Expired locks are observed lazily; Status does not mutate state.
func (s *LockoutService) Status(ctx context.Context, userID string) (bool, *time.Time, error) {
	lock, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}

	if lock.IsLockedAt(s.now()) {
		return true, lock.LockedUntil, nil
	}

	return false, nil, nil
}

// RecordFailure runs the failure transition for an account. When the
// consecutive failure count reaches the threshold the account is locked,
// the counter resets and the lockout is counted against the trailing
// window. The returned outcome tells the caller whether to reject with a
// lock error and whether the alert threshold was reached.
func (s *LockoutService) RecordFailure(ctx context.Context, userID, email string, ipAddress *string) (*FailureOutcome, error) {
	outcome := &FailureOutcome{}

	lock, err := s.repo.Mutate(ctx, userID, func(lock *models.AccountLock) error {
		now := s.now()

		// Lazily clear an expired lock before counting this failure.
		if lock.LockedUntil != nil && !lock.IsLockedAt(now) {
			lock.LockedUntil = nil
		}

		lock.ConsecutiveFailures++
		if lock.ConsecutiveFailures < s.config.MaxConsecutiveFailures {
			return nil
		}

		// Threshold reached: apply the lock.
		until := now.Add(s.config.LockDuration)
		lock.ConsecutiveFailures = 0
		lock.LockedUntil = &until

		// The lockout counter only survives within the trailing window.
		if lock.LastLockAt == nil || now.Sub(*lock.LastLockAt) > s.config.Window {
			lock.LockoutsLast24h = 0
		}
		lock.LockoutsLast24h++
		lastLock := now
		lock.LastLockAt = &lastLock

		outcome.Locked = true
		outcome.LockedUntil = &until
		outcome.Lockouts = lock.LockoutsLast24h
		outcome.Alert = lock.LockoutsLast24h >= s.config.AlertThreshold
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Locked {
		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", userID),
			slog.Time("locked_until", *outcome.LockedUntil),
			slog.Int("lockouts_last_24h", outcome.Lockouts))

		_ = s.events.Record(ctx, models.EventLockApplied, &userID, email, ipAddress, models.EventMetadata{
			"locked_until":      outcome.LockedUntil.UTC().Format(time.RFC3339),
			"lockouts_last_24h": outcome.Lockouts,
		})
	} else {
		s.logger.Info("login failure recorded",
			slog.String("user_id", userID),
			slog.Int("consecutive_failures", lock.ConsecutiveFailures))
	}

	return outcome, nil
}

// RecordSuccess runs the success transition: the consecutive failure
// counter and any lock are cleared unconditionally. Discovering an
// expired lock on the way emits a lock_expired event.
func (s *LockoutService) RecordSuccess(ctx context.Context, userID, email string, ipAddress *string) error {
	// No record means no failures to clear.
	existing, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.ConsecutiveFailures == 0 && existing.LockedUntil == nil {
		return nil
	}

	var expiredLock bool
	_, err = s.repo.Mutate(ctx, userID, func(lock *models.AccountLock) error {
		now := s.now()
		expiredLock = lock.LockedUntil != nil && !lock.IsLockedAt(now)

		lock.ConsecutiveFailures = 0
		lock.LockedUntil = nil
		return nil
	})
	if err != nil {
		return err
	}

	if expiredLock {
		_ = s.events.Record(ctx, models.EventLockExpired, &userID, email, ipAddress, nil)
	}

	return nil
}
