package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// AccountLockRepository owns the one-row-per-account lockout state.
type AccountLockRepository struct {
	db *database.DB
}

// NewAccountLockRepository creates a new AccountLockRepository
func NewAccountLockRepository(db *database.DB) *AccountLockRepository {
	return &AccountLockRepository{db: db}
}

// Get returns the lock record for an account, or ErrNotFound if no
// failure has ever been recorded for it.
func (r *AccountLockRepository) Get(ctx context.Context, userID string) (*models.AccountLock, error) {
	query := `
		SELECT user_id, locked_until, consecutive_failures, lockouts_last_24h, last_lock_at, updated_at
		FROM account_locks WHERE user_id = $1
	`

	return scanAccountLock(r.db.Pool.QueryRow(ctx, query, userID))
}

// Mutate runs fn against the account's lock record inside a transaction
// holding a row-level lock (SELECT ... FOR UPDATE). The record is created
// lazily on first use. Two concurrent callers for the same account are
// serialized here, so a failure transition can never be lost.
func (r *AccountLockRepository) Mutate(ctx context.Context, userID string, fn func(lock *models.AccountLock) error) (*models.AccountLock, error) {
	var result *models.AccountLock

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO account_locks (user_id) VALUES ($1)
			ON CONFLICT (user_id) DO NOTHING
		`
		if _, err := tx.Exec(ctx, insert, userID); err != nil {
			return database.MapPostgresError(err)
		}

		sel := `
			SELECT user_id, locked_until, consecutive_failures, lockouts_last_24h, last_lock_at, updated_at
			FROM account_locks WHERE user_id = $1
			FOR UPDATE
		`
		lock, err := scanAccountLock(tx.QueryRow(ctx, sel, userID))
		if err != nil {
			return err
		}

		if err := fn(lock); err != nil {
			return err
		}

		lock.UpdatedAt = time.Now()

		update := `
			UPDATE account_locks
			SET locked_until = $1, consecutive_failures = $2, lockouts_last_24h = $3, last_lock_at = $4, updated_at = $5
			WHERE user_id = $6
		`
		if _, err := tx.Exec(ctx, update,
			lock.LockedUntil, lock.ConsecutiveFailures, lock.LockoutsLast24h,
			lock.LastLockAt, lock.UpdatedAt, lock.UserID,
		); err != nil {
			return database.MapPostgresError(err)
		}

		result = lock
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func scanAccountLock(scanner rowScanner) (*models.AccountLock, error) {
	var lock models.AccountLock
	var lockedUntil, lastLockAt *time.Time

	err := scanner.Scan(
		&lock.UserID, &lockedUntil, &lock.ConsecutiveFailures,
		&lock.LockoutsLast24h, &lastLockAt, &lock.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	lock.LockedUntil = lockedUntil
	lock.LastLockAt = lastLockAt
	return &lock, nil
}
