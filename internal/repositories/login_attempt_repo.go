package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
)

// LoginAttemptRepository is the append-only attempt ledger. Rows are
// never updated or deleted here; retention is an operational concern.
type LoginAttemptRepository struct {
	db *database.DB
}

// NewLoginAttemptRepository creates a new LoginAttemptRepository
func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

// Record appends one login attempt. The caller resolves the account (or
// none); the ledger records attempts against unknown emails too.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (email, ip_address, user_id, success)
		VALUES (LOWER($1), $2, $3, $4)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserID,
		attempt.Success,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// CountRecentFailures returns failed attempts for an email since the
// given time. Used by audit tooling, not by the lockout engine.
func (r *LoginAttemptRepository) CountRecentFailures(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = LOWER($1) AND success = false AND attempt_time >= $2
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}
