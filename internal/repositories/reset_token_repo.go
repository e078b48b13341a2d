package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/jackc/pgx/v5"
)

// ResetTokenRepository persists password reset tokens. Tokens are never
// deleted; consumed and expired tokens remain for audit.
type ResetTokenRepository struct {
	db *database.DB
}

// NewResetTokenRepository creates a new ResetTokenRepository
func NewResetTokenRepository(db *database.DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create inserts a new token after marking every outstanding unexpired
// token for the same account as consumed, all in one transaction. A
// concurrent reader can never observe two valid tokens for one account.
// Returns ErrConflict on a token_hash collision.
func (r *ResetTokenRepository) Create(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error) {
	var created *models.ResetToken

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		supersede := `
			UPDATE password_reset_tokens
			SET used_at = $1
			WHERE user_id = $2 AND used_at IS NULL AND expires_at > $1
		`
		if _, err := tx.Exec(ctx, supersede, token.CreatedAt, token.UserID); err != nil {
			return database.MapPostgresError(err)
		}

		insert := `
			INSERT INTO password_reset_tokens (user_id, token_hash, ip_address, user_agent, created_at, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, user_id, token_hash, ip_address, user_agent, created_at, expires_at, used_at
		`
		row, err := scanResetToken(tx.QueryRow(ctx, insert,
			token.UserID, token.TokenHash, token.IPAddress, token.UserAgent,
			token.CreatedAt, token.ExpiresAt,
		))
		if err != nil {
			return err
		}

		created = row
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// GetByTokenHash returns the token with the given digest regardless of
// validity; the caller decides whether it is still usable.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	query := `
		SELECT id, user_id, token_hash, ip_address, user_agent, created_at, expires_at, used_at
		FROM password_reset_tokens WHERE token_hash = $1
	`

	return scanResetToken(r.db.Pool.QueryRow(ctx, query, tokenHash))
}

// MarkUsed stamps used_at exactly once. Re-marking an already consumed
// token is a no-op, which makes consumption idempotent.
func (r *ResetTokenRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE password_reset_tokens SET used_at = $1
		WHERE id = $2 AND used_at IS NULL
	`

	_, err := r.db.Pool.Exec(ctx, query, at, id)
	return database.MapPostgresError(err)
}

// InvalidateOutstanding marks every unconsumed, unexpired token for an
// account as used at the given time.
func (r *ResetTokenRepository) InvalidateOutstanding(ctx context.Context, userID string, at time.Time) error {
	query := `
		UPDATE password_reset_tokens SET used_at = $1
		WHERE user_id = $2 AND used_at IS NULL AND expires_at > $1
	`

	_, err := r.db.Pool.Exec(ctx, query, at, userID)
	return database.MapPostgresError(err)
}

func scanResetToken(scanner rowScanner) (*models.ResetToken, error) {
	var token models.ResetToken
	var usedAt *time.Time

	err := scanner.Scan(
		&token.ID, &token.UserID, &token.TokenHash,
		&token.IPAddress, &token.UserAgent,
		&token.CreatedAt, &token.ExpiresAt, &usedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	token.UsedAt = usedAt
	return &token, nil
}
