package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
)

// SecurityEventRepository is the append-only security audit trail.
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

// Record appends one immutable security event.
func (r *SecurityEventRepository) Record(ctx context.Context, event *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (kind, user_id, email, ip_address, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.Kind,
		event.UserID,
		event.Email,
		event.IPAddress,
		event.Metadata,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// ListRecent returns events newest-first for audit tooling.
func (r *SecurityEventRepository) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, kind, user_id, email, ip_address, metadata, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		var event models.SecurityEvent
		if err := rows.Scan(
			&event.ID, &event.Kind, &event.UserID, &event.Email,
			&event.IPAddress, &event.Metadata, &event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return events, nil
}
