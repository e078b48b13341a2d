package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/bastion/internal/models"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// SecurityEventRepository defines the interface for the persisted audit trail
type SecurityEventRepository interface {
	Record(ctx context.Context, event *models.SecurityEvent) error
	ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error)
}

// SecurityEventService records security-relevant state transitions with a
// dual-write pattern (slog + database). The slog line is immediate; the
// database row is the durable audit record.
type SecurityEventService struct {
	repo   SecurityEventRepository
	logger *slog.Logger
}

// NewSecurityEventService creates a new SecurityEventService
func NewSecurityEventService(repo SecurityEventRepository, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		repo:   repo,
		logger: logger,
	}
}

// Record appends one security event. A failed database write is logged
// but does not fail the calling operation; the event log is an audit
// sink, not part of the account's risk state.
func (s *SecurityEventService) Record(ctx context.Context, kind string, userID *string, email string, ipAddress *string, metadata models.EventMetadata) error {
	event := &models.SecurityEvent{
		Kind:      kind,
		UserID:    userID,
		Email:     email,
		IPAddress: ipAddress,
		Metadata:  metadata,
	}

	// Dual-write: immediate slog output
	attrs := []slog.Attr{
		slog.String("kind", kind),
		slog.String("email", pkglogger.SanitizedEmail(email)),
	}
	if userID != nil {
		attrs = append(attrs, slog.String("user_id", *userID))
	}
	if ipAddress != nil {
		attrs = append(attrs, slog.String("ip_address", *ipAddress))
	}
	if metadata != nil {
		attrs = append(attrs, slog.Any("metadata", metadata))
	}
	s.logger.LogAttrs(ctx, slog.LevelWarn, "security event", attrs...)

	if err := s.repo.Record(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("kind", kind),
			slog.Any("error", err),
		)
		return nil
	}

	return nil
}

// ListRecent returns the newest events for audit tooling.
func (s *SecurityEventService) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	events, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}

	return events, nil
}
