package services

import (
	"context"
	"errors"
	"testing"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSecurityEventRepo struct {
	RecordFunc     func(ctx context.Context, event *models.SecurityEvent) error
	ListRecentFunc func(ctx context.Context, limit int) ([]*models.SecurityEvent, error)

	recorded []*models.SecurityEvent
}

func (m *mockSecurityEventRepo) Record(ctx context.Context, event *models.SecurityEvent) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, event)
	}
	m.recorded = append(m.recorded, event)
	return nil
}

func (m *mockSecurityEventRepo) ListRecent(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
	if m.ListRecentFunc != nil {
		return m.ListRecentFunc(ctx, limit)
	}
	return []*models.SecurityEvent{}, nil
}

func TestSecurityEventService_RecordPersists(t *testing.T) {
	repo := &mockSecurityEventRepo{}
	svc := NewSecurityEventService(repo, newTestLogger())

	userID := "user1"
	ip := "203.0.113.9"
	err := svc.Record(context.Background(), models.EventLockApplied, &userID, "alice@example.com", &ip, models.EventMetadata{
		"lockouts_last_24h": 1,
	})
	require.NoError(t, err)

	require.Len(t, repo.recorded, 1)
	assert.Equal(t, models.EventLockApplied, repo.recorded[0].Kind)
	assert.Equal(t, "alice@example.com", repo.recorded[0].Email)
}

func TestSecurityEventService_DatabaseFailureDoesNotPropagate(t *testing.T) {
	repo := &mockSecurityEventRepo{
		RecordFunc: func(ctx context.Context, event *models.SecurityEvent) error {
			return errors.New("connection refused")
		},
	}
	svc := NewSecurityEventService(repo, newTestLogger())

	err := svc.Record(context.Background(), models.EventLockDenied, nil, "alice@example.com", nil, nil)
	assert.NoError(t, err, "the audit sink must never fail the calling operation")
}

func TestSecurityEventService_ListRecentClampsLimit(t *testing.T) {
	var seenLimit int
	repo := &mockSecurityEventRepo{
		ListRecentFunc: func(ctx context.Context, limit int) ([]*models.SecurityEvent, error) {
			seenLimit = limit
			return []*models.SecurityEvent{}, nil
		},
	}
	svc := NewSecurityEventService(repo, newTestLogger())

	_, err := svc.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 50, seenLimit)

	_, err = svc.ListRecent(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 100, seenLimit, "oversized limits clamp to the maximum, not the default")

	_, err = svc.ListRecent(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 25, seenLimit)
}
