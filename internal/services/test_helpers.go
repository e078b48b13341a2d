package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc        func(ctx context.Context, id string) (*models.User, error)
	GetByEmailFunc     func(ctx context.Context, email string) (*models.User, error)
	CreateFunc         func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordFunc func(ctx context.Context, id, passwordHash string) error
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

// MockLoginAttemptRecorder implements LoginAttemptRecorder and captures
// everything recorded for assertions
type MockLoginAttemptRecorder struct {
	RecordFunc func(ctx context.Context, attempt *models.LoginAttempt) error

	mu       sync.Mutex
	Recorded []*models.LoginAttempt
}

func (m *MockLoginAttemptRecorder) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, attempt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recorded = append(m.Recorded, attempt)
	return nil
}

// RecordedEvent is one captured security event
type RecordedEvent struct {
	Kind      string
	UserID    *string
	Email     string
	IPAddress *string
	Metadata  models.EventMetadata
}

// MockSecurityEventRecorder implements SecurityEventRecorder and captures
// events for assertions
type MockSecurityEventRecorder struct {
	RecordFunc func(ctx context.Context, kind string, userID *string, email string, ipAddress *string, metadata models.EventMetadata) error

	mu     sync.Mutex
	Events []RecordedEvent
}

func (m *MockSecurityEventRecorder) Record(ctx context.Context, kind string, userID *string, email string, ipAddress *string, metadata models.EventMetadata) error {
	if m.RecordFunc != nil {
		return m.RecordFunc(ctx, kind, userID, email, ipAddress, metadata)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, RecordedEvent{
		Kind: kind, UserID: userID, Email: email, IPAddress: ipAddress, Metadata: metadata,
	})
	return nil
}

// Kinds returns the captured event kinds in order
func (m *MockSecurityEventRecorder) Kinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// InMemoryAccountLockStore implements AccountLockRepository with a map
// and a mutex. The mutex gives Mutate the same per-account serialization
// the SQL implementation gets from row locks, so concurrency tests
// exercise the real transition logic.
type InMemoryAccountLockStore struct {
	mu    sync.Mutex
	locks map[string]models.AccountLock
}

func NewInMemoryAccountLockStore() *InMemoryAccountLockStore {
	return &InMemoryAccountLockStore{locks: make(map[string]models.AccountLock)}
}

func (s *InMemoryAccountLockStore) Get(ctx context.Context, userID string) (*models.AccountLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := lock
	return &copied, nil
}

func (s *InMemoryAccountLockStore) Mutate(ctx context.Context, userID string, fn func(lock *models.AccountLock) error) (*models.AccountLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = models.AccountLock{UserID: userID}
	}

	if err := fn(&lock); err != nil {
		return nil, err
	}

	lock.UpdatedAt = time.Now()
	s.locks[userID] = lock
	copied := lock
	return &copied, nil
}

// MockAccountLockRepository implements AccountLockRepository for testing
// failure paths the in-memory store cannot produce
type MockAccountLockRepository struct {
	GetFunc    func(ctx context.Context, userID string) (*models.AccountLock, error)
	MutateFunc func(ctx context.Context, userID string, fn func(lock *models.AccountLock) error) (*models.AccountLock, error)
}

func (m *MockAccountLockRepository) Get(ctx context.Context, userID string) (*models.AccountLock, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountLockRepository) Mutate(ctx context.Context, userID string, fn func(lock *models.AccountLock) error) (*models.AccountLock, error) {
	if m.MutateFunc != nil {
		return m.MutateFunc(ctx, userID, fn)
	}
	return nil, models.ErrInternalServer
}

// InMemoryResetTokenStore implements ResetTokenRepository with the same
// supersede-on-create and idempotent-consume semantics as the SQL
// implementation.
type InMemoryResetTokenStore struct {
	mu     sync.Mutex
	nextID int
	tokens map[string]*models.ResetToken // keyed by id
}

func NewInMemoryResetTokenStore() *InMemoryResetTokenStore {
	return &InMemoryResetTokenStore{tokens: make(map[string]*models.ResetToken)}
}

func (s *InMemoryResetTokenStore) Create(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tokens {
		if existing.TokenHash == token.TokenHash {
			return nil, models.ErrConflict
		}
	}

	// Supersede outstanding tokens for the same account
	for _, existing := range s.tokens {
		if existing.UserID == token.UserID && existing.UsedAt == nil && existing.ExpiresAt.After(token.CreatedAt) {
			at := token.CreatedAt
			existing.UsedAt = &at
		}
	}

	s.nextID++
	copied := *token
	copied.ID = fmt.Sprintf("token_%d", s.nextID)
	s.tokens[copied.ID] = &copied

	result := copied
	return &result, nil
}

func (s *InMemoryResetTokenStore) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range s.tokens {
		if token.TokenHash == tokenHash {
			copied := *token
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *InMemoryResetTokenStore) MarkUsed(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if ok && token.UsedAt == nil {
		token.UsedAt = &at
	}
	return nil
}

func (s *InMemoryResetTokenStore) InvalidateOutstanding(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, token := range s.tokens {
		if token.UserID == userID && token.UsedAt == nil && token.ExpiresAt.After(at) {
			used := at
			token.UsedAt = &used
		}
	}
	return nil
}

// MockResetTokenRepository implements ResetTokenRepository for testing
// failure paths the in-memory store cannot produce
type MockResetTokenRepository struct {
	CreateFunc                func(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error)
	GetByTokenHashFunc        func(ctx context.Context, tokenHash string) (*models.ResetToken, error)
	MarkUsedFunc              func(ctx context.Context, id string, at time.Time) error
	InvalidateOutstandingFunc func(ctx context.Context, userID string, at time.Time) error
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, token)
	}
	copied := *token
	copied.ID = "token_123"
	return &copied, nil
}

func (m *MockResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*models.ResetToken, error) {
	if m.GetByTokenHashFunc != nil {
		return m.GetByTokenHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockResetTokenRepository) MarkUsed(ctx context.Context, id string, at time.Time) error {
	if m.MarkUsedFunc != nil {
		return m.MarkUsedFunc(ctx, id, at)
	}
	return nil
}

func (m *MockResetTokenRepository) InvalidateOutstanding(ctx context.Context, userID string, at time.Time) error {
	if m.InvalidateOutstandingFunc != nil {
		return m.InvalidateOutstandingFunc(ctx, userID, at)
	}
	return nil
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendPasswordResetEmailFunc func(ctx context.Context, email, token string, expiresAt time.Time) error
	SendSecurityAlertFunc      func(ctx context.Context, subject, body string) error

	mu           sync.Mutex
	ResetEmails  []string
	AlertSubject []string
}

func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	if m.SendPasswordResetEmailFunc != nil {
		return m.SendPasswordResetEmailFunc(ctx, email, token, expiresAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetEmails = append(m.ResetEmails, email)
	return nil
}

func (m *MockEmailService) SendSecurityAlert(ctx context.Context, subject, body string) error {
	if m.SendSecurityAlertFunc != nil {
		return m.SendSecurityAlertFunc(ctx, subject, body)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertSubject = append(m.AlertSubject, subject)
	return nil
}

// NewTestUser creates an active user for tests
func NewTestUser(id, email, fullName string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Email:     email,
		FullName:  fullName,
		IsActive:  true,
		Role:      "user",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword creates an active user with the given hash
func NewTestUserWithPassword(id, email, fullName, passwordHash string) *models.User {
	user := NewTestUser(id, email, fullName)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserInactive creates a deactivated user
func NewTestUserInactive(id, email, fullName string) *models.User {
	user := NewTestUser(id, email, fullName)
	user.IsActive = false
	return user
}

func defaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxConsecutiveFailures: 5,
		LockDuration:           15 * time.Minute,
		AlertThreshold:         3,
		Window:                 24 * time.Hour,
	}
}
