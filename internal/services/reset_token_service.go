package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
)

const (
	// resetSecretBytes is the entropy of a reset secret before encoding.
	resetSecretBytes = 48

	// maxGenerationRetries bounds regeneration on a digest collision. A
	// collision is astronomically unlikely; the bound exists to turn a
	// broken random source into a loud failure instead of a spin.
	maxGenerationRetries = 5
)

// ResetTokenRepository defines the interface for reset token persistence
type ResetTokenRepository interface {
	Create(ctx context.Context, token *models.ResetToken) (*models.ResetToken, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*models.ResetToken, error)
	MarkUsed(ctx context.Context, id string, at time.Time) error
	InvalidateOutstanding(ctx context.Context, userID string, at time.Time) error
}

// ResetTokenService issues and validates single-use, time-boxed password
// reset tokens. Secrets are never persisted; only their SHA-256 digest
// is stored, so a database compromise cannot recover usable tokens.
type ResetTokenService struct {
	repo     ResetTokenRepository
	logger   *slog.Logger
	tokenTTL time.Duration
	now      func() time.Time
	random   io.Reader
}

// NewResetTokenService creates a new ResetTokenService
func NewResetTokenService(repo ResetTokenRepository, logger *slog.Logger, tokenTTL time.Duration) *ResetTokenService {
	return &ResetTokenService{
		repo:     repo,
		logger:   logger,
		tokenTTL: tokenTTL,
		now:      time.Now,
		random:   rand.Reader,
	}
}

// SetClock overrides the time source for deterministic tests
func (s *ResetTokenService) SetClock(now func() time.Time) {
	s.now = now
}

// SetRandom overrides the random source for deterministic tests
func (s *ResetTokenService) SetRandom(r io.Reader) {
	s.random = r
}

// Issue creates a fresh reset token for an account and returns the raw
// secret, the only moment it exists in cleartext, together with the
// stored record. Issuing supersedes every outstanding token for the
// account. Digest collisions trigger regeneration up to the retry
// bound, then ErrTokenGenerationExhausted.
func (s *ResetTokenService) Issue(ctx context.Context, userID, ipAddress, userAgent string) (string, *models.ResetToken, error) {
	for attempt := 0; attempt < maxGenerationRetries; attempt++ {
		secret, err := s.generateSecret()
		if err != nil {
			s.logger.Error("failed to generate reset secret", slog.Any("error", err))
			return "", nil, fmt.Errorf("failed to generate reset secret: %w", err)
		}

		now := s.now()
		token := &models.ResetToken{
			UserID:    userID,
			TokenHash: hashSecret(secret),
			IPAddress: ipAddress,
			UserAgent: userAgent,
			CreatedAt: now,
			ExpiresAt: now.Add(s.tokenTTL),
		}

		created, err := s.repo.Create(ctx, token)
		if err != nil {
			if errors.Is(err, models.ErrConflict) {
				s.logger.Warn("reset token digest collision, regenerating",
					slog.String("user_id", userID),
					slog.Int("attempt", attempt+1))
				continue
			}
			return "", nil, err
		}

		return secret, created, nil
	}

	s.logger.Error("exhausted reset token generation retries", slog.String("user_id", userID))
	return "", nil, models.ErrTokenGenerationExhausted
}

// Resolve looks a token up by the digest of the presented secret.
// Returns ErrNotFound when no token matches; validity is not checked.
func (s *ResetTokenService) Resolve(ctx context.Context, secret string) (*models.ResetToken, error) {
	return s.repo.GetByTokenHash(ctx, hashSecret(secret))
}

// Validate resolves the presented secret and rejects consumed or expired
// tokens. Not-found, expired and consumed all collapse into the single
// ErrInvalidToken so the caller cannot distinguish them.
func (s *ResetTokenService) Validate(ctx context.Context, secret string) (*models.ResetToken, error) {
	token, err := s.Resolve(ctx, secret)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidToken
		}
		return nil, err
	}

	if !token.IsValidAt(s.now()) {
		return nil, models.ErrInvalidToken
	}

	return token, nil
}

// Consume idempotently marks a token as used. Consuming an already
// consumed token is a no-op and never resurrects validity.
func (s *ResetTokenService) Consume(ctx context.Context, token *models.ResetToken) error {
	return s.repo.MarkUsed(ctx, token.ID, s.now())
}

// InvalidateOutstanding supersedes every outstanding token for an account.
func (s *ResetTokenService) InvalidateOutstanding(ctx context.Context, userID string) error {
	return s.repo.InvalidateOutstanding(ctx, userID, s.now())
}

func (s *ResetTokenService) generateSecret() (string, error) {
	buf := make([]byte, resetSecretBytes)
	if _, err := io.ReadFull(s.random, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// hashSecret is a fixed deterministic one-way transform of the raw
// secret. The secret already carries full entropy, so a fast hash is
// the right tool; a slow password hash would add nothing.
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
