package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
)

// UserRepository defines the interface for user persistence
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// LoginAttemptRecorder appends to the attempt ledger
type LoginAttemptRecorder interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
}

// AuthService orchestrates credential checks, the lockout engine, the
// attempt ledger and the reset token vault. It owns the ordering: the
// lock check runs before the password check, so a locked account never
// burns bcrypt work or leaks whether the password was right.
type AuthService struct {
	users       UserRepository
	attempts    LoginAttemptRecorder
	lockouts    *LockoutService
	resetTokens *ResetTokenService
	events      SecurityEventRecorder
	email       EmailService
	tm          *auth.TokenManager
	logger      *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	users UserRepository,
	attempts LoginAttemptRecorder,
	lockouts *LockoutService,
	resetTokens *ResetTokenService,
	events SecurityEventRecorder,
	email EmailService,
	tm *auth.TokenManager,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:       users,
		attempts:    attempts,
		lockouts:    lockouts,
		resetTokens: resetTokens,
		events:      events,
		email:       email,
		tm:          tm,
		logger:      logger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	User         *UserResponse `json:"user"`
}

// Login authenticates a user and returns tokens. Every outcome lands in
// the attempt ledger. Unknown email and wrong password collapse into
// the same ErrInvalidCredentials; a lock surfaces as AccountLockedError
// with the expiry so the transport layer can set Retry-After.
func (s *AuthService) Login(ctx context.Context, email, password string, ipAddress *string) (*AuthResponse, error) {
	if email = strings.ToLower(strings.TrimSpace(email)); email == "" {
		s.logger.Warn("login attempt with empty email")
		return nil, models.ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("login failed: invalid credentials")
			if rerr := s.recordAttempt(ctx, email, ipAddress, nil, false); rerr != nil {
				return nil, models.ErrInternalServer
			}
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Lock check precedes the password check. A locked account rejects
	// the attempt without evaluating the credential at all.
	locked, until, err := s.lockouts.Status(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if locked {
		if err := s.recordAttempt(ctx, email, ipAddress, &user.ID, false); err != nil {
			return nil, models.ErrInternalServer
		}
		_ = s.events.Record(ctx, models.EventLockDenied, &user.ID, email, ipAddress, models.EventMetadata{
			"locked_until": until.UTC().Format(time.RFC3339),
		})
		return nil, &models.AccountLockedError{Until: *until}
	}

	if !user.IsActive {
		s.logger.Info("login blocked: account inactive", slog.String("user_id", user.ID))
		if err := s.recordAttempt(ctx, email, ipAddress, &user.ID, false); err != nil {
			return nil, models.ErrInternalServer
		}
		return nil, models.ErrAccountInactive
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.logger.Info("login failed: invalid credentials",
			slog.String("email", pkglogger.SanitizedEmail(email)))
		if rerr := s.recordAttempt(ctx, email, ipAddress, &user.ID, false); rerr != nil {
			return nil, models.ErrInternalServer
		}

		outcome, ferr := s.lockouts.RecordFailure(ctx, user.ID, email, ipAddress)
		if ferr != nil {
			s.logger.Error("failed to record login failure", slog.String("user_id", user.ID), slog.Any("error", ferr))
			return nil, models.ErrInternalServer
		}

		if outcome.Alert {
			s.raiseSecurityAlert(ctx, user.ID, email, ipAddress, outcome.Lockouts)
		}
		if outcome.Locked {
			return nil, &models.AccountLockedError{Until: *outcome.LockedUntil}
		}
		return nil, models.ErrInvalidCredentials
	}

	if err := s.recordAttempt(ctx, email, ipAddress, &user.ID, true); err != nil {
		return nil, models.ErrInternalServer
	}
	if err := s.lockouts.RecordSuccess(ctx, user.ID, email, ipAddress); err != nil {
		s.logger.Error("failed to clear lockout state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.issueTokenPair(user)
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, email, password, fullName string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	fullName = strings.TrimSpace(fullName)

	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if fullName == "" {
		return nil, fmt.Errorf("full name is required")
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, err
	}

	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		s.logger.Info("registration failed: user already exists")
		return nil, models.ErrConflict
	}
	if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check if user exists", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := time.Now()
	user := &models.User{
		Email:             email,
		PasswordHash:      hashedPassword,
		FullName:          fullName,
		IsActive:          true,
		Role:              "user",
		PasswordChangedAt: &now,
	}

	createdUser, err := s.users.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))

	return s.issueTokenPair(createdUser)
}

// RefreshToken generates a new token pair from a refresh token. Tokens
// issued before the account's last password change are rejected.
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrUnauthorized
	}

	claims, err := s.tm.ValidateToken(refreshTokenString)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if claims.Type != "refresh" {
		s.logger.Warn("refresh attempt with non-refresh token", slog.String("user_id", claims.UserID))
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.logger.Info("token refresh blocked: account inactive", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	locked, _, err := s.lockouts.Status(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if locked {
		s.logger.Info("token refresh blocked: account locked", slog.String("user_id", user.ID))
		return nil, models.ErrUnauthorized
	}

	if user.PasswordChangedAt != nil && claims.IssuedAt != nil {
		if claims.IssuedAt.Time.Before(*user.PasswordChangedAt) {
			s.logger.Info("token refresh blocked: issued before password change",
				slog.String("user_id", user.ID))
			return nil, models.ErrUnauthorized
		}
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))

	return s.issueTokenPair(user)
}

// ForgotPassword starts the reset flow. Whether the email exists, is
// inactive, or the send failed is only visible in the logs; those paths
// all report success. Infrastructure failures, including exhausting the
// token generation retries, do surface as errors.
func (s *AuthService) ForgotPassword(ctx context.Context, email, ipAddress, userAgent string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email",
				slog.String("email", pkglogger.SanitizedEmail(email)))
			return nil
		}
		s.logger.Error("failed to get user for password reset", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !user.IsActive {
		s.logger.Info("password reset requested for inactive account",
			slog.String("user_id", user.ID))
		return nil
	}

	secret, token, err := s.resetTokens.Issue(ctx, user.ID, ipAddress, userAgent)
	if err != nil {
		s.logger.Error("failed to issue reset token",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.email.SendPasswordResetEmail(ctx, user.Email, secret, token.ExpiresAt); err != nil {
		s.logger.Error("failed to send password reset email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	return nil
}

// ValidateResetToken checks a presented reset secret without consuming it.
func (s *AuthService) ValidateResetToken(ctx context.Context, secret string) error {
	_, err := s.resetTokens.Validate(ctx, secret)
	return err
}

// ResetPassword completes the reset flow: the token is validated and
// consumed, the credential replaced, and every other outstanding token
// for the account superseded. Clearing the lockout state lets the owner
// back in immediately after a reset.
func (s *AuthService) ResetPassword(ctx context.Context, secret, email, newPassword string, ipAddress *string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	token, err := s.resetTokens.Validate(ctx, secret)
	if err != nil {
		if errors.Is(err, models.ErrInvalidToken) {
			_ = s.events.Record(ctx, models.EventPasswordResetFailed, nil, "", ipAddress, models.EventMetadata{
				"reason": "invalid_token",
			})
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to validate reset token", slog.Any("error", err))
		return models.ErrInternalServer
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = s.events.Record(ctx, models.EventPasswordResetFailed, &token.UserID, "", ipAddress, models.EventMetadata{
				"reason": "account_missing",
			})
			return models.ErrInvalidToken
		}
		s.logger.Error("failed to get user for password reset", slog.String("user_id", token.UserID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	// The token must belong to the account the caller claims to reset
	if user.Email != email {
		_ = s.events.Record(ctx, models.EventPasswordResetFailed, &user.ID, user.Email, ipAddress, models.EventMetadata{
			"reason": "email_mismatch",
		})
		return models.ErrInvalidToken
	}

	if !user.IsActive {
		_ = s.events.Record(ctx, models.EventPasswordResetFailed, &user.ID, user.Email, ipAddress, models.EventMetadata{
			"reason": "account_inactive",
		})
		return models.ErrInvalidToken
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		_ = s.events.Record(ctx, models.EventPasswordResetFailed, &user.ID, user.Email, ipAddress, models.EventMetadata{
			"reason": "weak_password",
		})
		return err
	}

	hashedPassword, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hashedPassword); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	// The credential is replaced at this point. Leaving the token live
	// after that would let it be replayed, so a failed consume or
	// supersede fails the request and the caller retries with the same
	// token against the already-updated password.
	if err := s.resetTokens.Consume(ctx, token); err != nil {
		s.logger.Error("failed to consume reset token", slog.String("token_id", token.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if err := s.resetTokens.InvalidateOutstanding(ctx, user.ID); err != nil {
		s.logger.Error("failed to invalidate outstanding reset tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.lockouts.RecordSuccess(ctx, user.ID, user.Email, ipAddress); err != nil {
		s.logger.Error("failed to clear lockout state after reset", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	_ = s.events.Record(ctx, models.EventPasswordResetSucceeded, &user.ID, user.Email, ipAddress, nil)

	s.logger.Info("password reset completed", slog.String("user_id", user.ID))
	return nil
}

// RecordThrottled logs a login attempt rejected by the per-IP throttle.
// The attempt never reached credential checking, so it counts against
// the email in the ledger but not against the account's failure streak.
// The request is already being rejected with 429, so a ledger write
// failure here has no outcome left to change and stays best effort.
func (s *AuthService) RecordThrottled(ctx context.Context, email string, ipAddress *string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" {
		_ = s.recordAttempt(ctx, email, ipAddress, nil, false)
	}
	_ = s.events.Record(ctx, models.EventIPRateLimited, nil, email, ipAddress, nil)
}

func (s *AuthService) issueTokenPair(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.tm.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate access token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, err := s.tm.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate refresh token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         userModelToResponse(user),
	}, nil
}

// recordAttempt appends to the ledger. The ledger is part of the
// account's risk state, so a failed write propagates and the caller
// fails the surrounding operation rather than continue without it.
func (s *AuthService) recordAttempt(ctx context.Context, email string, ipAddress, userID *string, success bool) error {
	attempt := &models.LoginAttempt{
		Email:     email,
		IPAddress: ipAddress,
		UserID:    userID,
		Success:   success,
	}
	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", slog.Any("error", err))
		return err
	}
	return nil
}

func (s *AuthService) raiseSecurityAlert(ctx context.Context, userID, email string, ipAddress *string, lockouts int) {
	_ = s.events.Record(ctx, models.EventSecurityAlert, &userID, email, ipAddress, models.EventMetadata{
		"lockouts_last_24h": lockouts,
	})

	subject := "Security alert: repeated account lockouts"
	body := fmt.Sprintf(
		"The account %s has been locked %d times in the last 24 hours.\n\n"+
			"This volume of lockouts suggests a sustained credential guessing attempt. "+
			"Review the security event log and consider contacting the account holder.\n",
		email, lockouts)

	if err := s.email.SendSecurityAlert(ctx, subject, body); err != nil {
		s.logger.Error("failed to send security alert",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}
}

// userModelToResponse converts a user model to its response DTO
func userModelToResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}
