package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAuthService implements AuthServiceInterface for handler tests
type mockAuthService struct {
	LoginFunc              func(ctx context.Context, email, password string, ipAddress *string) (*services.AuthResponse, error)
	RegisterFunc           func(ctx context.Context, email, password, fullName string) (*services.AuthResponse, error)
	RefreshTokenFunc       func(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	ForgotPasswordFunc     func(ctx context.Context, email, ipAddress, userAgent string) error
	ValidateResetTokenFunc func(ctx context.Context, secret string) error
	ResetPasswordFunc      func(ctx context.Context, secret, email, newPassword string, ipAddress *string) error
}

func (m *mockAuthService) Login(ctx context.Context, email, password string, ipAddress *string) (*services.AuthResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, ipAddress)
	}
	return nil, models.ErrInvalidCredentials
}

func (m *mockAuthService) Register(ctx context.Context, email, password, fullName string) (*services.AuthResponse, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, email, password, fullName)
	}
	return nil, models.ErrInternalServer
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
	if m.RefreshTokenFunc != nil {
		return m.RefreshTokenFunc(ctx, refreshToken)
	}
	return nil, models.ErrUnauthorized
}

func (m *mockAuthService) ForgotPassword(ctx context.Context, email, ipAddress, userAgent string) error {
	if m.ForgotPasswordFunc != nil {
		return m.ForgotPasswordFunc(ctx, email, ipAddress, userAgent)
	}
	return nil
}

func (m *mockAuthService) ValidateResetToken(ctx context.Context, secret string) error {
	if m.ValidateResetTokenFunc != nil {
		return m.ValidateResetTokenFunc(ctx, secret)
	}
	return models.ErrInvalidToken
}

func (m *mockAuthService) ResetPassword(ctx context.Context, secret, email, newPassword string, ipAddress *string) error {
	if m.ResetPasswordFunc != nil {
		return m.ResetPasswordFunc(ctx, secret, email, newPassword, ipAddress)
	}
	return models.ErrInvalidToken
}

func newTestAuthHandler(svc AuthServiceInterface) *AuthHandler {
	// Zero timing pad keeps the suite fast
	return NewAuthHandler(svc, auth.NewTimingDelay(0, 0), nil)
}

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func testAuthResponse() *services.AuthResponse {
	return &services.AuthResponse{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		User: &services.UserResponse{
			ID:    "user1",
			Email: "alice@example.com",
		},
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, ipAddress *string) (*services.AuthResponse, error) {
			assert.Equal(t, "alice@example.com", email)
			require.NotNil(t, ipAddress)
			return testAuthResponse(), nil
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.Login, LoginRequest{Email: "Alice@Example.com", Password: "secret-pw1!"})

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp services.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "access-token", resp.AccessToken)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	rec := postJSON(t, h.Login, LoginRequest{Email: "alice@example.com", Password: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication failed")
}

func TestAuthHandler_Login_LockedSetsRetryAfter(t *testing.T) {
	until := time.Now().Add(10 * time.Minute)
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, ipAddress *string) (*services.AuthResponse, error) {
			return nil, &models.AccountLockedError{Until: until}
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.Login, LoginRequest{Email: "alice@example.com", Password: "whatever"})

	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "account_locked")
}

func TestAuthHandler_Login_InactiveLooksLikeBadCredentials(t *testing.T) {
	svc := &mockAuthService{
		LoginFunc: func(ctx context.Context, email, password string, ipAddress *string) (*services.AuthResponse, error) {
			return nil, models.ErrAccountInactive
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.Login, LoginRequest{Email: "alice@example.com", Password: "whatever"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authentication failed")
}

func TestAuthHandler_Login_MalformedBody(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Login_MissingEmail(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	rec := postJSON(t, h.Login, LoginRequest{Password: "secret-pw1!"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_Register_Success(t *testing.T) {
	svc := &mockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, fullName string) (*services.AuthResponse, error) {
			assert.Equal(t, "bob@example.com", email)
			assert.Equal(t, "Bob", fullName)
			return testAuthResponse(), nil
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.Register, RegisterRequest{
		Email: "Bob@Example.com", Password: "fresh-start7!", FullName: " Bob ",
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestAuthHandler_Register_Conflict(t *testing.T) {
	svc := &mockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, fullName string) (*services.AuthResponse, error) {
			return nil, models.ErrConflict
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.Register, RegisterRequest{
		Email: "bob@example.com", Password: "fresh-start7!", FullName: "Bob",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandler_Register_WeakPassword(t *testing.T) {
	svc := &mockAuthService{
		RegisterFunc: func(ctx context.Context, email, password, fullName string) (*services.AuthResponse, error) {
			return nil, pkgauth.ValidatePassword(password)
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.Register, RegisterRequest{
		Email: "bob@example.com", Password: "weak", FullName: "Bob",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid password")
}

func TestAuthHandler_RefreshToken_Success(t *testing.T) {
	svc := &mockAuthService{
		RefreshTokenFunc: func(ctx context.Context, refreshToken string) (*services.AuthResponse, error) {
			assert.Equal(t, "refresh-token", refreshToken)
			return testAuthResponse(), nil
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.RefreshToken, RefreshTokenRequest{RefreshToken: "refresh-token"})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandler_RefreshToken_Invalid(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	rec := postJSON(t, h.RefreshToken, RefreshTokenRequest{RefreshToken: "bad-token"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_ForgotPassword_AlwaysAccepted(t *testing.T) {
	called := false
	svc := &mockAuthService{
		ForgotPasswordFunc: func(ctx context.Context, email, ipAddress, userAgent string) error {
			called = true
			assert.Equal(t, "ghost@example.com", email)
			return nil
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.ForgotPassword, ForgotPasswordRequest{Email: "ghost@example.com"})

	assert.True(t, called)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "If an account exists")
}

func TestAuthHandler_ForgotPassword_InfrastructureFailureIs500(t *testing.T) {
	svc := &mockAuthService{
		ForgotPasswordFunc: func(ctx context.Context, email, ipAddress, userAgent string) error {
			return models.ErrInternalServer
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.ForgotPassword, ForgotPasswordRequest{Email: "alice@example.com"})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "If an account exists")
}

func TestAuthHandler_ValidateResetToken(t *testing.T) {
	svc := &mockAuthService{
		ValidateResetTokenFunc: func(ctx context.Context, secret string) error {
			if secret == "good-token" {
				return nil
			}
			return models.ErrInvalidToken
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.ValidateResetToken, ValidateResetTokenRequest{Token: "good-token"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.ValidateResetToken, ValidateResetTokenRequest{Token: "bad-token"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandler_ResetPassword_Success(t *testing.T) {
	svc := &mockAuthService{
		ResetPasswordFunc: func(ctx context.Context, secret, email, newPassword string, ipAddress *string) error {
			assert.Equal(t, "good-token", secret)
			assert.Equal(t, "alice@example.com", email)
			assert.Equal(t, "brand-new-pw9!", newPassword)
			return nil
		},
	}
	h := newTestAuthHandler(svc)

	rec := postJSON(t, h.ResetPassword, ResetPasswordRequest{
		Token: "good-token", Email: "Alice@Example.com",
		Password: "brand-new-pw9!", Password2: "brand-new-pw9!",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandler_ResetPassword_MismatchedConfirmation(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	rec := postJSON(t, h.ResetPassword, ResetPasswordRequest{
		Token: "good-token", Email: "alice@example.com",
		Password: "brand-new-pw9!", Password2: "different-pw9!",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandler_ResetPassword_InvalidToken(t *testing.T) {
	h := newTestAuthHandler(&mockAuthService{})

	rec := postJSON(t, h.ResetPassword, ResetPasswordRequest{
		Token: "bad-token", Email: "alice@example.com",
		Password: "brand-new-pw9!", Password2: "brand-new-pw9!",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
