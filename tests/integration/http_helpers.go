package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/handlers"
	middlewareCustom "github.com/BradenHooton/bastion/internal/middleware"
	"github.com/BradenHooton/bastion/internal/repositories"
	"github.com/BradenHooton/bastion/internal/routes"
	"github.com/BradenHooton/bastion/internal/services"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// SentResetEmail is a password reset email captured by the fake mailer.
type SentResetEmail struct {
	To        string
	Token     string
	ExpiresAt time.Time
}

// CapturingEmailService stands in for SES and records outgoing mail.
type CapturingEmailService struct {
	mu          sync.Mutex
	ResetEmails []SentResetEmail
	Alerts      []string
}

func (m *CapturingEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetEmails = append(m.ResetEmails, SentResetEmail{To: email, Token: token, ExpiresAt: expiresAt})
	return nil
}

func (m *CapturingEmailService) SendSecurityAlert(ctx context.Context, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Alerts = append(m.Alerts, subject)
	return nil
}

// LastResetEmail returns the most recent reset email, nil if none was sent.
func (m *CapturingEmailService) LastResetEmail() *SentResetEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ResetEmails) == 0 {
		return nil
	}
	email := m.ResetEmails[len(m.ResetEmails)-1]
	return &email
}

// TestServer wires the full HTTP stack against a real database with the
// mailer faked out.
type TestServer struct {
	Server  *httptest.Server
	DB      *database.DB
	Email   *CapturingEmailService
	Lockout services.LockoutConfig
}

// NewTestServer builds the production wiring with test-friendly knobs:
// no timing pad, a throttle limit high enough that flow tests never
// trip it, and the standard lockout policy.
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	lockRepo := repositories.NewAccountLockRepository(db)
	tokenRepo := repositories.NewResetTokenRepository(db)
	eventRepo := repositories.NewSecurityEventRepository(db)

	tokenManager := auth.NewTokenManager(
		"integration-test-secret-32-chars!!",
		15*time.Minute,
		7*24*time.Hour,
	)

	mailer := &CapturingEmailService{}

	lockoutConfig := services.LockoutConfig{
		MaxConsecutiveFailures: 5,
		LockDuration:           15 * time.Minute,
		AlertThreshold:         3,
		Window:                 24 * time.Hour,
	}

	eventService := services.NewSecurityEventService(eventRepo, logger)
	lockoutService := services.NewLockoutService(lockRepo, eventService, lockoutConfig, logger)
	resetTokenService := services.NewResetTokenService(tokenRepo, logger, 15*time.Minute)
	authService := services.NewAuthService(
		userRepo, attemptRepo, lockoutService, resetTokenService,
		eventService, mailer, tokenManager, logger,
	)

	timingDelay := auth.NewTimingDelay(0, 0)
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, timingDelay, ipConfig)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	throttleConfig := middlewareCustom.ThrottleConfig{
		Limit:  1000,
		Window: time.Minute,
	}
	r.Route("/api/v1", func(r chi.Router) {
		routes.RegisterRoutes(r, authHandler, throttleConfig, authService, ipConfig)
	})

	return &TestServer{
		Server:  httptest.NewServer(r),
		DB:      db,
		Email:   mailer,
		Lockout: lockoutConfig,
	}
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Post sends a JSON POST to the test server.
func (ts *TestServer) Post(path string, body interface{}) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, ts.Server.URL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse decodes the response body into target and closes it.
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}
