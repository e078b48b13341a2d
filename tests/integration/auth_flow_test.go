package integration

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/bastion/internal/services"
)

var testDB *TestDB

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}

	ctx := context.Background()
	db, err := SetupTestDatabase(ctx)
	if err != nil {
		panic("integration setup failed: " + err.Error())
	}
	testDB = db

	code := m.Run()

	_ = testDB.Teardown(ctx)
	os.Exit(code)
}

func freshServer(t *testing.T) *TestServer {
	t.Helper()
	require.NoError(t, testDB.CleanupTables(context.Background()))
	ts := NewTestServer(testDB.DB)
	t.Cleanup(ts.Close)
	return ts
}

func TestRegisterThenLogin(t *testing.T) {
	ts := freshServer(t)
	email, password := TestCredentials("register")

	resp, err := ts.Post("/api/v1/auth/register", map[string]string{
		"email":     email,
		"password":  password,
		"full_name": "Test User",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created services.AuthResponse
	require.NoError(t, ParseJSONResponse(resp, &created))
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.RefreshToken)
	require.NotNil(t, created.User)
	assert.Equal(t, email, created.User.Email)

	resp, err = ts.Post("/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()
	email, password := TestCredentials("lockout")
	user, err := SeedUser(ctx, testDB.Pool, email, password, true)
	require.NoError(t, err)

	login := func(pw string) *http.Response {
		resp, err := ts.Post("/api/v1/auth/login", map[string]string{
			"email":    email,
			"password": pw,
		})
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	for i := 0; i < ts.Lockout.MaxConsecutiveFailures-1; i++ {
		resp := login("wrong-password-1!")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "failure %d should be a plain rejection", i+1)
	}

	resp := login("wrong-password-1!")
	assert.Equal(t, http.StatusLocked, resp.StatusCode, "threshold failure should lock the account")
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Correct password while locked must still be rejected
	resp = login(password)
	assert.Equal(t, http.StatusLocked, resp.StatusCode)

	lock, err := FetchLockState(ctx, testDB.Pool, user.ID)
	require.NoError(t, err)
	require.NotNil(t, lock.LockedUntil)
	assert.True(t, lock.LockedUntil.After(time.Now()))
	assert.Equal(t, 1, lock.LockoutsLast24h)
	assert.Equal(t, 0, lock.ConsecutiveFailures, "streak resets when the lock is applied")

	attempts, err := CountRows(ctx, testDB.Pool, "login_attempts", "email = $1 AND success = FALSE", email)
	require.NoError(t, err)
	assert.Equal(t, ts.Lockout.MaxConsecutiveFailures+1, attempts, "every attempt lands in the ledger, including the lock-denied one")

	events, err := CountRows(ctx, testDB.Pool, "security_events", "kind = 'lock_applied' AND user_id = $1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, events)
}

func TestPasswordResetFlow(t *testing.T) {
	ts := freshServer(t)
	ctx := context.Background()
	email, password := TestCredentials("reset")
	_, err := SeedUser(ctx, testDB.Pool, email, password, true)
	require.NoError(t, err)

	resp, err := ts.Post("/api/v1/auth/password/forgot", map[string]string{"email": email})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	sent := ts.Email.LastResetEmail()
	require.NotNil(t, sent, "reset email should have been sent")
	assert.Equal(t, email, sent.To)
	require.NotEmpty(t, sent.Token)

	resp, err = ts.Post("/api/v1/auth/password/reset/validate", map[string]string{"token": sent.Token})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	newPassword := "BrandNewSecret7?"
	resp, err = ts.Post("/api/v1/auth/password/reset", map[string]string{
		"token":     sent.Token,
		"email":     email,
		"password":  newPassword,
		"password2": newPassword,
	})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Old password no longer works, new one does
	resp, err = ts.Post("/api/v1/auth/login", map[string]string{"email": email, "password": password})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = ts.Post("/api/v1/auth/login", map[string]string{"email": email, "password": newPassword})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Single use: the consumed token is dead
	resp, err = ts.Post("/api/v1/auth/password/reset", map[string]string{
		"token":     sent.Token,
		"email":     email,
		"password":  "AnotherSecret8?",
		"password2": "AnotherSecret8?",
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	used, err := CountRows(ctx, testDB.Pool, "password_reset_tokens", "used_at IS NOT NULL")
	require.NoError(t, err)
	assert.Equal(t, 1, used)

	succeeded, err := CountRows(ctx, testDB.Pool, "security_events", "kind = 'password_reset_succeeded'")
	require.NoError(t, err)
	assert.Equal(t, 1, succeeded)
}

func TestForgotPasswordUnknownEmailRevealsNothing(t *testing.T) {
	ts := freshServer(t)

	resp, err := ts.Post("/api/v1/auth/password/forgot", map[string]string{
		"email": "nobody-here@example.com",
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Nil(t, ts.Email.LastResetEmail(), "no email should be sent for unknown accounts")
}
