package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)
}

func TestSecurityConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MaxConsecutiveFailures != 5 {
		t.Errorf("MaxConsecutiveFailures: got %d, want 5", cfg.Security.MaxConsecutiveFailures)
	}
	if cfg.Security.LockDuration != 15*time.Minute {
		t.Errorf("LockDuration: got %v, want 15m", cfg.Security.LockDuration)
	}
	if cfg.Security.LockoutWindow != 24*time.Hour {
		t.Errorf("LockoutWindow: got %v, want 24h", cfg.Security.LockoutWindow)
	}
	if cfg.Security.TokenTTL != 15*time.Minute {
		t.Errorf("TokenTTL: got %v, want 15m", cfg.Security.TokenTTL)
	}
	if cfg.Security.IPRateLimit != 10 {
		t.Errorf("IPRateLimit: got %d, want 10", cfg.Security.IPRateLimit)
	}
	if cfg.Security.ThrottleResponseDelay != 500*time.Millisecond {
		t.Errorf("ThrottleResponseDelay: got %v, want 500ms", cfg.Security.ThrottleResponseDelay)
	}
}

func TestSecurityConfig_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MAX_CONSECUTIVE_FAILURES", "3")
	os.Setenv("LOCK_DURATION", "30m")
	os.Setenv("ALERT_THRESHOLD", "2")
	os.Setenv("TOKEN_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MaxConsecutiveFailures != 3 {
		t.Errorf("MaxConsecutiveFailures: got %d, want 3", cfg.Security.MaxConsecutiveFailures)
	}
	if cfg.Security.LockDuration != 30*time.Minute {
		t.Errorf("LockDuration: got %v, want 30m", cfg.Security.LockDuration)
	}
	if cfg.Security.AlertThreshold != 2 {
		t.Errorf("AlertThreshold: got %d, want 2", cfg.Security.AlertThreshold)
	}
	if cfg.Security.TokenTTL != 5*time.Minute {
		t.Errorf("TokenTTL: got %v, want 5m", cfg.Security.TokenTTL)
	}
}

func TestSecurityConfig_InvalidDurationFallsBack(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("LOCK_DURATION", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.LockDuration != 15*time.Minute {
		t.Errorf("LockDuration with invalid value: got %v, want 15m", cfg.Security.LockDuration)
	}
}

func TestSecurityConfig_RejectsZeroThreshold(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MAX_CONSECUTIVE_FAILURES", "0")

	if _, err := Load(); err == nil {
		t.Fatal("Load() accepted MAX_CONSECUTIVE_FAILURES=0, want error")
	}
}

func TestEmailConfig_AlertRecipients(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("SECURITY_ALERT_EMAILS", "Admin@example.com, security@example.com ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	want := []string{"admin@example.com", "security@example.com"}
	if len(cfg.Email.AlertRecipients) != len(want) {
		t.Fatalf("AlertRecipients: got %v, want %v", cfg.Email.AlertRecipients, want)
	}
	for i := range want {
		if cfg.Email.AlertRecipients[i] != want[i] {
			t.Errorf("AlertRecipients[%d]: got %q, want %q", i, cfg.Email.AlertRecipients[i], want[i])
		}
	}
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	os.Clearenv()
	os.Setenv("DB_PASSWORD", "test")
	t.Cleanup(os.Clearenv)

	if _, err := Load(); err == nil {
		t.Fatal("Load() without JWT_SECRET succeeded, want error")
	}
}
