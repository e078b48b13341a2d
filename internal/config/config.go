package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
	Email    EmailConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	RunMigrations     bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// SecurityConfig holds the lockout, reset-token and throttling thresholds.
// These are policy knobs, never hardcoded in the engine itself.
type SecurityConfig struct {
	MaxConsecutiveFailures int           // failures before a lock is applied
	LockDuration           time.Duration // how long an applied lock lasts
	AlertThreshold         int           // lockouts within the trailing window that trigger an alert
	LockoutWindow          time.Duration // trailing window for counting lockouts
	TokenTTL               time.Duration // password reset token lifetime
	IPRateLimit            int           // login requests allowed per IP per window
	IPRateWindow           time.Duration
	ThrottleResponseDelay  time.Duration // fixed delay applied to throttled responses
	TimingDelayBase        time.Duration // minimum elapsed time for rejected auth responses
	TimingDelayJitter      time.Duration // random addition to the timing pad
}

type EmailConfig struct {
	AWSRegion       string
	FromAddress     string
	ResetURLBase    string
	AlertRecipients []string // administrators notified on repeated lockouts
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			RunMigrations:     getEnvAsBool("DB_RUN_MIGRATIONS", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			JWTSecret:          jwtSecret,
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			MaxConsecutiveFailures: getEnvAsInt("MAX_CONSECUTIVE_FAILURES", 5),
			LockDuration:           getEnvAsDuration("LOCK_DURATION", 15*time.Minute),
			AlertThreshold:         getEnvAsInt("ALERT_THRESHOLD", 3),
			LockoutWindow:          getEnvAsDuration("LOCKOUT_WINDOW", 24*time.Hour),
			TokenTTL:               getEnvAsDuration("TOKEN_TTL", 15*time.Minute),
			IPRateLimit:            getEnvAsInt("IP_RATE_LIMIT", 10),
			IPRateWindow:           getEnvAsDuration("IP_RATE_WINDOW", 5*time.Minute),
			ThrottleResponseDelay:  getEnvAsDuration("THROTTLE_RESPONSE_DELAY", 500*time.Millisecond),
			TimingDelayBase:        getEnvAsDuration("TIMING_DELAY_BASE", 100*time.Millisecond),
			TimingDelayJitter:      getEnvAsDuration("TIMING_DELAY_JITTER", 50*time.Millisecond),
		},
		Email: EmailConfig{
			AWSRegion:       getEnv("AWS_SES_REGION", "us-east-1"),
			FromAddress:     getEnv("EMAIL_FROM_ADDRESS", "no-reply@localhost"),
			ResetURLBase:    getEnv("RESET_URL_BASE", "http://localhost:3000"),
			AlertRecipients: parseEmailList(getEnv("SECURITY_ALERT_EMAILS", "")),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Security.MaxConsecutiveFailures < 1 {
		return nil, fmt.Errorf("MAX_CONSECUTIVE_FAILURES must be at least 1")
	}
	if cfg.Security.AlertThreshold < 1 {
		return nil, fmt.Errorf("ALERT_THRESHOLD must be at least 1")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseEmailList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			emails = append(emails, strings.ToLower(p))
		}
	}
	return emails
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{} // Default to no origins in production
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
		"http://127.0.0.1:5173",
	}
}
