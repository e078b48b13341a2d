package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/httprate"
)

// ThrottleRecorder receives login attempts rejected by the IP throttle
type ThrottleRecorder interface {
	RecordThrottled(ctx context.Context, email string, ipAddress *string)
}

// ThrottleConfig holds the per-IP login throttle policy
type ThrottleConfig struct {
	Limit         int           // requests allowed per window per IP
	Window        time.Duration // counting window
	ResponseDelay time.Duration // deliberate pause before answering a throttled request
}

// DefaultThrottleConfig returns the default login throttle policy
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Limit:         10,
		Window:        5 * time.Minute,
		ResponseDelay: 500 * time.Millisecond,
	}
}

// throttledBody is the part of the login request the limit handler needs
type throttledBody struct {
	Email string `json:"email"`
}

// LoginThrottle rate limits login requests per client IP. A rejected
// request is still written to the attempt ledger and the event log, the
// response is deliberately delayed, and the client gets a wait hint.
func LoginThrottle(config ThrottleConfig, recorder ThrottleRecorder, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Limit,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			ipAddress := pkghttp.ExtractClientIP(r, ipConfig)

			// The rejected request never reaches the handler, so pull the
			// email out here for the ledger. Bound the read; a throttled
			// client does not get to make us buffer arbitrary bytes.
			var body throttledBody
			raw, err := io.ReadAll(io.LimitReader(r.Body, 4096))
			if err == nil {
				_ = json.Unmarshal(raw, &body)
				r.Body = io.NopCloser(bytes.NewReader(raw))
			}

			if recorder != nil {
				recorder.RecordThrottled(r.Context(), body.Email, &ipAddress)
			}

			// Slow the caller down before answering
			if config.ResponseDelay > 0 {
				select {
				case <-time.After(config.ResponseDelay):
				case <-r.Context().Done():
					return
				}
			}

			w.Header().Set("Retry-After", strconv.Itoa(int(config.Window.Seconds())))
			pkghttp.WriteTooManyRequests(w, "Too many login attempts from this address. Please try again later.")
		}),
	)
}

// RateLimitByIP is a plain per-IP limiter for endpoints that need no
// ledger integration, such as the password reset surface.
func RateLimitByIP(requestsPerMinute int) func(next http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
		}),
	)
}
