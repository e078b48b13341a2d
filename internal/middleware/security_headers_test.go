package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func applyHeaders(t *testing.T, env string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	handler := SecurityHeaders(SecurityHeadersConfig{Env: env})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSecurityHeaders_BaselinePresent(t *testing.T) {
	rec := applyHeaders(t, "development", nil)

	want := map[string]string{
		"X-Frame-Options":            "DENY",
		"X-Content-Type-Options":     "nosniff",
		"Referrer-Policy":            "strict-origin-when-cross-origin",
		"Cross-Origin-Opener-Policy": "same-origin",
	}
	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'none'") {
		t.Errorf("CSP should deny all resource loading, got %q", csp)
	}
}

func TestSecurityHeaders_HSTSOnlyOnProductionHTTPS(t *testing.T) {
	rec := applyHeaders(t, "production", nil)
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should not be set for plain HTTP")
	}

	rec = applyHeaders(t, "production", func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})
	if hsts := rec.Header().Get("Strict-Transport-Security"); !strings.Contains(hsts, "max-age=31536000") {
		t.Errorf("HSTS missing on forwarded HTTPS, got %q", hsts)
	}

	rec = applyHeaders(t, "development", func(r *http.Request) {
		r.Header.Set("X-Forwarded-Proto", "https")
	})
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should not be set outside production")
	}
}
