package http_test

import (
	"net/http/httptest"
	"testing"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP(t *testing.T) {
	internalProxies := []string{"10.0.0.0/8", "127.0.0.1/32"}

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xRealIP    string
		config     *pkghttp.IPConfig
		want       string
	}{
		{
			name:       "direct connection ignores forwarded headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4, 5.6.7.8",
			xRealIP:    "192.168.1.1",
			config:     &pkghttp.IPConfig{TrustedProxies: internalProxies},
			want:       "203.0.113.10",
		},
		{
			name:       "trusted proxy uses first forwarded IP",
			remoteAddr: "10.0.0.5:54321",
			xff:        "203.0.113.42, 203.0.113.43, 10.0.0.5",
			config:     &pkghttp.IPConfig{TrustedProxies: internalProxies},
			want:       "203.0.113.42",
		},
		{
			name:       "trusted proxy falls back to X-Real-IP",
			remoteAddr: "10.0.0.5:54321",
			xRealIP:    "203.0.113.42",
			config:     &pkghttp.IPConfig{TrustedProxies: internalProxies},
			want:       "203.0.113.42",
		},
		{
			name:       "nil config never trusts headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			config:     nil,
			want:       "203.0.113.10",
		},
		{
			name:       "empty proxy list never trusts headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{}},
			want:       "203.0.113.10",
		},
		{
			name:       "invalid CIDR entries are skipped",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"not-a-cidr"}},
			want:       "203.0.113.10",
		},
		{
			name:       "IPv6 proxy forwards IPv6 client",
			remoteAddr: "[::1]:54321",
			xff:        "2001:db8::1",
			config:     &pkghttp.IPConfig{TrustedProxies: []string{"::1/128"}},
			want:       "2001:db8::1",
		},
		{
			name:       "garbage in forwarded chain is skipped",
			remoteAddr: "10.0.0.5:54321",
			xff:        "not-an-ip, 203.0.113.42",
			config:     &pkghttp.IPConfig{TrustedProxies: internalProxies},
			want:       "203.0.113.42",
		},
		{
			name:       "port stripped from RemoteAddr",
			remoteAddr: "203.0.113.10:54321",
			config:     &pkghttp.IPConfig{},
			want:       "203.0.113.10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.want, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}
