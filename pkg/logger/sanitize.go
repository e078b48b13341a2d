package logger

import "strings"

// SanitizedEmail masks an email address for logging, keeping just enough
// shape to correlate log lines ("u***@***.com").
func SanitizedEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}

	username := email[:at]
	domain := email[at+1:]

	if len(username) > 1 {
		username = username[:1] + strings.Repeat("*", len(username)-1)
	}

	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

// sensitive query parameter names; substring match on purpose so
// variants like reset_token are caught too
var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"email",
	"auth",
}

// SanitizeQueryString reports whether a raw query string carries a
// sensitive parameter and should be redacted wholesale.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
