package integration

import (
	"fmt"
	"time"
)

// TestCredentials generates unique credentials per test run. The password
// satisfies the policy (length, letter, digit, special character).
func TestCredentials(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "CorrectHorse9!"
	return
}
