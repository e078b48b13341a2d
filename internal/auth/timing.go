package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads authentication responses so that failure paths take a
// uniform amount of time. Without it, "unknown email" returns faster
// than "wrong password" and the difference leaks account existence.
type TimingDelay struct {
	base   time.Duration
	jitter time.Duration
}

// NewTimingDelay creates a TimingDelay with the given base pad and
// random jitter range.
func NewTimingDelay(base, jitter time.Duration) *TimingDelay {
	return &TimingDelay{base: base, jitter: jitter}
}

// WaitFrom sleeps until at least base+jitter has elapsed since start.
// Work already done counts toward the target, so fast failure paths get
// padded up to the same envelope as slow ones.
func (td *TimingDelay) WaitFrom(start time.Time) {
	target := td.base + randomJitter(td.jitter)
	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}

// randomJitter draws a uniform duration in [0, max) from crypto/rand.
func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0
	}

	n := binary.BigEndian.Uint64(buf[:])
	return time.Duration(n % uint64(max))
}
