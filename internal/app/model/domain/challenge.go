package domain

import "time"

// Challenge is a one-time-code challenge keyed by an arbitrary subject
// (an email address for registration, a user for password reset). Both OTP
// flows materialize their stored state into a Challenge so expiry, cooldown
// and match logic exists in one place.
type Challenge struct {
	SubjectKey string
	Code       string
	ExpiresAt  time.Time
	Attempts   int
}

func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

func (c *Challenge) Matches(code string) bool {
	return c.Code != "" && c.Code == code
}

// CooldownRemaining returns how long the subject must wait before another
// code may be issued. The last-sent time is derived from the stored expiry
// by subtracting the fixed code TTL, so no separate timestamp is persisted.
func (c *Challenge) CooldownRemaining(now time.Time, ttl, cooldown time.Duration) time.Duration {
	lastSent := c.ExpiresAt.Add(-ttl)
	remaining := cooldown - now.Sub(lastSent)
	if remaining < 0 {
		return 0
	}
	return remaining
}
