package domain

import "time"

// Confirmation is the ephemeral record the server returns when an order
// draft is accepted. Echoing Token back before ExpiresAt executes the
// order; after that the token is dead. At most one confirmation is
// pending at any time.
type Confirmation struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Summary   string    `json:"summary"` // human-readable, e.g. "BUY 0.1 BTCUSDT @ market"
}

// Remaining returns the time left in the confirmation window.
func (c *Confirmation) Remaining(now time.Time) time.Duration {
	if c == nil {
		return 0
	}
	d := c.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the window has elapsed.
func (c *Confirmation) Expired(now time.Time) bool {
	return c == nil || !c.ExpiresAt.After(now)
}
