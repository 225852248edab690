// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"time"
)

// Tier defines a rate limit tier with its limiter. Every tier is keyed by
// client IP; the store has no accounts or other identity to scope by.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Config holds rate limiters for the store's two routes. There is no
// authenticated/unauthenticated split since the store has no auth.
type Config struct {
	Write Tier
	Read  Tier
}

// DefaultConfig creates a Config with default rate limits, both IP-keyed:
//   - Write: 60 req/min, burst 10
//   - Read: 600 req/min, burst 100
func DefaultConfig() *Config {
	return &Config{
		Write: Tier{
			Name:    "write",
			Limiter: NewLimiter(60, time.Minute, 10),
		},
		Read: Tier{
			Name:    "read",
			Limiter: NewLimiter(600, time.Minute, 100),
		},
	}
}

// Match returns the tier for a write-item-stream or read-item-stream
// request, or nil for paths that should not be rate limited.
func (c *Config) Match(method, path string) *Tier {
	switch {
	case path == "/healthz" || path == "/debug/schema":
		return nil
	case method == "POST":
		return &c.Write
	case method == "GET":
		return &c.Read
	default:
		return nil
	}
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	c.Write.Limiter.Close()
	c.Read.Limiter.Close()
}
