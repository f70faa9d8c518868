package ratelimit

import "context"

// RateLimiter caps outbound delivery throughput so a burst tick cannot
// exceed the mail provider's rate cap. Scope keys independent limits, e.g.
// "mail" for the reminder transport.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
