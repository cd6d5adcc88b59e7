package api

import (
	"layanan/internal/config"

	"golang.org/x/time/rate"
)

// newLimiter builds the outbound limiter shared by every request of one client.
func newLimiter(cfg config.APIRateLimitConfig) *rate.Limiter {
	if cfg.RPS <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	return rate.NewLimiter(rate.Limit(cfg.RPS), burst)
}
