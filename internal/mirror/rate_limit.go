package mirror

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const defaultRequestsPerMinute = 600

// newRateLimiter spreads requests evenly across a minute and lets up to burst
// requests start at once. A negative rpm disables pacing.
func newRateLimiter(rpm, burst int) *rate.Limiter {
	if rpm < 0 {
		return nil
	}
	if rpm == 0 {
		rpm = defaultRequestsPerMinute
	}
	if burst < 1 {
		burst = 1
	}
	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Every(interval), burst)
}

func (m *mirror) acquireRequestSlot(ctx context.Context) bool {
	if m.limiter == nil {
		return true
	}
	return m.limiter.Wait(ctx) == nil
}
