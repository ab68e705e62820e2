package tsauth

import (
	"context"
	"time"
)

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	RedisAvailable bool
	RedisLatency   time.Duration
}

// Health pings the OTP Redis. The user store is not probed; its own
// driver reports failures on use.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.otpStore == nil {
		return HealthStatus{}
	}

	latency, err := e.otpStore.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   latency,
	}
}
