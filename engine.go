package tsauth

import (
	"log/slog"
	"sync/atomic"
	"time"

	internalaudit "github.com/truesplit/tsauth/internal/audit"
	"github.com/truesplit/tsauth/internal/stores"
	"github.com/truesplit/tsauth/jwt"
	"github.com/truesplit/tsauth/password"
)

// Engine runs the OTP, signup, login, external provisioning and request
// authentication flows. Construct it with [New] and [Builder.Build].
//
// An Engine is safe for concurrent use. All cross-request coordination goes
// through the Redis OTP store and the UserStore's own uniqueness guarantees.
type Engine struct {
	config     Config
	otpStore   *stores.OTPStore
	users      UserStore
	mailer     Mailer
	hasher     *password.Argon2
	jwtManager *jwt.Manager
	audit      *internalaudit.Dispatcher
	metrics    *Metrics
	logger     *slog.Logger
	clock      func() time.Time

	// dummyHash is verified against for unknown login identifiers so both
	// failure paths spend one argon2 derivation.
	dummyHash string

	closed atomic.Bool
}

// Close flushes and stops the audit dispatcher. Every flow called after
// Close returns [ErrEngineNotReady]. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// TokenTTL is the lifetime of issued session tokens. HTTP layers use it as
// the session cookie Max-Age.
func (e *Engine) TokenTTL() time.Duration {
	if e == nil || e.jwtManager == nil {
		return 0
	}
	return e.jwtManager.TTL()
}

// OTPSweepInterval is the configured period for [OTPSweeper].
func (e *Engine) OTPSweepInterval() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.OTP.SweepInterval
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && !e.closed.Load() && e.otpStore != nil && e.users != nil && e.hasher != nil && e.jwtManager != nil
}
