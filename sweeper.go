package tsauth

import (
	"context"
	"log/slog"
	"time"
)

// OTPSweeper periodically removes expired, unverified OTP records.
type OTPSweeper struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewOTPSweeper returns a sweeper for engine. A non-positive interval falls
// back to the engine's OTP.SweepInterval.
func NewOTPSweeper(engine *Engine, interval time.Duration, logger *slog.Logger) *OTPSweeper {
	if interval <= 0 {
		interval = engine.OTPSweepInterval()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OTPSweeper{
		engine:   engine,
		interval: interval,
		logger:   logger.With(slog.String("component", "otp_sweeper")),
	}
}

// Run sweeps once per interval until ctx is cancelled. It never returns
// early on sweep errors.
func (s *OTPSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *OTPSweeper) sweep(ctx context.Context) {
	deleted, err := s.engine.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.WarnContext(ctx, "otp sweep failed", "deleted", deleted, "error", err)
		return
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "deleted expired otp records", "deleted", deleted)
	}
}
