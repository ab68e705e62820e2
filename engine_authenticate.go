package tsauth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Authenticate resolves a session token to the live user it names.
//
// An invalid, expired or badly signed token yields [ErrUnauthorized]. A valid
// token whose subject no longer exists yields [ErrStaleSession]; callers must
// treat the session as revoked. Store failures yield
// [ErrUserStoreUnavailable]. The returned Principal carries the roles stored
// now, not the ones in the token.
func (e *Engine) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() {
			e.metrics.Observe(MetricValidateLatency, time.Since(start))
		}()
	}

	if !e.jwtManager.Validate(token) {
		e.metricInc(MetricGateInvalidToken)
		return nil, ErrUnauthorized
	}

	subject := e.jwtManager.SubjectOf(token)
	user, err := e.users.FindByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricGateStaleUser)
			e.emitAudit(ctx, auditEventStaleSession, false, subject, ErrStaleSession, nil)
			return nil, ErrStaleSession
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	}

	e.metricInc(MetricGateAuthenticated)
	return &Principal{User: user, Token: token}, nil
}
