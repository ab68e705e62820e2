package tsauth

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventOTPRequest        = "otp_request"
	auditEventOTPVerify         = "otp_verify"
	auditEventOTPSweep          = "otp_sweep"
	auditEventSignupSuccess     = "signup_success"
	auditEventSignupFailure     = "signup_failure"
	auditEventLoginSuccess      = "login_success"
	auditEventLoginFailure      = "login_failure"
	auditEventExternalProvision = "external_provision"
	auditEventStaleSession      = "stale_session"
	auditEventLogout            = "logout"
)

// AuditErrorCode is the stable, non-sensitive error label written to
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrValidation         AuditErrorCode = "validation"
	auditErrEmailInUse         AuditErrorCode = "email_in_use"
	auditErrUsernameInUse      AuditErrorCode = "username_in_use"
	auditErrEmailNotVerified   AuditErrorCode = "email_not_verified"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrInvalidOTP         AuditErrorCode = "invalid_otp"
	auditErrOTPExpired         AuditErrorCode = "otp_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrStaleSession       AuditErrorCode = "stale_session"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// errOTPExpired and errOTPAttemptsExceeded label verify failures in audit
// events only; VerifyCode reports them to callers as a plain false.
var (
	errOTPExpired          = errors.New("otp expired")
	errOTPAttemptsExceeded = errors.New("otp attempts exceeded")
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Subject:   subject,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrEmailInUse):
		return auditErrEmailInUse
	case errors.Is(err, ErrUsernameInUse):
		return auditErrUsernameInUse
	case errors.Is(err, ErrEmailNotVerified):
		return auditErrEmailNotVerified
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrInvalidOTP):
		return auditErrInvalidOTP
	case errors.Is(err, errOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, errOTPAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrStaleSession):
		return auditErrStaleSession
	case errors.Is(err, ErrDuplicateUser):
		return auditErrDuplicate
	case errors.Is(err, ErrUserStoreUnavailable),
		errors.Is(err, ErrOTPUnavailable),
		errors.Is(err, ErrMailUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

// RecordLogout counts a logout and emits its audit event. Tokens are
// stateless, so there is nothing to revoke.
func (e *Engine) RecordLogout(ctx context.Context, subject string) {
	if e == nil {
		return
	}
	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, subject, nil, nil)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
