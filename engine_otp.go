package tsauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	"github.com/truesplit/tsauth/internal"
	"github.com/truesplit/tsauth/internal/stores"
)

// RequestCode issues a fresh code for email and mails it. Any earlier record
// for the same email is replaced, so only the newest code can verify.
//
// It fails with [ErrValidation] for an empty or malformed email and [ErrEmailInUse] when
// the email already belongs to a user. When mail delivery fails the record is
// kept and [ErrMailUnavailable] is returned; calling again supersedes it.
// The code itself is never returned.
func (e *Engine) RequestCode(ctx context.Context, rawEmail string) error {
	if !e.ready() || e.mailer == nil {
		return ErrEngineNotReady
	}

	email, err := parseEmail(rawEmail)
	if err != nil {
		e.metricInc(MetricOTPRequestRejected)
		e.emitAudit(ctx, auditEventOTPRequest, false, "", err, func() map[string]string {
			return map[string]string{"reason": "invalid_email"}
		})
		return err
	}

	exists, err := e.users.ExistsByEmail(ctx, email)
	if err != nil {
		mapped := fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
		e.emitAudit(ctx, auditEventOTPRequest, false, email, mapped, nil)
		return mapped
	}
	if exists {
		e.metricInc(MetricOTPRequestRejected)
		e.emitAudit(ctx, auditEventOTPRequest, false, email, ErrEmailInUse, nil)
		return ErrEmailInUse
	}

	code, err := internal.NewNumericCode(e.config.OTP.CodeDigits)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	codeHash, err := e.hasher.Hash(code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}

	validity := e.config.OTP.Validity
	record := &stores.OTPRecord{
		Email:     email,
		CodeHash:  codeHash,
		ExpiresAt: e.now().Add(validity),
	}
	if err := e.otpStore.Replace(ctx, record, validity+e.config.OTP.RecordGrace); err != nil {
		mapped := fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
		e.emitAudit(ctx, auditEventOTPRequest, false, email, mapped, nil)
		return mapped
	}

	if err := e.mailer.SendOTP(ctx, email, code, validity); err != nil {
		e.logger.WarnContext(ctx, "otp mail delivery failed", "email", email, "error", err)
		mapped := fmt.Errorf("%w: %v", ErrMailUnavailable, err)
		e.emitAudit(ctx, auditEventOTPRequest, false, email, mapped, nil)
		return mapped
	}

	e.metricInc(MetricOTPRequest)
	e.emitAudit(ctx, auditEventOTPRequest, true, email, nil, nil)
	return nil
}

// VerifyCode reports whether code is the current, unexpired, not yet
// verified code for email. On a match the record is marked verified and kept
// for Signup; a second call with the same code returns false.
//
// An expired record is deleted. A wrong code leaves the record untouched
// unless OTP.MaxVerifyAttempts is set, in which case the record is deleted
// once that many wrong codes were submitted. Only store failures produce an
// error; every other negative outcome is a plain false.
func (e *Engine) VerifyCode(ctx context.Context, rawEmail, code string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}

	email := normalizeEmail(rawEmail)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return false, nil
	}

	record, err := e.otpStore.Get(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrOTPNotFound) {
			e.verifyFailed(ctx, email, ErrInvalidOTP, "no_record")
			return false, nil
		}
		return false, e.otpUnavailable(ctx, email, err)
	}

	if record.Verified {
		e.verifyFailed(ctx, email, ErrInvalidOTP, "already_verified")
		return false, nil
	}

	if record.Expired(e.now()) {
		if _, err := e.otpStore.DeleteIfUnchanged(ctx, record); err != nil {
			return false, e.otpUnavailable(ctx, email, err)
		}
		e.metricInc(MetricOTPExpired)
		e.verifyFailed(ctx, email, errOTPExpired, "expired")
		return false, nil
	}

	match, err := e.hasher.Verify(code, record.CodeHash)
	if err != nil {
		// wrong length or a corrupt stored hash: neither can verify
		e.logger.DebugContext(ctx, "otp hash verify rejected input", "email", email, "error", err)
		match = false
	}

	if !match {
		if limit := e.config.OTP.MaxVerifyAttempts; limit > 0 {
			err := e.otpStore.RecordMismatch(ctx, record, limit)
			switch {
			case errors.Is(err, stores.ErrOTPAttemptsExceeded):
				e.metricInc(MetricOTPAttemptsExceeded)
				e.verifyFailed(ctx, email, errOTPAttemptsExceeded, "attempts_exceeded")
				return false, nil
			case errors.Is(err, stores.ErrOTPNotFound), errors.Is(err, stores.ErrOTPSuperseded):
			case err != nil:
				return false, e.otpUnavailable(ctx, email, err)
			}
		}
		e.verifyFailed(ctx, email, ErrInvalidOTP, "mismatch")
		return false, nil
	}

	if err := e.otpStore.MarkVerified(ctx, record, e.config.OTP.VerifiedRetention); err != nil {
		if errors.Is(err, stores.ErrOTPNotFound) || errors.Is(err, stores.ErrOTPSuperseded) {
			e.verifyFailed(ctx, email, ErrInvalidOTP, "superseded")
			return false, nil
		}
		return false, e.otpUnavailable(ctx, email, err)
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerify, true, email, nil, nil)
	return true, nil
}

// SweepExpired deletes every unverified record whose expiry has passed and
// returns how many were removed. Verified records are never swept.
func (e *Engine) SweepExpired(ctx context.Context) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}

	deleted, err := e.otpStore.SweepExpired(ctx, e.now())
	if deleted > 0 {
		e.metrics.Add(MetricOTPSwept, uint64(deleted))
		e.emitAudit(ctx, auditEventOTPSweep, true, "", nil, func() map[string]string {
			return map[string]string{"deleted": strconv.Itoa(deleted)}
		})
	}
	if err != nil {
		return deleted, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	return deleted, nil
}

// otpVerified reports whether email holds a verified record that Signup may
// consume.
func (e *Engine) otpVerified(ctx context.Context, email string) (*stores.OTPRecord, error) {
	record, err := e.otpStore.Get(ctx, email)
	if err != nil {
		if errors.Is(err, stores.ErrOTPNotFound) {
			return nil, ErrEmailNotVerified
		}
		return nil, fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	}
	if !record.Verified {
		return nil, ErrEmailNotVerified
	}
	return record, nil
}

func (e *Engine) verifyFailed(ctx context.Context, email string, err error, reason string) {
	e.metricInc(MetricOTPVerifyFailure)
	e.emitAudit(ctx, auditEventOTPVerify, false, email, err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
}

func (e *Engine) otpUnavailable(ctx context.Context, email string, err error) error {
	mapped := fmt.Errorf("%w: %v", ErrOTPUnavailable, err)
	e.emitAudit(ctx, auditEventOTPVerify, false, email, mapped, nil)
	return mapped
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// parseEmail accepts a bare RFC 5322 address and returns it normalized.
// Display-name forms such as "A <a@x.com>" are rejected.
func parseEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	return strings.ToLower(addr.Address), nil
}
