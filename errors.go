package tsauth

import "errors"

var (
	// ErrValidation is returned when a request is missing required fields or
	// fails input policy (for example a short password).
	ErrValidation = errors.New("validation failed")
	// ErrEmailInUse is returned when the email already belongs to a user.
	ErrEmailInUse = errors.New("email already in use")
	// ErrUsernameInUse is returned when the requested username is taken.
	ErrUsernameInUse = errors.New("username already in use")
	// ErrEmailNotVerified is returned by Signup when no verified OTP record exists for the email.
	ErrEmailNotVerified = errors.New("email is not verified using otp")
	// ErrInvalidCredentials is returned by Login for an unknown identifier or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidOTP is returned by HTTP-facing callers when VerifyCode reports false.
	ErrInvalidOTP = errors.New("invalid or expired otp")
	// ErrUnauthorized is returned when a session token is missing, malformed, badly signed or expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStaleSession is returned when a valid token names a user that no longer exists.
	ErrStaleSession = errors.New("session user deleted")

	// ErrUserNotFound must be returned by UserStore lookups when no user matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateUser must be returned by UserStore.Create on a unique key violation.
	ErrDuplicateUser = errors.New("duplicate user")

	// ErrUserStoreUnavailable wraps any other UserStore failure.
	ErrUserStoreUnavailable = errors.New("user store unavailable")
	// ErrOTPUnavailable wraps OTP record store failures.
	ErrOTPUnavailable = errors.New("otp backend unavailable")
	// ErrMailUnavailable wraps Mailer failures.
	ErrMailUnavailable = errors.New("mail delivery unavailable")
	// ErrTokenIssue wraps session token signing failures.
	ErrTokenIssue = errors.New("token issue failed")
	// ErrEngineNotReady is returned when a method is called on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
