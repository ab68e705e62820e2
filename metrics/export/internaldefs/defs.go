package internaldefs

import (
	"github.com/truesplit/tsauth"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   tsauth.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   tsauth.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for events lost to dispatcher backpressure.
const AuditDroppedName = "tsauth_audit_dropped_total"

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: tsauth.MetricOTPRequest, Name: "tsauth_otp_request_total", Help: "OTP codes issued and mailed."},
	{ID: tsauth.MetricOTPRequestRejected, Name: "tsauth_otp_request_rejected_total", Help: "OTP requests rejected for an empty or registered email."},
	{ID: tsauth.MetricOTPVerifySuccess, Name: "tsauth_otp_verify_success_total", Help: "Successful OTP verifications."},
	{ID: tsauth.MetricOTPVerifyFailure, Name: "tsauth_otp_verify_failure_total", Help: "Failed OTP verifications."},
	{ID: tsauth.MetricOTPExpired, Name: "tsauth_otp_expired_total", Help: "OTP records deleted on verify because they had expired."},
	{ID: tsauth.MetricOTPAttemptsExceeded, Name: "tsauth_otp_attempts_exceeded_total", Help: "OTP records deleted after too many wrong codes."},
	{ID: tsauth.MetricOTPSwept, Name: "tsauth_otp_swept_total", Help: "Expired OTP records removed by the sweeper."},
	{ID: tsauth.MetricSignupSuccess, Name: "tsauth_signup_success_total", Help: "Local accounts created."},
	{ID: tsauth.MetricSignupDuplicate, Name: "tsauth_signup_duplicate_total", Help: "Signups rejected for a taken email or username."},
	{ID: tsauth.MetricSignupUnverified, Name: "tsauth_signup_unverified_total", Help: "Signups rejected for an unverified email."},
	{ID: tsauth.MetricLoginSuccess, Name: "tsauth_login_success_total", Help: "Successful password logins."},
	{ID: tsauth.MetricLoginFailure, Name: "tsauth_login_failure_total", Help: "Failed password logins."},
	{ID: tsauth.MetricExternalProvisionCreated, Name: "tsauth_external_provision_created_total", Help: "Accounts created on first external sign-in."},
	{ID: tsauth.MetricExternalProvisionExisting, Name: "tsauth_external_provision_existing_total", Help: "External sign-ins that reused an existing account."},
	{ID: tsauth.MetricExternalProvisionRace, Name: "tsauth_external_provision_race_total", Help: "Concurrent first external sign-ins resolved to the winning row."},
	{ID: tsauth.MetricGateAuthenticated, Name: "tsauth_gate_authenticated_total", Help: "Requests that carried a valid session token."},
	{ID: tsauth.MetricGateInvalidToken, Name: "tsauth_gate_invalid_token_total", Help: "Requests whose token failed validation."},
	{ID: tsauth.MetricGateStaleUser, Name: "tsauth_gate_stale_user_total", Help: "Valid tokens whose user no longer exists."},
	{ID: tsauth.MetricLogout, Name: "tsauth_logout_total", Help: "Logout calls."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: tsauth.MetricValidateLatency, Name: "tsauth_authenticate_latency_seconds", Help: "Token authentication latency."},
}

// HistogramBounds are the upper bounds of the histogram buckets in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket for exporters that cannot use
// dotted label values.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets and ignoring extras.
func NormalizeBuckets(raw []uint64) (out [8]uint64) {
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	for i := 1; i < len(raw); i++ {
		raw[i] += raw[i-1]
	}
	return raw
}
