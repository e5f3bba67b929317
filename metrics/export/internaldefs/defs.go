package internaldefs

import (
	"github.com/shiftboard/shiftauth"
)

// CounterDef names one counter.
type CounterDef struct {
	ID   shiftauth.MetricID
	Name string
	Help string
}

// HistogramDef names one latency histogram.
type HistogramDef struct {
	ID   shiftauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: shiftauth.MetricSignupSuccess, Name: "shiftauth_signup_success_total", Help: "Successful signups."},
	{ID: shiftauth.MetricSignupDuplicate, Name: "shiftauth_signup_duplicate_total", Help: "Signups rejected because the email is taken."},
	{ID: shiftauth.MetricSignupRateLimited, Name: "shiftauth_signup_rate_limited_total", Help: "Rate-limited signup attempts."},
	{ID: shiftauth.MetricSignupRejected, Name: "shiftauth_signup_rejected_total", Help: "Signups rejected by validation or password policy."},
	{ID: shiftauth.MetricSigninSuccess, Name: "shiftauth_signin_success_total", Help: "Successful signins."},
	{ID: shiftauth.MetricSigninFailure, Name: "shiftauth_signin_failure_total", Help: "Signins rejected for invalid credentials."},
	{ID: shiftauth.MetricSigninRateLimited, Name: "shiftauth_signin_rate_limited_total", Help: "Rate-limited signin attempts."},
	{ID: shiftauth.MetricSigninLocked, Name: "shiftauth_signin_locked_total", Help: "Signins rejected by an active lockout."},
	{ID: shiftauth.MetricSigninUnverified, Name: "shiftauth_signin_unverified_total", Help: "Signins rejected for an unverified email."},
	{ID: shiftauth.MetricAccountLocked, Name: "shiftauth_account_locked_total", Help: "Lockouts triggered by failed signins."},
	{ID: shiftauth.MetricPasswordRehashed, Name: "shiftauth_password_rehashed_total", Help: "Password digests upgraded on signin."},
	{ID: shiftauth.MetricRefreshSuccess, Name: "shiftauth_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: shiftauth.MetricRefreshFailure, Name: "shiftauth_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: shiftauth.MetricRefreshReuseDetected, Name: "shiftauth_refresh_reuse_detected_total", Help: "Refresh tokens presented after rotation or revocation."},
	{ID: shiftauth.MetricRefreshRaceLost, Name: "shiftauth_refresh_race_lost_total", Help: "Concurrent rotations of the same token that lost."},
	{ID: shiftauth.MetricLogout, Name: "shiftauth_logout_total", Help: "Single-session logouts."},
	{ID: shiftauth.MetricLogoutAll, Name: "shiftauth_logout_all_total", Help: "Logout-all-devices operations."},
	{ID: shiftauth.MetricEmailVerificationRequest, Name: "shiftauth_email_verification_request_total", Help: "Verification emails requested."},
	{ID: shiftauth.MetricEmailVerificationSuccess, Name: "shiftauth_email_verification_success_total", Help: "Successful email verifications."},
	{ID: shiftauth.MetricEmailVerificationFailure, Name: "shiftauth_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: shiftauth.MetricEmailVerificationRateLimited, Name: "shiftauth_email_verification_rate_limited_total", Help: "Rate-limited verification resend requests."},
	{ID: shiftauth.MetricPasswordResetRequest, Name: "shiftauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: shiftauth.MetricPasswordResetRateLimited, Name: "shiftauth_password_reset_rate_limited_total", Help: "Rate-limited password reset requests."},
	{ID: shiftauth.MetricPasswordResetSuccess, Name: "shiftauth_password_reset_success_total", Help: "Successful password resets."},
	{ID: shiftauth.MetricPasswordResetFailure, Name: "shiftauth_password_reset_failure_total", Help: "Failed password resets."},
	{ID: shiftauth.MetricAccessValidated, Name: "shiftauth_access_validated_total", Help: "Access tokens accepted."},
	{ID: shiftauth.MetricAccessRejected, Name: "shiftauth_access_rejected_total", Help: "Access tokens rejected as invalid, expired or of the wrong type."},
	{ID: shiftauth.MetricAccessRevoked, Name: "shiftauth_access_revoked_total", Help: "Access tokens rejected by the blacklist."},
	{ID: shiftauth.MetricRateLimitDegraded, Name: "shiftauth_rate_limit_degraded_total", Help: "Rate-limit checks skipped because the ephemeral store failed."},
	{ID: shiftauth.MetricEphemeralFailure, Name: "shiftauth_ephemeral_failure_total", Help: "Best-effort ephemeral store operations that failed."},
	{ID: shiftauth.MetricStoreFailure, Name: "shiftauth_store_failure_total", Help: "Durable store failures surfaced as service unavailable."},
	{ID: shiftauth.MetricMailDropped, Name: "shiftauth_mail_dropped_total", Help: "Emails dropped because the queue was full or closed."},
	{ID: shiftauth.MetricMailFailed, Name: "shiftauth_mail_failed_total", Help: "Emails the sender failed to deliver."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: shiftauth.MetricSigninLatency, Name: "shiftauth_signin_latency_seconds", Help: "Signin latency histogram."},
	{ID: shiftauth.MetricRefreshLatency, Name: "shiftauth_refresh_latency_seconds", Help: "Refresh latency histogram."},
	{ID: shiftauth.MetricValidateLatency, Name: "shiftauth_validate_latency_seconds", Help: "Access token validation latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the eight buckets.
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

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
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

// NormalizeBuckets copies raw into a fixed array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
