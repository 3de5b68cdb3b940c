package internaldefs

import (
	authgate "github.com/tradewire/authgate"
)

// CounterDef defines a public type used by authgate APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authgate APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authgate.MetricDeviceTokenIssued, Name: "authgate_device_token_issued_total", Help: "Issued device tokens."},
	{ID: authgate.MetricSmsCodeSent, Name: "authgate_sms_code_sent_total", Help: "Dispatched SMS one-time codes."},
	{ID: authgate.MetricSmsCodeReused, Name: "authgate_sms_code_reused_total", Help: "SMS dispatches that resent a still-pending code."},
	{ID: authgate.MetricSmsProviderError, Name: "authgate_sms_provider_error_total", Help: "SMS dispatches rejected by the provider."},
	{ID: authgate.MetricPhoneBanned, Name: "authgate_phone_banned_total", Help: "Operations denied by an exhausted phone attempt budget."},
	{ID: authgate.MetricPhoneClaimConflict, Name: "authgate_phone_claim_conflict_total", Help: "SMS requests denied because another device holds the phone number."},
	{ID: authgate.MetricSessionIssued, Name: "authgate_session_issued_total", Help: "Trading sessions issued after phone verification."},
	{ID: authgate.MetricSessionReissued, Name: "authgate_session_reissued_total", Help: "Trading sessions reissued to verified devices."},
	{ID: authgate.MetricSmsCodeIncorrect, Name: "authgate_sms_code_incorrect_total", Help: "Rejected SMS code submissions."},
	{ID: authgate.MetricIdentityCreated, Name: "authgate_identity_created_total", Help: "Member identities created on first phone verification."},
	{ID: authgate.MetricIdentityResolved, Name: "authgate_identity_resolved_total", Help: "Member identities resolved to an existing record."},
	{ID: authgate.MetricGoogleSecretIssued, Name: "authgate_google_secret_issued_total", Help: "Issued authenticator enrollment secrets."},
	{ID: authgate.MetricGoogleEnrolled, Name: "authgate_google_enrolled_total", Help: "Completed authenticator enrollments."},
	{ID: authgate.MetricGoogleCodeIncorrect, Name: "authgate_google_code_incorrect_total", Help: "Rejected authenticator code submissions."},
	{ID: authgate.MetricGoogleBanned, Name: "authgate_google_banned_total", Help: "Operations denied by an exhausted authenticator attempt budget."},
	{ID: authgate.MetricGoogleDisabled, Name: "authgate_google_disabled_total", Help: "Authenticator factor disable operations."},
	{ID: authgate.MetricEmailSecretIssued, Name: "authgate_email_secret_issued_total", Help: "Issued email enrollment secrets."},
	{ID: authgate.MetricEmailEnrolled, Name: "authgate_email_enrolled_total", Help: "Completed email factor enrollments."},
	{ID: authgate.MetricEmailSecretExpired, Name: "authgate_email_secret_expired_total", Help: "Email enrollment confirmations rejected as expired."},
	{ID: authgate.MetricEmailCodeSent, Name: "authgate_email_code_sent_total", Help: "Dispatched email confirmation codes."},
	{ID: authgate.MetricEmailCodeIncorrect, Name: "authgate_email_code_incorrect_total", Help: "Rejected email code submissions."},
	{ID: authgate.MetricEmailBanned, Name: "authgate_email_banned_total", Help: "Operations denied by an exhausted email attempt budget."},
	{ID: authgate.MetricEmailDisabled, Name: "authgate_email_disabled_total", Help: "Email factor disable operations."},
	{ID: authgate.MetricSensitiveIssued, Name: "authgate_sensitive_issued_total", Help: "Sensitive sessions issued after factor re-proof."},
	{ID: authgate.MetricTokenRejected, Name: "authgate_token_rejected_total", Help: "Requests rejected for invalid or expired tokens."},
	{ID: authgate.MetricScopeRejected, Name: "authgate_scope_rejected_total", Help: "Requests rejected for insufficient session scope."},
	{ID: authgate.MetricEventPublished, Name: "authgate_event_published_total", Help: "Published identity-resolved events."},
	{ID: authgate.MetricEventPublishFailure, Name: "authgate_event_publish_failure_total", Help: "Failed identity-resolved event publishes."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricVerifyLatency, Name: "authgate_verify_latency_seconds", Help: "Verification latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
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

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
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

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
