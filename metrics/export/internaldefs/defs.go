package internaldefs

import (
	idp "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub002"
)

// CounterDef defines a public type used by idp APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   idp.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by idp APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   idp.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: idp.MetricPolicySelected, Name: "idp_policy_selected_total", Help: "Successful policy selections."},
	{ID: idp.MetricPolicySelectionFailed, Name: "idp_policy_selection_failed_total", Help: "Failed policy selections."},
	{ID: idp.MetricPolicyCacheHit, Name: "idp_policy_cache_hit_total", Help: "Policy configuration cache hits."},
	{ID: idp.MetricPolicyCacheMiss, Name: "idp_policy_cache_miss_total", Help: "Policy configuration cache misses."},
	{ID: idp.MetricTransactionCreated, Name: "idp_transaction_created_total", Help: "Created authentication transactions."},
	{ID: idp.MetricTransactionCompleted, Name: "idp_transaction_completed_total", Help: "Completed authentication transactions."},
	{ID: idp.MetricTransactionDenied, Name: "idp_transaction_denied_total", Help: "Denied authentication transactions."},
	{ID: idp.MetricTransactionExpired, Name: "idp_transaction_expired_total", Help: "Expired authentication transactions."},
	{ID: idp.MetricInteractionSuccess, Name: "idp_interaction_success_total", Help: "Successful authentication interactions."},
	{ID: idp.MetricInteractionFailure, Name: "idp_interaction_failure_total", Help: "Failed authentication interactions."},
	{ID: idp.MetricInteractionRejected, Name: "idp_interaction_rejected_total", Help: "Interactions rejected as unknown or policy-disallowed."},
	{ID: idp.MetricChallengeIssued, Name: "idp_challenge_issued_total", Help: "Issued authentication challenges."},
	{ID: idp.MetricChallengeDeliveryFailed, Name: "idp_challenge_delivery_failed_total", Help: "Challenge deliveries that failed."},
	{ID: idp.MetricRegistrationSuccess, Name: "idp_registration_success_total", Help: "Successful initial registrations."},
	{ID: idp.MetricRegistrationFailure, Name: "idp_registration_failure_total", Help: "Failed initial registrations."},
	{ID: idp.MetricSessionCreated, Name: "idp_session_created_total", Help: "Created op sessions."},
	{ID: idp.MetricSessionReused, Name: "idp_session_reused_total", Help: "Reused op sessions."},
	{ID: idp.MetricSessionSwitched, Name: "idp_session_switched_total", Help: "Op sessions replaced under SWITCH_ALLOWED."},
	{ID: idp.MetricSessionSwitchRejected, Name: "idp_session_switch_rejected_total", Help: "Op session switches rejected under STRICT."},
	{ID: idp.MetricGrantRecorded, Name: "idp_grant_recorded_total", Help: "Recorded authorization grants."},
	{ID: idp.MetricSilentAuthorizationHit, Name: "idp_silent_authorization_hit_total", Help: "Silent authorization checks that succeeded."},
	{ID: idp.MetricSilentAuthorizationMiss, Name: "idp_silent_authorization_miss_total", Help: "Silent authorization checks that required interaction."},
	{ID: idp.MetricPasswordResetSuccess, Name: "idp_password_reset_success_total", Help: "Successful password resets."},
	{ID: idp.MetricPasswordResetFailure, Name: "idp_password_reset_failure_total", Help: "Failed password resets."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: idp.MetricInteractionLatency, Name: "idp_interaction_latency_seconds", Help: "Interaction execution latency histogram."},
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
// NormalizeBuckets may return an error when input validation, dependency calls, or security checks fail.
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
// CumulativeBuckets may return an error when input validation, dependency calls, or security checks fail.
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
