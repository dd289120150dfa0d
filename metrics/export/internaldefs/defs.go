package internaldefs

import (
	tokenguard "github.com/deckfolio/tokenguard"
)

// CounterDef defines a public type used by tokenguard APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by tokenguard APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   tokenguard.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the token lifecycle manager.
var CounterDefs = []CounterDef{
	{ID: tokenguard.MetricAccessIssued, Name: "tokenguard_access_issued_total", Help: "Issued access tokens."},
	{ID: tokenguard.MetricRefreshIssued, Name: "tokenguard_refresh_issued_total", Help: "Issued refresh tokens."},
	{ID: tokenguard.MetricIssueFailure, Name: "tokenguard_issue_failure_total", Help: "Failed token issuance attempts."},
	{ID: tokenguard.MetricVerifySuccess, Name: "tokenguard_verify_success_total", Help: "Successful token verifications."},
	{ID: tokenguard.MetricVerifyExpired, Name: "tokenguard_verify_expired_total", Help: "Verifications rejected for expiry."},
	{ID: tokenguard.MetricVerifyInvalid, Name: "tokenguard_verify_invalid_total", Help: "Verifications rejected for bad signature or structure."},
	{ID: tokenguard.MetricVerifyTypeMismatch, Name: "tokenguard_verify_type_mismatch_total", Help: "Verifications rejected for unexpected token type."},
	{ID: tokenguard.MetricVerifyRevoked, Name: "tokenguard_verify_revoked_total", Help: "Verifications rejected for revocation."},
	{ID: tokenguard.MetricRefreshLinkInvalid, Name: "tokenguard_refresh_link_invalid_total", Help: "Access tokens rejected because the linked refresh token is gone."},
	{ID: tokenguard.MetricDeviceMismatch, Name: "tokenguard_device_mismatch_total", Help: "Detected device fingerprint mismatches."},
	{ID: tokenguard.MetricDeviceRejected, Name: "tokenguard_device_rejected_total", Help: "Requests rejected by device binding enforcement."},
	{ID: tokenguard.MetricBlacklistFailClosed, Name: "tokenguard_blacklist_fail_closed_total", Help: "Verifications rejected because the blacklist was unreachable."},
	{ID: tokenguard.MetricTokenBlacklisted, Name: "tokenguard_token_blacklisted_total", Help: "Individual token revocations."},
	{ID: tokenguard.MetricUserRevoked, Name: "tokenguard_user_revoked_total", Help: "Full user revocation operations."},
	{ID: tokenguard.MetricDeviceRevoked, Name: "tokenguard_device_revoked_total", Help: "Device-scoped revocation operations."},
	{ID: tokenguard.MetricCleanupSuccess, Name: "tokenguard_cleanup_success_total", Help: "Successful expired-token cleanup runs."},
	{ID: tokenguard.MetricCleanupFailure, Name: "tokenguard_cleanup_failure_total", Help: "Failed expired-token cleanup runs."},
}

// HistogramDefs is an exported constant or variable used by the token lifecycle manager.
var HistogramDefs = []HistogramDef{
	{ID: tokenguard.MetricVerifyLatency, Name: "tokenguard_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the token lifecycle manager.
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

// HistogramBoundSuffix is an exported constant or variable used by the token lifecycle manager.
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
