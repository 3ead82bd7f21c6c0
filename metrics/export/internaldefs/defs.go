// Package internaldefs holds the shared metric definitions used by the
// exposition exporters. Not intended for direct use.
package internaldefs

import (
	goCred "github.com/MrEthical07/goCred"
)

// CounterDef binds one engine counter to its exposition name.
type CounterDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

// HistogramDef binds one engine histogram to its exposition name.
type HistogramDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: goCred.MetricLoginSuccess, Name: "gocred_login_success_total", Help: "Successful login attempts."},
	{ID: goCred.MetricLoginFailure, Name: "gocred_login_failure_total", Help: "Failed login attempts."},
	{ID: goCred.MetricRefreshSuccess, Name: "gocred_refresh_success_total", Help: "Successful refresh operations."},
	{ID: goCred.MetricRefreshFailure, Name: "gocred_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: goCred.MetricResolveSuccess, Name: "gocred_resolve_success_total", Help: "Access tokens resolved successfully."},
	{ID: goCred.MetricResolveRevoked, Name: "gocred_resolve_revoked_total", Help: "Access tokens rejected as revoked."},
	{ID: goCred.MetricResolveInvalid, Name: "gocred_resolve_invalid_total", Help: "Access tokens rejected as invalid."},
	{ID: goCred.MetricLogout, Name: "gocred_logout_total", Help: "Logout operations on decodable tokens."},
	{ID: goCred.MetricLogoutInvalidToken, Name: "gocred_logout_invalid_token_total", Help: "Logout operations on undecodable tokens."},
	{ID: goCred.MetricRevokeAll, Name: "gocred_revoke_all_total", Help: "Bulk refresh-token revocations."},
	{ID: goCred.MetricRegisterSuccess, Name: "gocred_register_success_total", Help: "Successful account registrations."},
	{ID: goCred.MetricRegisterDuplicate, Name: "gocred_register_duplicate_total", Help: "Registrations rejected as duplicate."},
}

var HistogramDefs = []HistogramDef{
	{ID: goCred.MetricResolveLatency, Name: "gocred_resolve_latency_seconds", Help: "Resolve latency histogram."},
}

// HistogramBounds are the upper bounds of the engine's fixed latency buckets,
// in seconds, matching the core bucketing exactly.
var HistogramBounds = []string{
	"0.001",
	"0.002",
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"+Inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form the
// exposition format requires.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
