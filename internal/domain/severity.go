package domain

// Severity is the canonical alert severity tier.
// Params: critical/high/medium/low/info tier constants.
// Returns: normalized tier usage across feed, stats, and escalation.
type Severity string

const (
	// SeverityCritical marks incidents that need immediate response.
	SeverityCritical Severity = "critical"
	// SeverityHigh marks urgent incidents below the critical bar.
	SeverityHigh Severity = "high"
	// SeverityMedium marks standard operational alerts.
	SeverityMedium Severity = "medium"
	// SeverityLow marks minor operational alerts.
	SeverityLow Severity = "low"
	// SeverityInfo marks informational notices and every unknown input.
	SeverityInfo Severity = "info"
)

// NormalizeSeverity maps one inbound severity label onto the canonical tiers.
// Params: raw label exactly as received from transport.
// Returns: matching tier, or SeverityInfo when the label is not a known tier.
func NormalizeSeverity(raw string) Severity {
	// Matching is exact and case-sensitive: producers own their casing,
	// anything else demotes to info instead of failing.
	switch severity := Severity(raw); severity {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return severity
	default:
		return SeverityInfo
	}
}
