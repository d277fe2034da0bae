package sla

import (
	"fmt"
	"time"
)

// Tier is the derived urgency class for one SLA deadline.
// Params: critical/high/normal/none class constants.
// Returns: display accent selector for feed and triage views.
type Tier string

const (
	// TierCritical marks breached or sub-hour deadlines.
	TierCritical Tier = "critical"
	// TierHigh marks deadlines between one and two hours out.
	TierHigh Tier = "high"
	// TierNormal marks deadlines two or more hours out.
	TierNormal Tier = "normal"
	// TierNone marks cases without a deadline.
	TierNone Tier = "none"
)

// BreachedLabel is the display label for deadlines already crossed.
const BreachedLabel = "BREACHED"

// Urgency is the derived display classification for one deadline.
// Params: countdown label, tier, and urgent highlight flag.
// Returns: value recomputed on every tick, never cached as stored state.
type Urgency struct {
	Label  string `json:"label"`
	Tier   Tier   `json:"tier"`
	Urgent bool   `json:"urgent"`
}

// Classify derives urgency from one deadline and the current time.
// Params: absolute deadline and current time.
// Returns: label/tier/urgent triple keyed on remaining hours.
func Classify(deadline, now time.Time) Urgency {
	remaining := deadline.Sub(now)
	switch hours := remaining.Hours(); {
	case hours < 0:
		return Urgency{Label: BreachedLabel, Tier: TierCritical, Urgent: true}
	case hours < 1:
		return Urgency{Label: fmt.Sprintf("%dm", int(remaining.Minutes())), Tier: TierCritical, Urgent: true}
	case hours < 2:
		return Urgency{Label: fmt.Sprintf("%.1fh", hours), Tier: TierHigh, Urgent: true}
	default:
		return Urgency{Label: fmt.Sprintf("%.1fh", hours), Tier: TierNormal, Urgent: false}
	}
}

// ClassifyDeadline derives urgency for an optional deadline.
// Params: nullable deadline and current time.
// Returns: TierNone urgency when the deadline is absent.
func ClassifyDeadline(deadline *time.Time, now time.Time) Urgency {
	if deadline == nil {
		return Urgency{Tier: TierNone}
	}
	return Classify(*deadline, now)
}
