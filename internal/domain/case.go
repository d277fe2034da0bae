package domain

import "time"

// CaseRecord stores one monitored support case for triage.
// Params: upstream case identity, classification, and optional SLA deadline.
// Returns: read-only copy for priority ordering and urgency display.
type CaseRecord struct {
	CaseID      string     `json:"case_id"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SLABreachAt *time.Time `json:"sla_breach_at,omitempty"`
}
