package triage

import (
	"sort"
	"strings"
	"time"

	"opsconsole/internal/domain"
	"opsconsole/internal/sla"
)

// Filters narrows the case list before ordering.
// Params: free-text query and severity selector, both optional.
// Returns: declarative filter input for Build.
type Filters struct {
	Query    string `json:"query,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Entry pairs one case with its urgency derived at build time.
// Params: case copy and classification against the build timestamp.
// Returns: render-ready queue element.
type Entry struct {
	Case    domain.CaseRecord `json:"case"`
	Urgency sla.Urgency       `json:"urgency"`
}

// Build filters and orders cases into the priority queue.
// Params: case snapshot, filters, and current time for urgency derivation.
// Returns: entries by deadline ascending; cases without a deadline sort last
// and keep their relative input order.
func Build(cases []domain.CaseRecord, filters Filters, now time.Time) []Entry {
	entries := make([]Entry, 0, len(cases))
	for _, record := range cases {
		if !matches(record, filters) {
			continue
		}
		entries = append(entries, Entry{
			Case:    record,
			Urgency: sla.ClassifyDeadline(record.SLABreachAt, now),
		})
	}

	// Ordering is strictly by deadline. Urgent entries get their accent from
	// the urgency field, never an ordering boost over earlier deadlines.
	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i].Case.SLABreachAt, entries[j].Case.SLABreachAt
		switch {
		case left == nil:
			return false
		case right == nil:
			return true
		default:
			return left.Before(*right)
		}
	})
	return entries
}

func matches(record domain.CaseRecord, filters Filters) bool {
	if severity := strings.TrimSpace(filters.Severity); severity != "" && !strings.EqualFold(record.Severity, severity) {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(filters.Query))
	if query == "" {
		return true
	}
	for _, field := range []string{record.CaseID, record.Status, record.AssignedTo} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}
