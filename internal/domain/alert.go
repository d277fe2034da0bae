package domain

import "time"

// Origin tells which path produced a feed record.
// Params: snapshot/pushed origin constants.
// Returns: informational provenance marker, never part of identity.
type Origin string

const (
	// OriginSnapshot marks records loaded from an upstream feed snapshot.
	OriginSnapshot Origin = "snapshot"
	// OriginPushed marks records materialized from live push events.
	OriginPushed Origin = "pushed"
)

// AlertRecord stores one operational alert as held in the feed.
// Params: dedup identity, classification, display fields, seen/ack state.
// Returns: record for merge, unread reconciliation, and console rendering.
type AlertRecord struct {
	Identity    string    `json:"identity"`
	AlertType   string    `json:"alert_type"`
	Severity    Severity  `json:"severity"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Link        string    `json:"link,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	IsSeen      bool      `json:"is_seen"`
	Origin      Origin    `json:"origin"`
	ServerAcked bool      `json:"server_acked"`
}

// UnreadStats stores server-side aggregate unread counters.
// Params: per-tier counters as reported by the upstream alert service.
// Returns: aggregate input for unread reconciliation.
type UnreadStats struct {
	BySeverity map[Severity]int `json:"by_severity"`
}

// Total sums per-tier counters into one server unread aggregate.
// Params: none beyond the receiver.
// Returns: non-negative total across all tiers.
func (s UnreadStats) Total() int {
	total := 0
	for _, count := range s.BySeverity {
		if count > 0 {
			total += count
		}
	}
	return total
}
