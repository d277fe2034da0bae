package domain

import "testing"

func TestUnreadStatsTotal(t *testing.T) {
	t.Parallel()

	stats := UnreadStats{BySeverity: map[Severity]int{
		SeverityCritical: 2,
		SeverityHigh:     1,
		SeverityInfo:     3,
		SeverityLow:      -1,
	}}
	if got := stats.Total(); got != 6 {
		t.Fatalf("expected total 6, got %d", got)
	}
	if got := (UnreadStats{}).Total(); got != 0 {
		t.Fatalf("expected empty total 0, got %d", got)
	}
}
