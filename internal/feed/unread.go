package feed

import "opsconsole/internal/domain"

// CountUnseen counts records still waiting for operator attention.
// Params: feed list in any order.
// Returns: number of records with is_seen=false.
func CountUnseen(records []domain.AlertRecord) int {
	count := 0
	for _, record := range records {
		if !record.IsSeen {
			count++
		}
	}
	return count
}

// ReconcileUnread combines the server aggregate with the local view.
// Params: server-reported unread count and current feed list.
// Returns: max of both estimates, never below zero.
func ReconcileUnread(serverUnread int, records []domain.AlertRecord) int {
	// Both inputs lag in opposite directions: the server may not have the
	// just-pushed alert yet, the local list may miss alerts not merged yet.
	// Over-counting is the safe failure mode for a safety feed.
	if serverUnread < 0 {
		serverUnread = 0
	}
	if local := CountUnseen(records); local > serverUnread {
		return local
	}
	return serverUnread
}
