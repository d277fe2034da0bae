package feed

import (
	"testing"

	"opsconsole/internal/domain"
)

func TestReconcileUnreadTakesMaximum(t *testing.T) {
	t.Parallel()

	list := []domain.AlertRecord{record("a", 10, false), record("b", 9, false), record("c", 8, true)}

	if got := ReconcileUnread(1, list); got != 2 {
		t.Fatalf("local count must win: expected 2, got %d", got)
	}
	if got := ReconcileUnread(5, list); got != 5 {
		t.Fatalf("server count must win: expected 5, got %d", got)
	}
	if got := ReconcileUnread(2, list); got != 2 {
		t.Fatalf("equal estimates: expected 2, got %d", got)
	}
}

func TestReconcileUnreadNeverBelowEitherEstimate(t *testing.T) {
	t.Parallel()

	list := []domain.AlertRecord{record("a", 10, false), record("b", 9, true)}
	for server := -2; server <= 4; server++ {
		got := ReconcileUnread(server, list)
		if got < CountUnseen(list) {
			t.Fatalf("server=%d: result %d below local %d", server, got, CountUnseen(list))
		}
		if server > 0 && got < server {
			t.Fatalf("server=%d: result %d below server estimate", server, got)
		}
	}
}

func TestReconcileUnreadClampsNegativeServerCount(t *testing.T) {
	t.Parallel()

	if got := ReconcileUnread(-3, nil); got != 0 {
		t.Fatalf("expected 0 for negative server count and empty list, got %d", got)
	}
}
