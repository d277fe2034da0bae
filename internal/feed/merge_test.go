package feed

import (
	"reflect"
	"testing"
	"time"

	"opsconsole/internal/domain"
)

var mergeBase = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func record(identity string, offsetSec int, seen bool) domain.AlertRecord {
	return domain.AlertRecord{
		Identity:    identity,
		AlertType:   "case_sla",
		Severity:    domain.SeverityHigh,
		Title:       "alert " + identity,
		CreatedAt:   mergeBase.Add(time.Duration(offsetSec) * time.Second),
		IsSeen:      seen,
		Origin:      domain.OriginSnapshot,
		ServerAcked: true,
	}
}

func identities(records []domain.AlertRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Identity)
	}
	return out
}

func TestMergePushedRecordSortsByTimestamp(t *testing.T) {
	t.Parallel()

	primary := []domain.AlertRecord{record("c", 12, false)}
	secondary := []domain.AlertRecord{record("a", 10, false), record("b", 5, false)}

	got := identities(Merge(primary, secondary, DefaultLimit))
	want := []string{"c", "a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestMergeKeepsFirstOccurrence(t *testing.T) {
	t.Parallel()

	primary := []domain.AlertRecord{record("a", 10, false)}
	stale := record("a", 10, false)
	stale.Title = "stale copy"

	merged := Merge(primary, []domain.AlertRecord{stale}, DefaultLimit)
	if len(merged) != 1 {
		t.Fatalf("expected 1 record, got %d", len(merged))
	}
	if merged[0].Title != "alert a" {
		t.Fatalf("expected primary copy to win, got %q", merged[0].Title)
	}
}

func TestMergeSeenFlagSticksRegardlessOfArgumentOrder(t *testing.T) {
	t.Parallel()

	seen := []domain.AlertRecord{record("a", 10, true)}
	unseen := []domain.AlertRecord{record("a", 10, false)}

	if got := Merge(seen, unseen, DefaultLimit); !got[0].IsSeen {
		t.Fatalf("seen primary lost its flag: %+v", got[0])
	}
	if got := Merge(unseen, seen, DefaultLimit); !got[0].IsSeen {
		t.Fatalf("seen secondary must still mark the survivor: %+v", got[0])
	}
}

func TestMergeNoDuplicateIdentities(t *testing.T) {
	t.Parallel()

	primary := []domain.AlertRecord{record("a", 10, false), record("b", 9, false), record("a", 8, false)}
	secondary := []domain.AlertRecord{record("b", 7, false), record("c", 6, false)}

	merged := Merge(primary, secondary, DefaultLimit)
	seen := make(map[string]bool, len(merged))
	for _, r := range merged {
		if seen[r.Identity] {
			t.Fatalf("duplicate identity %q in %v", r.Identity, identities(merged))
		}
		seen[r.Identity] = true
	}
	if len(merged) != 3 {
		t.Fatalf("expected 3 records, got %d", len(merged))
	}
}

func TestMergeBoundedAndSorted(t *testing.T) {
	t.Parallel()

	var primary, secondary []domain.AlertRecord
	for i := 0; i < 9; i++ {
		primary = append(primary, record("p"+string(rune('0'+i)), i*3, false))
		secondary = append(secondary, record("s"+string(rune('0'+i)), i*3+1, false))
	}

	merged := Merge(primary, secondary, DefaultLimit)
	if len(merged) != DefaultLimit {
		t.Fatalf("expected %d records, got %d", DefaultLimit, len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].CreatedAt.After(merged[i-1].CreatedAt) {
			t.Fatalf("order violated at %d: %v after %v", i, merged[i].CreatedAt, merged[i-1].CreatedAt)
		}
	}
}

func TestMergeIdempotent(t *testing.T) {
	t.Parallel()

	primary := []domain.AlertRecord{record("a", 10, true), record("b", 8, false)}
	secondary := []domain.AlertRecord{record("c", 12, false), record("a", 10, false)}

	once := Merge(primary, secondary, DefaultLimit)
	twice := Merge(once, nil, DefaultLimit)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("expected idempotent merge, got %v then %v", once, twice)
	}
}

func TestMergeEqualTimestampsKeepFirstOccurrenceOrder(t *testing.T) {
	t.Parallel()

	primary := []domain.AlertRecord{record("a", 10, false), record("b", 10, false)}
	secondary := []domain.AlertRecord{record("c", 10, false)}

	got := identities(Merge(primary, secondary, DefaultLimit))
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected stable order %v, got %v", want, got)
	}
}

func TestMergeZeroLimitKeepsEverything(t *testing.T) {
	t.Parallel()

	var primary []domain.AlertRecord
	for i := 0; i < 25; i++ {
		primary = append(primary, record("p"+string(rune('a'+i)), i, false))
	}
	if got := len(Merge(primary, nil, 0)); got != 25 {
		t.Fatalf("expected unbounded merge to keep 25, got %d", got)
	}
}
