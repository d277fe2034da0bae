package feed

import (
	"sort"

	"opsconsole/internal/domain"
)

// DefaultLimit bounds the visible feed when config does not override it.
const DefaultLimit = 10

// Merge combines two feed lists into one canonical bounded view.
// Params: primary list, secondary list, and record bound (0 disables it).
// Returns: deduplicated list sorted by created_at descending, truncated to limit.
func Merge(primary, secondary []domain.AlertRecord, limit int) []domain.AlertRecord {
	merged := make([]domain.AlertRecord, 0, len(primary)+len(secondary))
	position := make(map[string]int, len(primary)+len(secondary))

	absorb := func(records []domain.AlertRecord) {
		for _, record := range records {
			if index, ok := position[record.Identity]; ok {
				// First occurrence supplies the record; a seen flag on any
				// duplicate still sticks, so a stale copy never un-sees an alert.
				if record.IsSeen {
					merged[index].IsSeen = true
				}
				continue
			}
			position[record.Identity] = len(merged)
			merged = append(merged, record)
		}
	}
	absorb(primary)
	absorb(secondary)

	// Stable keeps first-occurrence order for records with equal timestamps.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit:limit]
	}
	return merged
}
