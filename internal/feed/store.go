package feed

import (
	"errors"
	"time"

	"opsconsole/internal/domain"
)

// ErrUnknownAlert reports a mutation against an identity absent from the feed.
var ErrUnknownAlert = errors.New("alert not in feed")

// Store owns the canonical bounded feed list.
// Params: record bound and the list itself.
// Returns: single-owner state mutated only through its methods.
//
// The store is not synchronized. The owning coordinator serializes access;
// nothing else holds a reference.
type Store struct {
	limit   int
	records []domain.AlertRecord
}

// NewStore creates an empty feed store.
// Params: record bound (DefaultLimit when <=0).
// Returns: initialized store.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{limit: limit}
}

// Limit returns the configured record bound.
// Params: none.
// Returns: positive bound.
func (s *Store) Limit() int {
	return s.limit
}

// ApplyPush merges one pushed record against the current list.
// Params: record materialized from a push event.
// Returns: nothing; the record is primary so it survives dedup.
func (s *Store) ApplyPush(record domain.AlertRecord) {
	s.records = Merge([]domain.AlertRecord{record}, s.records, s.limit)
}

// ApplySnapshot merges one fetched snapshot behind the current list.
// Params: records from an upstream feed fetch.
// Returns: nothing; current records stay primary so locally flipped
// seen flags survive stale snapshot copies.
func (s *Store) ApplySnapshot(records []domain.AlertRecord) {
	s.records = Merge(s.records, records, s.limit)
}

// MarkSeen flips one record's seen flag.
// Params: dedup identity.
// Returns: updated record, or ErrUnknownAlert when absent.
func (s *Store) MarkSeen(identity string) (domain.AlertRecord, error) {
	for i := range s.records {
		if s.records[i].Identity == identity {
			s.records[i].IsSeen = true
			return s.records[i], nil
		}
	}
	return domain.AlertRecord{}, ErrUnknownAlert
}

// Get looks one record up by identity.
// Params: dedup identity.
// Returns: record copy and presence flag.
func (s *Store) Get(identity string) (domain.AlertRecord, bool) {
	for i := range s.records {
		if s.records[i].Identity == identity {
			return s.records[i], true
		}
	}
	return domain.AlertRecord{}, false
}

// Reset drops every record while keeping the bound.
// Params: none.
// Returns: nothing; the store is reusable afterward.
func (s *Store) Reset() {
	s.records = nil
}

// Records copies the canonical list for callers outside the coordinator.
// Params: none.
// Returns: copied slice in display order; mutating it does not touch the store.
func (s *Store) Records() []domain.AlertRecord {
	out := make([]domain.AlertRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Unseen counts records still unseen in the canonical list.
// Params: none.
// Returns: local unseen count.
func (s *Store) Unseen() int {
	return CountUnseen(s.records)
}

// Snapshot is one immutable feed view for rendering and live push.
// Params: display-ordered records, reconciled unread count, and build time.
// Returns: value payload safe to hand across goroutines.
type Snapshot struct {
	Alerts      []domain.AlertRecord `json:"alerts"`
	Unread      int                  `json:"unread"`
	GeneratedAt time.Time            `json:"generated_at"`
}
