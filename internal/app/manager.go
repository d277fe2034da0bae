package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"opsconsole/internal/clock"
	"opsconsole/internal/domain"
	"opsconsole/internal/feed"
)

// SeenBackend issues the upstream seen mutation for server-acked alerts.
// Params: request context and server-side alert identity.
// Returns: nil on acknowledged mutation, classified error otherwise.
type SeenBackend interface {
	MarkAlertSeen(ctx context.Context, identity string) error
}

// Listeners carries the optional hooks the service wires into the coordinator.
// Params: feed fan-out, case invalidation, case refetch kick, and the
// per-record push hook feeding escalation.
// Returns: hooks invoked outside the state lock, nil hooks are skipped.
type Listeners struct {
	FeedChanged  func(snapshot feed.Snapshot)
	CasesChanged func()
	RefetchCases func()
	AlertPushed  func(record domain.AlertRecord)
}

// Manager owns the canonical feed, the cached server unread aggregate, the
// case snapshot, and the seen-mutation in-flight set.
// Params: feed store, upstream seen backend, clock, and logger.
// Returns: event sink for ingress and state surface for the console API.
//
// All mutation flows through Manager methods serialized by one mutex; no
// method blocks on the network while holding it.
type Manager struct {
	mu           sync.RWMutex
	store        *feed.Store
	serverUnread int
	cases        []domain.CaseRecord
	inflight     map[string]struct{}
	listeners    Listeners

	seen   SeenBackend
	logger *slog.Logger
	clock  clock.Clock
}

// NewManager creates the console state coordinator.
// Params: logger, feed store, upstream seen backend, and clock.
// Returns: initialized manager with an empty in-flight set.
func NewManager(logger *slog.Logger, store *feed.Store, seen SeenBackend, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Manager{
		store:    store,
		inflight: make(map[string]struct{}),
		seen:     seen,
		logger:   logger,
		clock:    clk,
	}
}

// SetListeners wires the service-side hooks.
// Params: listener set; replaces the previous one atomically.
// Returns: nothing.
func (m *Manager) SetListeners(listeners Listeners) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = listeners
}

// Push processes one incoming event from ingest interfaces.
// Params: push event from any transport.
// Returns: nil always; invalid events are logged and dropped.
func (m *Manager) Push(event domain.PushEvent) error {
	m.absorb(event)
	return nil
}

// PushBatch processes one batch of incoming events from ingest interfaces.
// Params: push event slice from any transport.
// Returns: nil always; the feed listener fires once per batch.
func (m *Manager) PushBatch(events []domain.PushEvent) error {
	m.absorb(events...)
	return nil
}

// absorb materializes alert-bearing events and fires the wired hooks.
// Params: validated or raw events; invalid ones are dropped here.
// Returns: nothing; case-bearing kinds kick the refetch hook once.
func (m *Manager) absorb(events ...domain.PushEvent) {
	now := m.clock.Now()

	pushed := make([]domain.AlertRecord, 0, len(events))
	refetch := false
	for _, event := range events {
		if err := event.Validate(); err != nil {
			m.logger.Warn("push event dropped", "event", string(event.Kind), "error", err.Error())
			continue
		}
		if event.CarriesAlert() {
			// Pushed alerts have no server identity yet; a surrogate keeps
			// them dedupable until a snapshot supersedes the view.
			pushed = append(pushed, event.Record(uuid.NewString(), now))
		}
		if event.TouchesCases() {
			refetch = true
		}
	}

	var snapshot feed.Snapshot
	var listeners Listeners
	if len(pushed) > 0 {
		m.mu.Lock()
		for _, record := range pushed {
			m.store.ApplyPush(record)
		}
		snapshot = m.feedSnapshotLocked()
		listeners = m.listeners
		m.mu.Unlock()
	} else {
		m.mu.RLock()
		listeners = m.listeners
		m.mu.RUnlock()
	}

	if len(pushed) > 0 && listeners.FeedChanged != nil {
		listeners.FeedChanged(snapshot)
	}
	if listeners.AlertPushed != nil {
		for _, record := range pushed {
			listeners.AlertPushed(record)
		}
	}
	if refetch && listeners.RefetchCases != nil {
		listeners.RefetchCases()
	}
}

// MarkSeen flips one alert to seen with at most one upstream mutation.
// Params: request context and dedup identity.
// Returns: feed.ErrUnknownAlert for an unknown identity, the upstream error
// when the mutation fails (state unchanged, caller retries), nil otherwise.
func (m *Manager) MarkSeen(ctx context.Context, identity string) error {
	m.mu.Lock()
	record, ok := m.store.Get(identity)
	if !ok {
		m.mu.Unlock()
		return feed.ErrUnknownAlert
	}
	if record.IsSeen {
		m.mu.Unlock()
		return nil
	}
	if !record.ServerAcked {
		// Surrogate identities are unknown upstream; the flip is local-only.
		_, _ = m.store.MarkSeen(identity)
		snapshot := m.feedSnapshotLocked()
		listeners := m.listeners
		m.mu.Unlock()
		m.notifyFeed(listeners, snapshot)
		return nil
	}
	if _, exists := m.inflight[identity]; exists {
		// A duplicate trigger while the mutation runs is absorbed silently.
		m.mu.Unlock()
		return nil
	}
	m.inflight[identity] = struct{}{}
	m.mu.Unlock()

	err := m.seen.MarkAlertSeen(ctx, identity)

	m.mu.Lock()
	delete(m.inflight, identity)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, markErr := m.store.MarkSeen(identity); markErr != nil {
		// The record left the bounded feed while the mutation ran; the
		// server still advanced, so the aggregate adjustment stands.
		m.logger.Warn("seen alert left the feed during mutation", "identity", identity)
	}
	if m.serverUnread > 0 {
		m.serverUnread--
	}
	snapshot := m.feedSnapshotLocked()
	listeners := m.listeners
	m.mu.Unlock()
	m.notifyFeed(listeners, snapshot)
	return nil
}

// ApplyAlertSnapshot merges one fetched alerts page into the feed.
// Params: fetched records and the server unread aggregate from the page.
// Returns: nothing; current records stay primary so locally flipped seen
// flags survive stale snapshot copies.
func (m *Manager) ApplyAlertSnapshot(records []domain.AlertRecord, serverUnread int) {
	if serverUnread < 0 {
		serverUnread = 0
	}
	m.mu.Lock()
	m.store.ApplySnapshot(records)
	m.serverUnread = serverUnread
	snapshot := m.feedSnapshotLocked()
	listeners := m.listeners
	m.mu.Unlock()
	m.notifyFeed(listeners, snapshot)
}

// ApplyUnreadStats refreshes the cached server unread aggregate.
// Params: per-tier counters fetched from upstream.
// Returns: nothing; the reconciled badge count changes with the snapshot.
func (m *Manager) ApplyUnreadStats(stats domain.UnreadStats) {
	m.mu.Lock()
	m.serverUnread = stats.Total()
	snapshot := m.feedSnapshotLocked()
	listeners := m.listeners
	m.mu.Unlock()
	m.notifyFeed(listeners, snapshot)
}

// ApplyCases replaces the case snapshot backing the triage queue.
// Params: fetched case records.
// Returns: nothing; the snapshot is copied, never aliased.
func (m *Manager) ApplyCases(cases []domain.CaseRecord) {
	replacement := make([]domain.CaseRecord, len(cases))
	copy(replacement, cases)

	m.mu.Lock()
	m.cases = replacement
	listeners := m.listeners
	m.mu.Unlock()
	if listeners.CasesChanged != nil {
		listeners.CasesChanged()
	}
}

// FeedSnapshot builds the immutable feed view for rendering and live push.
// Params: none.
// Returns: record copies, reconciled unread count, and build time.
func (m *Manager) FeedSnapshot() feed.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feedSnapshotLocked()
}

// Cases copies the current case snapshot for the triage queue builder.
// Params: none.
// Returns: copied slice in fetch order; mutating it does not touch manager state.
func (m *Manager) Cases() []domain.CaseRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.CaseRecord, len(m.cases))
	copy(out, m.cases)
	return out
}

// feedSnapshotLocked builds the snapshot. Caller holds at least a read lock.
func (m *Manager) feedSnapshotLocked() feed.Snapshot {
	records := m.store.Records()
	return feed.Snapshot{
		Alerts:      records,
		Unread:      feed.ReconcileUnread(m.serverUnread, records),
		GeneratedAt: m.clock.Now(),
	}
}

func (m *Manager) notifyFeed(listeners Listeners, snapshot feed.Snapshot) {
	if listeners.FeedChanged != nil {
		listeners.FeedChanged(snapshot)
	}
}
