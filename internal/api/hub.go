package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"opsconsole/internal/feed"
)

const (
	liveKindFeed         = "feed"
	liveKindCasesUpdated = "cases_updated"

	// liveWriteWait bounds one frame write so a stalled peer cannot hold
	// the hub lock indefinitely.
	liveWriteWait = 10 * time.Second
)

// liveMessage is one frame pushed to live-feed subscribers.
// Params: kind discriminator and the snapshot for feed frames.
// Returns: cases_updated frames carry no payload, clients refetch triage.
type liveMessage struct {
	Kind string         `json:"kind"`
	Feed *feed.Snapshot `json:"feed,omitempty"`
}

// Hub fans feed snapshots out to live WebSocket subscribers.
// Params: connection cap and logger.
// Returns: subscriber set guarded by one mutex; dead peers are dropped
// on the first failed write.
type Hub struct {
	upgrader websocket.Upgrader
	maxConns int
	logger   *slog.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewHub creates an empty subscriber hub.
// Params: connection cap (0 disables the cap) and logger.
// Returns: hub ready for Join and broadcasts.
func NewHub(maxConns int, logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The console API carries no auth; origin checks belong to the
			// deployment proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		maxConns: maxConns,
		conns:    make(map[*websocket.Conn]struct{}),
		logger:   logger,
	}
}

// Join upgrades one subscriber and delivers the join-time snapshot.
// Params: response writer, request, and the snapshot sent as first frame.
// Returns: error when the cap is hit, the hub is closed, or the upgrade fails.
func (h *Hub) Join(writer http.ResponseWriter, request *http.Request, snapshot feed.Snapshot) error {
	h.mu.Lock()
	if err := h.admitLocked(); err != nil {
		h.mu.Unlock()
		writer.WriteHeader(http.StatusServiceUnavailable)
		return err
	}
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade writes its own handshake error response.
		return fmt.Errorf("upgrade live subscriber: %w", err)
	}

	payload, err := json.Marshal(liveMessage{Kind: liveKindFeed, Feed: &snapshot})
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("encode join snapshot: %w", err)
	}

	// Welcome write and registration share one critical section so a
	// concurrent broadcast can never land before the join-time snapshot.
	h.mu.Lock()
	if err := h.admitLocked(); err != nil {
		h.mu.Unlock()
		_ = conn.Close()
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("send join snapshot: %w", err)
	}
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Info("live subscriber joined", "remote", request.RemoteAddr, "total", total)
	go h.discard(conn)
	return nil
}

// admitLocked checks closed state and the connection cap. Caller holds mu.
func (h *Hub) admitLocked() error {
	if h.closed {
		return fmt.Errorf("live hub closed")
	}
	if h.maxConns > 0 && len(h.conns) >= h.maxConns {
		return fmt.Errorf("live subscriber cap %d reached", h.maxConns)
	}
	return nil
}

// BroadcastFeed pushes one feed snapshot to every subscriber.
// Params: snapshot built by the coordinator after a state change.
// Returns: nothing; failed peers are dropped.
func (h *Hub) BroadcastFeed(snapshot feed.Snapshot) {
	h.broadcast(liveMessage{Kind: liveKindFeed, Feed: &snapshot})
}

// BroadcastCasesUpdated pushes the case-invalidation marker to every subscriber.
// Params: none.
// Returns: nothing; clients refetch the triage queue on receipt.
func (h *Hub) BroadcastCasesUpdated() {
	h.broadcast(liveMessage{Kind: liveKindCasesUpdated})
}

func (h *Hub) broadcast(message liveMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("encode live message failed", "kind", message.Kind, "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			delete(h.conns, conn)
			_ = conn.Close()
		}
	}
}

// Subscribers reports the current live connection count.
// Params: none.
// Returns: number of registered subscriber connections.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every subscriber and rejects further joins.
// Params: none.
// Returns: nothing; called once during service shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn := range h.conns {
		_ = conn.Close()
		delete(h.conns, conn)
	}
}

// discard drains subscriber reads until the peer disconnects.
// Params: registered connection.
// Returns: nothing; the connection is dropped on the first read error.
func (h *Hub) discard(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.drop(conn)
			return
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}
