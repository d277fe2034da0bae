package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"opsconsole/internal/clock"
	"opsconsole/internal/config"
	"opsconsole/internal/domain"
	"opsconsole/internal/feed"
	"opsconsole/internal/triage"
)

// Console is the coordinator surface the handlers read and mutate.
// Params: feed snapshot, case snapshot, and the seen mutation.
// Returns: state access without exposing the coordinator itself.
type Console interface {
	FeedSnapshot() feed.Snapshot
	Cases() []domain.CaseRecord
	MarkSeen(ctx context.Context, identity string) error
}

// Refresher forces an immediate upstream snapshot and stats refetch.
// Params: request context bounding the fetches.
// Returns: first fetch error, nil when both loads applied.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Handler serves the console REST and live-feed endpoints.
// Params: API config, console state surface, refresher, readiness probe.
// Returns: HTTP handlers registered through Register.
type Handler struct {
	cfg     config.APIConfig
	console Console
	refresh Refresher
	ready   func() bool
	clk     clock.Clock
	hub     *Hub
	logger  *slog.Logger
}

// NewHandler creates the console API handler set.
// Params: API config, console, refresher, readiness probe, clock, hub, logger.
// Returns: handler ready for Register.
func NewHandler(cfg config.APIConfig, console Console, refresher Refresher, ready func() bool, clk clock.Clock, hub *Hub, logger *slog.Logger) *Handler {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{
		cfg:     cfg,
		console: console,
		refresh: refresher,
		ready:   ready,
		clk:     clk,
		hub:     hub,
		logger:  logger,
	}
}

// Register mounts all console routes on the mux.
// Params: target request multiplexer.
// Returns: nothing; health and readiness paths come from config.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(h.cfg.HealthPath, h.handleHealth)
	mux.HandleFunc(h.cfg.ReadyPath, h.handleReady)
	mux.HandleFunc("GET /api/feed", h.handleFeed)
	mux.HandleFunc("POST /api/feed/refresh", h.handleRefresh)
	mux.HandleFunc("GET /api/feed/live", h.handleFeedLive)
	mux.HandleFunc("POST /api/alerts/{id}/seen", h.handleMarkSeen)
	mux.HandleFunc("GET /api/triage", h.handleTriage)
}

func (h *Handler) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ok"))
}

func (h *Handler) handleReady(writer http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		writer.WriteHeader(http.StatusServiceUnavailable)
		_, _ = writer.Write([]byte("not-ready"))
		return
	}
	writer.WriteHeader(http.StatusOK)
	_, _ = writer.Write([]byte("ready"))
}

// handleFeed serves the current reconciled feed snapshot.
// Params: HTTP request/response writer pair.
// Returns: writes the alerts/unread/generated_at payload.
func (h *Handler) handleFeed(writer http.ResponseWriter, _ *http.Request) {
	h.writeJSON(writer, http.StatusOK, h.console.FeedSnapshot())
}

// handleRefresh forces a snapshot and stats refetch for a user refresh click.
// Params: HTTP request/response writer pair.
// Returns: 204 on success, 502 when the upstream fetch fails.
func (h *Handler) handleRefresh(writer http.ResponseWriter, request *http.Request) {
	if err := h.refresh.Refresh(request.Context()); err != nil {
		h.logger.Error("feed refresh failed", "error", err.Error())
		writer.WriteHeader(http.StatusBadGateway)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// handleMarkSeen marks one alert as seen on behalf of the operator.
// Params: HTTP request with the alert identity path segment.
// Returns: 204 applied, 409 unknown identity, 502 upstream failure.
func (h *Handler) handleMarkSeen(writer http.ResponseWriter, request *http.Request) {
	identity := request.PathValue("id")
	err := h.console.MarkSeen(request.Context(), identity)
	switch {
	case err == nil:
		writer.WriteHeader(http.StatusNoContent)
	case errors.Is(err, feed.ErrUnknownAlert):
		writer.WriteHeader(http.StatusConflict)
	default:
		h.logger.Error("mark seen failed", "identity", identity, "error", err.Error())
		writer.WriteHeader(http.StatusBadGateway)
	}
}

// triagePayload is the priority-queue response body.
type triagePayload struct {
	Cases       []triage.Entry `json:"cases"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// handleTriage builds the priority queue for the current case snapshot.
// Params: HTTP request with optional q and severity query filters.
// Returns: entries ordered by SLA deadline, urgency derived at request time.
func (h *Handler) handleTriage(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	filters := triage.Filters{
		Query:    query.Get("q"),
		Severity: query.Get("severity"),
	}
	now := h.clk.Now()
	h.writeJSON(writer, http.StatusOK, triagePayload{
		Cases:       triage.Build(h.console.Cases(), filters, now),
		GeneratedAt: now,
	})
}

// handleFeedLive upgrades one live-feed subscriber connection.
// Params: HTTP request/response writer pair.
// Returns: connection joins the hub with the current snapshot as first frame.
func (h *Handler) handleFeedLive(writer http.ResponseWriter, request *http.Request) {
	if err := h.hub.Join(writer, request, h.console.FeedSnapshot()); err != nil {
		h.logger.Warn("live subscriber rejected", "remote", request.RemoteAddr, "error", err.Error())
	}
}

func (h *Handler) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		h.logger.Error("encode response failed", "error", err.Error())
	}
}
