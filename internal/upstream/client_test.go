package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"opsconsole/internal/config"
	"opsconsole/internal/domain"
	"opsconsole/internal/permanent"
)

func testClient(serverURL string, retry config.RetryPolicy) *Client {
	return NewClient(config.UpstreamConfig{
		BaseURL:    serverURL,
		TimeoutSec: 2,
		Token:      "secret-token",
		Retry:      retry,
	}, nil)
}

func TestClientFetchAlerts(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/alerts" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			t.Fatalf("authorization=%q", r.Header.Get("Authorization"))
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Fatalf("limit=%s", got)
		}
		if got := r.URL.Query().Get("offset"); got != "0" {
			t.Fatalf("offset=%s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"id":"a1","alert_type":"case_sla","severity":"critical","title":"Case 42 crossed deadline","message":"m","link":"/cases/42","created_at":"2025-06-01T12:00:00Z","is_seen":false},
				{"id":"a2","alert_type":"report","severity":"whatever","title":"Report ready","message":"m2","created_at":"2025-06-01T11:00:00Z","is_seen":true}
			],
			"unread_count": 4
		}`))
	}))
	defer server.Close()

	page, err := testClient(server.URL, config.RetryPolicy{}).FetchAlerts(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("fetch alerts: %v", err)
	}
	if page.UnreadCount != 4 {
		t.Fatalf("unread_count=%d", page.UnreadCount)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	first := page.Items[0]
	if first.Identity != "a1" || first.Severity != domain.SeverityCritical {
		t.Fatalf("unexpected first item: %+v", first)
	}
	if first.Origin != domain.OriginSnapshot || !first.ServerAcked {
		t.Fatalf("snapshot items must be server-acked: %+v", first)
	}
	if page.Items[1].Severity != domain.SeverityInfo {
		t.Fatalf("unknown severity must demote to info: %+v", page.Items[1])
	}
}

func TestClientFetchAlertsRetriesTransient(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		failing := calls <= 2
		mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"items":[],"unread_count":0}`))
	}))
	defer server.Close()

	client := testClient(server.URL, config.RetryPolicy{
		Enabled:   true,
		Backoff:   "exponential",
		InitialMS: 1,
		MaxMS:     2,
	})
	if _, err := client.FetchAlerts(context.Background(), 10, 0); err != nil {
		t.Fatalf("expected retry success, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestClientFetchStopsOnPermanentStatus(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad token"}`))
	}))
	defer server.Close()

	client := testClient(server.URL, config.RetryPolicy{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 5,
	})
	_, err := client.FetchUnreadStats(context.Background())
	if err == nil {
		t.Fatalf("expected status error")
	}
	if !permanent.Is(err) {
		t.Fatalf("expected permanent classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "status=401") {
		t.Fatalf("unexpected error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("4xx must not retry: got %d attempts", calls)
	}
}

func TestClientFetchUnreadStats(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/alerts/stats" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"unread":{"critical":2,"high":1,"bogus":3}}`))
	}))
	defer server.Close()

	stats, err := testClient(server.URL, config.RetryPolicy{}).FetchUnreadStats(context.Background())
	if err != nil {
		t.Fatalf("fetch stats: %v", err)
	}
	if got := stats.Total(); got != 6 {
		t.Fatalf("expected total 6, got %d", got)
	}
	if stats.BySeverity[domain.SeverityInfo] != 3 {
		t.Fatalf("unknown tier must fold into info: %+v", stats.BySeverity)
	}
}

func TestClientFetchCases(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cases" {
			t.Fatalf("path=%s", r.URL.Path)
		}
		if got := r.URL.Query().Get("status"); got != "open" {
			t.Fatalf("status=%s", got)
		}
		if got := r.URL.Query().Get("sort"); got != "sla_breach_at" {
			t.Fatalf("sort=%s", got)
		}
		_, _ = w.Write([]byte(`{"items":[
			{"case_id":"c1","severity":"critical","status":"open","assigned_to":"dr.lee","created_at":"2025-06-01T10:00:00Z","sla_breach_at":"2025-06-01T14:00:00+02:00"},
			{"case_id":"c2","severity":"low","status":"open","created_at":"2025-06-01T09:00:00Z","sla_breach_at":null}
		]}`))
	}))
	defer server.Close()

	cases, err := testClient(server.URL, config.RetryPolicy{}).FetchCases(context.Background(), CaseQuery{Status: "open", Limit: 50})
	if err != nil {
		t.Fatalf("fetch cases: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].SLABreachAt == nil {
		t.Fatalf("expected deadline on c1")
	}
	if want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC); !cases[0].SLABreachAt.Equal(want) {
		t.Fatalf("expected UTC deadline %v, got %v", want, cases[0].SLABreachAt)
	}
	if cases[1].SLABreachAt != nil {
		t.Fatalf("expected nil deadline on c2, got %v", cases[1].SLABreachAt)
	}
}

func TestClientMarkAlertSeen(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		paths []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method=%s", r.Method)
		}
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := testClient(server.URL, config.RetryPolicy{}).MarkAlertSeen(context.Background(), "alert 7"); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 || paths[0] != "/api/v1/alerts/alert%207/seen" {
		t.Fatalf("unexpected requests: %v", paths)
	}
}

func TestClientMarkAlertSeenNeverAutoRetries(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		calls int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(server.URL, config.RetryPolicy{
		Enabled:     true,
		InitialMS:   1,
		MaxMS:       2,
		MaxAttempts: 5,
	})
	if err := client.MarkAlertSeen(context.Background(), "a1"); err == nil {
		t.Fatalf("expected mark-seen error")
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("mark-seen must issue exactly one request, got %d", calls)
	}
}

func TestClientMarkAlertSeenNotFoundIsPermanent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	err := testClient(server.URL, config.RetryPolicy{}).MarkAlertSeen(context.Background(), "ghost")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !permanent.Is(err) {
		t.Fatalf("expected permanent classification, got %v", err)
	}
}
