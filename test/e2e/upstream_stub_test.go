package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// stubAlert mirrors one alert item served by the fake case/alert service.
type stubAlert struct {
	ID        string    `json:"id"`
	AlertType string    `json:"alert_type"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	IsSeen    bool      `json:"is_seen"`
}

// stubCase mirrors one case item served by the fake case/alert service.
type stubCase struct {
	CaseID      string     `json:"case_id"`
	Severity    string     `json:"severity"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SLABreachAt *time.Time `json:"sla_breach_at,omitempty"`
}

// upstreamStub fakes the case/alert service REST API for e2e scenarios.
// Params: mutable alert/case state guarded by one mutex.
// Returns: httptest-backed upstream with recorded seen mutations.
type upstreamStub struct {
	mu          sync.Mutex
	alerts      []stubAlert
	unreadCount int
	unreadTiers map[string]int
	cases       []stubCase
	seenCalls   []string
	seenStatus  int
	server      *httptest.Server
}

// newUpstreamStub starts the fake upstream service.
// Params: test handle for cleanup.
// Returns: stub with empty state and 204 seen responses.
func newUpstreamStub(t *testing.T) *upstreamStub {
	t.Helper()

	stub := &upstreamStub{
		unreadTiers: map[string]int{},
		seenStatus:  http.StatusNoContent,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/alerts", stub.handleAlerts)
	mux.HandleFunc("GET /api/v1/alerts/stats", stub.handleStats)
	mux.HandleFunc("GET /api/v1/cases", stub.handleCases)
	mux.HandleFunc("POST /api/v1/alerts/{id}/seen", stub.handleSeen)
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *upstreamStub) URL() string {
	return s.server.URL
}

func (s *upstreamStub) setAlerts(unreadCount int, alerts ...stubAlert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append([]stubAlert(nil), alerts...)
	s.unreadCount = unreadCount
}

func (s *upstreamStub) setCases(cases ...stubCase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append([]stubCase(nil), cases...)
}

func (s *upstreamStub) seenIdentities() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.seenCalls...)
}

func (s *upstreamStub) handleAlerts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	payload := struct {
		Items       []stubAlert `json:"items"`
		UnreadCount int         `json:"unread_count"`
	}{
		Items:       append([]stubAlert(nil), s.alerts...),
		UnreadCount: s.unreadCount,
	}
	s.mu.Unlock()
	writeStubJSON(w, payload)
}

func (s *upstreamStub) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	tiers := make(map[string]int, len(s.unreadTiers))
	for tier, count := range s.unreadTiers {
		tiers[tier] = count
	}
	s.mu.Unlock()
	writeStubJSON(w, struct {
		Unread map[string]int `json:"unread"`
	}{Unread: tiers})
}

func (s *upstreamStub) handleCases(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	payload := struct {
		Items []stubCase `json:"items"`
	}{Items: append([]stubCase(nil), s.cases...)}
	s.mu.Unlock()
	writeStubJSON(w, payload)
}

// handleSeen records the mutation and mirrors it into stub state on success.
func (s *upstreamStub) handleSeen(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("id")

	s.mu.Lock()
	s.seenCalls = append(s.seenCalls, identity)
	status := s.seenStatus
	if status >= 200 && status < 300 {
		for i := range s.alerts {
			if s.alerts[i].ID == identity && !s.alerts[i].IsSeen {
				s.alerts[i].IsSeen = true
				if s.unreadCount > 0 {
					s.unreadCount--
				}
			}
		}
	}
	s.mu.Unlock()

	w.WriteHeader(status)
}

func writeStubJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
