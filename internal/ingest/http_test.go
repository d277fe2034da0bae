package ingest

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"opsconsole/internal/domain"
)

type httpTestSink struct {
	mu         sync.Mutex
	pushCalls  int
	batchCalls int
	events     []domain.PushEvent
	err        error
}

func (s *httpTestSink) Push(event domain.PushEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushCalls++
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *httpTestSink) PushBatch(events []domain.PushEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *httpTestSink) snapshot() (int, int, []domain.PushEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushCalls, s.batchCalls, append([]domain.PushEvent(nil), s.events...)
}

func TestHTTPHandlerAcceptsSingleEvent(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{}
	handler := NewHTTPHandler(sink, 1<<20)
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(testEventJSON("Crisis flag raised")))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, response.Code)
	}
	pushCalls, batchCalls, events := sink.snapshot()
	if pushCalls != 1 || batchCalls != 0 {
		t.Fatalf("unexpected sink calls push=%d batch=%d", pushCalls, batchCalls)
	}
	if len(events) != 1 || events[0].Title != "Crisis flag raised" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestHTTPHandlerAcceptsBatchEvents(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{}
	handler := NewHTTPHandler(sink, 1<<20)
	payload := fmt.Sprintf("[%s,%s]", testEventJSON("first"), testEventJSON("second"))
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(payload))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusAccepted {
		t.Fatalf("expected status %d, got %d", http.StatusAccepted, response.Code)
	}
	pushCalls, batchCalls, events := sink.snapshot()
	if pushCalls != 0 || batchCalls != 1 {
		t.Fatalf("unexpected sink calls push=%d batch=%d", pushCalls, batchCalls)
	}
	if len(events) != 2 || events[1].Title != "second" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestHTTPHandlerRejectsInvalidPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty batch", payload: "[]"},
		{name: "unknown event kind", payload: `{"event":"metrics_rollup","title":"x"}`},
		{name: "trailing tokens", payload: testEventJSON("first") + `{"event":"alert_created"}`},
		{name: "alert without title", payload: `{"event":"alert_created","alert_type":"crisis_flag","severity":"critical"}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sink := &httpTestSink{}
			handler := NewHTTPHandler(sink, 1<<20)
			request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(tt.payload))
			response := httptest.NewRecorder()

			handler.ServeHTTP(response, request)
			if response.Code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, response.Code)
			}
			pushCalls, batchCalls, _ := sink.snapshot()
			if pushCalls != 0 || batchCalls != 0 {
				t.Fatalf("unexpected sink calls push=%d batch=%d", pushCalls, batchCalls)
			}
		})
	}
}

func TestHTTPHandlerRejectsNonPost(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{}
	handler := NewHTTPHandler(sink, 1<<20)
	request := httptest.NewRequest(http.MethodGet, "/ingest", nil)
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, response.Code)
	}
}

func TestHTTPHandlerReturnsServiceUnavailableOnPushError(t *testing.T) {
	t.Parallel()

	sink := &httpTestSink{err: errors.New("sink unavailable")}
	handler := NewHTTPHandler(sink, 1<<20)
	request := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(testEventJSON("Crisis flag raised")))
	response := httptest.NewRecorder()

	handler.ServeHTTP(response, request)
	if response.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, response.Code)
	}
}

func testEventJSON(title string) string {
	return fmt.Sprintf(`{"event":"alert_created","alert_type":"crisis_flag","severity":"critical","title":%q,"message":"student flagged for follow-up","link":"https://support.example.edu/cases/42","dt":1739876543210}`, title)
}
