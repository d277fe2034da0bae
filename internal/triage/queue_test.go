package triage

import (
	"testing"
	"time"

	"opsconsole/internal/domain"
	"opsconsole/internal/sla"
)

var queueNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func supportCase(id, severity, status, assignee string, deadline *time.Time) domain.CaseRecord {
	return domain.CaseRecord{
		CaseID:      id,
		Severity:    severity,
		Status:      status,
		AssignedTo:  assignee,
		CreatedAt:   queueNow.Add(-time.Hour),
		SLABreachAt: deadline,
	}
}

func deadlineIn(offset time.Duration) *time.Time {
	deadline := queueNow.Add(offset)
	return &deadline
}

func caseIDs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Case.CaseID)
	}
	return out
}

func TestBuildOrdersByDeadlineAscending(t *testing.T) {
	t.Parallel()

	cases := []domain.CaseRecord{
		supportCase("late", "high", "open", "", deadlineIn(3*time.Hour)),
		supportCase("breached", "critical", "open", "", deadlineIn(-5*time.Minute)),
		supportCase("soon", "moderate", "open", "", deadlineIn(30*time.Minute)),
	}

	entries := Build(cases, Filters{}, queueNow)
	got := caseIDs(entries)
	want := []string{"breached", "soon", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}

	if entries[0].Urgency.Label != sla.BreachedLabel || !entries[0].Urgency.Urgent {
		t.Fatalf("breached case must lead with breached urgency, got %+v", entries[0].Urgency)
	}
	if entries[2].Urgency.Urgent {
		t.Fatalf("three-hour case must not be urgent, got %+v", entries[2].Urgency)
	}
}

func TestBuildPlacesNoDeadlineCasesLastInInputOrder(t *testing.T) {
	t.Parallel()

	cases := []domain.CaseRecord{
		supportCase("idle-1", "low", "open", "", nil),
		supportCase("due", "high", "open", "", deadlineIn(time.Hour)),
		supportCase("idle-2", "low", "open", "", nil),
	}

	entries := Build(cases, Filters{}, queueNow)
	got := caseIDs(entries)
	want := []string{"due", "idle-1", "idle-2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
	if entries[1].Urgency.Tier != sla.TierNone {
		t.Fatalf("no-deadline case must carry none tier, got %+v", entries[1].Urgency)
	}
}

func TestBuildKeepsInputOrderForEqualDeadlines(t *testing.T) {
	t.Parallel()

	shared := deadlineIn(45 * time.Minute)
	cases := []domain.CaseRecord{
		supportCase("first", "high", "open", "", shared),
		supportCase("second", "high", "open", "", shared),
		supportCase("third", "high", "open", "", shared),
	}

	got := caseIDs(Build(cases, Filters{}, queueNow))
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected stable order %v, got %v", want, got)
		}
	}
}

func TestBuildSeverityFilter(t *testing.T) {
	t.Parallel()

	cases := []domain.CaseRecord{
		supportCase("c1", "critical", "open", "", deadlineIn(time.Hour)),
		supportCase("c2", "moderate", "open", "", deadlineIn(2*time.Hour)),
	}

	entries := Build(cases, Filters{Severity: "Critical"}, queueNow)
	if len(entries) != 1 || entries[0].Case.CaseID != "c1" {
		t.Fatalf("expected only c1, got %v", caseIDs(entries))
	}
}

func TestBuildQueryFilterMatchesIDStatusAssignee(t *testing.T) {
	t.Parallel()

	cases := []domain.CaseRecord{
		supportCase("case-7781", "high", "open", "dr.lee", deadlineIn(time.Hour)),
		supportCase("case-9102", "high", "escalated", "nurse.kim", deadlineIn(2*time.Hour)),
		supportCase("case-3345", "high", "open", "dr.park", nil),
	}

	for query, want := range map[string]string{
		"7781":   "case-7781",
		"ESCAL":  "case-9102",
		"dr.park": "case-3345",
	} {
		entries := Build(cases, Filters{Query: query}, queueNow)
		if len(entries) != 1 || entries[0].Case.CaseID != want {
			t.Fatalf("query %q: expected %s, got %v", query, want, caseIDs(entries))
		}
	}
}

func TestBuildEmptyInput(t *testing.T) {
	t.Parallel()

	if entries := Build(nil, Filters{Query: "x"}, queueNow); len(entries) != 0 {
		t.Fatalf("expected empty queue, got %v", caseIDs(entries))
	}
}
