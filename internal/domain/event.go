package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventKind identifies incoming push-event shape.
// Params: alert/case event kind constants.
// Returns: normalized kind usage across ingress transports.
type EventKind string

const (
	// EventAlertCreated marks one freshly raised operational alert.
	EventAlertCreated EventKind = "alert_created"
	// EventSLABreach marks a case crossing its SLA deadline.
	EventSLABreach EventKind = "sla_breach"
	// EventReportGenerated marks a finished incident-analysis report.
	EventReportGenerated EventKind = "ia_report_generated"
	// EventCaseCreated marks a newly opened monitored case.
	EventCaseCreated EventKind = "case_created"
	// EventCaseUpdated marks a field change on a monitored case.
	EventCaseUpdated EventKind = "case_updated"
)

// PushEvent is one normalized push notification from upstream.
// Params: kind discriminator, display payload, and unix-millis timestamp.
// Returns: validated envelope driving feed and triage side effects.
type PushEvent struct {
	Kind      EventKind `json:"event"`
	AlertType string    `json:"alert_type,omitempty"`
	Severity  string    `json:"severity,omitempty"`
	Title     string    `json:"title,omitempty"`
	Message   string    `json:"message,omitempty"`
	Link      string    `json:"link,omitempty"`
	DT        int64     `json:"dt,omitempty"`
}

// EventTime converts the unix-millis timestamp into UTC time.
// Params: arrival time used when the payload carries no timestamp.
// Returns: payload time, or arrival time on absence.
func (e PushEvent) EventTime(arrival time.Time) time.Time {
	if e.DT <= 0 {
		return arrival.UTC()
	}
	return time.UnixMilli(e.DT).UTC()
}

// CarriesAlert reports whether the event materializes a feed record.
// Params: none beyond the receiver.
// Returns: true for alert-bearing kinds.
func (e PushEvent) CarriesAlert() bool {
	switch e.Kind {
	case EventAlertCreated, EventSLABreach, EventReportGenerated:
		return true
	default:
		return false
	}
}

// TouchesCases reports whether the event invalidates the case snapshot.
// Params: none beyond the receiver.
// Returns: true for kinds that change upstream case state.
func (e PushEvent) TouchesCases() bool {
	switch e.Kind {
	case EventSLABreach, EventCaseCreated, EventCaseUpdated:
		return true
	default:
		return false
	}
}

// DecodeEvent decodes and validates one push-event payload.
// Params: JSON document bytes.
// Returns: validated event or decode/validation error.
func DecodeEvent(raw []byte) (PushEvent, error) {
	var event PushEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return PushEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return PushEvent{}, err
	}
	return event, nil
}

// DecodeEventReader decodes and validates one push event from stream.
// Params: reader positioned at one JSON object.
// Returns: validated event or decode/validation error.
func DecodeEventReader(reader *json.Decoder) (PushEvent, error) {
	var event PushEvent
	if err := reader.Decode(&event); err != nil {
		return PushEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return PushEvent{}, err
	}
	return event, nil
}

// DecodeEventsReader decodes and validates one batch of push events from stream.
// Params: reader positioned at one JSON array of events.
// Returns: validated events slice or decode/validation error.
func DecodeEventsReader(reader *json.Decoder) ([]PushEvent, error) {
	var events []PushEvent
	if err := reader.Decode(&events); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	if len(events) == 0 {
		return nil, errors.New("event batch must contain at least one event")
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
	}
	return events, nil
}

// Validate validates one push event against the contract.
// Params: event fields parsed from transport.
// Returns: validation error when the envelope is unusable.
func (e PushEvent) Validate() error {
	switch e.Kind {
	case EventAlertCreated, EventSLABreach, EventReportGenerated, EventCaseCreated, EventCaseUpdated:
	default:
		return fmt.Errorf("unsupported event %q", e.Kind)
	}
	if e.DT < 0 {
		return errors.New("dt must be >=0")
	}
	if e.CarriesAlert() && strings.TrimSpace(e.Title) == "" {
		return errors.New("title is required for alert events")
	}
	return nil
}

// Record materializes the feed record described by one alert-bearing event.
// Params: surrogate identity and arrival time for defaulting.
// Returns: unseen pushed record with normalized severity.
func (e PushEvent) Record(identity string, arrival time.Time) AlertRecord {
	alertType := strings.TrimSpace(e.AlertType)
	if alertType == "" {
		alertType = string(e.Kind)
	}
	return AlertRecord{
		Identity:  identity,
		AlertType: alertType,
		Severity:  NormalizeSeverity(e.Severity),
		Title:     e.Title,
		Message:   e.Message,
		Link:      e.Link,
		CreatedAt: e.EventTime(arrival),
		Origin:    OriginPushed,
	}
}
