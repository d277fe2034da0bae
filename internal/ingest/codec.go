package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"opsconsole/internal/domain"
)

// Scratch slices above this capacity are not returned to the pool.
const maxPooledBatchCapacity = 4096

type decodeScratch struct {
	events []domain.PushEvent
}

var decodeScratchPool = sync.Pool{
	New: func() any {
		return &decodeScratch{events: make([]domain.PushEvent, 0, 16)}
	},
}

// decodeEventPayloadInto parses one payload holding a single event object
// or an event array.
// Params: raw JSON bytes and reusable scratch storage.
// Returns: validated events aliasing the scratch; consume before release.
func decodeEventPayloadInto(raw []byte, scratch *decodeScratch) ([]domain.PushEvent, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	if payload[0] == '[' {
		return decodeBatchEventsInto(decoder, scratch)
	}
	event, err := decodeSingleEvent(decoder)
	if err != nil {
		return nil, err
	}
	scratch.events = append(scratch.events[:0], event)
	return scratch.events, nil
}

// decodeSingleEvent reads one validated event object off the decoder.
// Params: decoder positioned at the payload start.
// Returns: event, or an error for invalid content or trailing tokens.
func decodeSingleEvent(decoder *json.Decoder) (domain.PushEvent, error) {
	event, err := domain.DecodeEventReader(decoder)
	if err != nil {
		return domain.PushEvent{}, err
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return domain.PushEvent{}, err
	}
	return event, nil
}

func decodeBatchEventsInto(decoder *json.Decoder, scratch *decodeScratch) ([]domain.PushEvent, error) {
	events := scratch.events[:0]
	if err := decoder.Decode(&events); err != nil {
		return nil, fmt.Errorf("decode event batch: %w", err)
	}
	scratch.events = events
	if len(events) == 0 {
		return nil, errors.New("event batch must contain at least one event")
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return nil, fmt.Errorf("event[%d]: %w", i, err)
		}
	}
	if err := ensureJSONEOF(decoder); err != nil {
		return nil, err
	}
	return events, nil
}

func acquireDecodeScratch() *decodeScratch {
	return decodeScratchPool.Get().(*decodeScratch)
}

// releaseDecodeScratch clears and pools the scratch. Oversized batch slices
// are replaced so one large batch cannot pin memory for the pool's lifetime.
func releaseDecodeScratch(scratch *decodeScratch) {
	if scratch == nil {
		return
	}
	for i := range scratch.events {
		scratch.events[i] = domain.PushEvent{}
	}
	scratch.events = scratch.events[:0]
	if cap(scratch.events) > maxPooledBatchCapacity {
		scratch.events = make([]domain.PushEvent, 0, 16)
	}
	decodeScratchPool.Put(scratch)
}

// ensureJSONEOF verifies nothing follows the decoded payload.
// Params: decoder positioned after the primary decode.
// Returns: nil at EOF, an error for any trailing token.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}

// pushEvents hands decoded events to the sink, one call when it batches.
// Params: event sink and decoded events.
// Returns: first push error or nil.
func pushEvents(sink EventSink, events []domain.PushEvent) error {
	if len(events) == 0 {
		return nil
	}
	if batchSink, ok := sink.(batchEventSink); ok {
		return batchSink.PushBatch(events)
	}
	for _, event := range events {
		if err := sink.Push(event); err != nil {
			return err
		}
	}
	return nil
}
