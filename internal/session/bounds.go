package session

import (
	"encoding/json"
	"fmt"

	"github.com/hearthd/hearth/pkg/models"
)

// Payload bounds applied to events, HTTP bodies, and WS frames alike.
const (
	// MaxEventText caps an event's text field, in characters.
	MaxEventText = 100_000

	// MaxFrameBytes caps a serialized frame or batch payload.
	MaxFrameBytes = 1 << 20
)

// BoundEvent truncates oversized text-bearing fields, appending a marker
// that records the original length. Every event passes through here before
// buffering or delivery.
func BoundEvent(event models.Event) models.Event {
	if event.Details == nil {
		return event
	}
	for _, key := range []string{"text", "output", "error"} {
		value, ok := event.Details[key].(string)
		if !ok || len(value) <= MaxEventText {
			continue
		}
		truncated := cloneDetails(event)
		truncated.Details[key] = value[:MaxEventText] +
			fmt.Sprintf("\n[truncated: original length %d characters]", len(value))
		event = truncated
	}
	return event
}

func cloneDetails(event models.Event) models.Event {
	details := make(map[string]any, len(event.Details))
	for k, v := range event.Details {
		details[k] = v
	}
	event.Details = details
	return event
}

// SplitFrames packs events into frames no larger than MaxFrameBytes. The
// whole batch goes out as one frame when it fits; otherwise each event is
// framed individually, with per-event truncation as the last resort.
func SplitFrames(events []models.Event) [][]models.Event {
	if len(events) == 0 {
		return nil
	}
	if payloadSize(events) <= MaxFrameBytes {
		return [][]models.Event{events}
	}
	frames := make([][]models.Event, 0, len(events))
	for _, event := range events {
		single := []models.Event{event}
		if payloadSize(single) > MaxFrameBytes {
			single = []models.Event{BoundEvent(event)}
		}
		frames = append(frames, single)
	}
	return frames
}

func payloadSize(events []models.Event) int {
	data, err := json.Marshal(events)
	if err != nil {
		return MaxFrameBytes + 1
	}
	return len(data)
}
