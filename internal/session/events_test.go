package session

import (
	"strings"
	"testing"
	"time"

	"github.com/hearthd/hearth/pkg/models"
)

func TestBufferDropsDuplicates(t *testing.T) {
	buffer := NewBuffer(0)
	now := time.Now().UTC()
	event := newModelResponseEvent("hi", true, "main", "m", now)

	if !buffer.Append(event) {
		t.Fatal("first append rejected")
	}
	if buffer.Append(event) {
		t.Fatal("duplicate append accepted")
	}
	// Same summary at a different timestamp is a distinct event.
	if !buffer.Append(newModelResponseEvent("hi", true, "main", "m", now.Add(time.Millisecond))) {
		t.Fatal("distinct event rejected")
	}
	if buffer.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", buffer.Len())
	}
}

func TestBufferCapDropsOldest(t *testing.T) {
	buffer := NewBuffer(3)
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		buffer.Append(newErrorEvent("e", base.Add(time.Duration(i)*time.Second)))
	}
	events := buffer.Events()
	if len(events) != 3 {
		t.Fatalf("Len() = %d, want 3", len(events))
	}
	if !events[0].Timestamp.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("oldest surviving event at %v", events[0].Timestamp)
	}
}

func TestBoundEventTruncatesText(t *testing.T) {
	big := strings.Repeat("a", MaxEventText+1000)
	event := newModelResponseEvent(big, true, "main", "m", time.Now().UTC())

	bounded := BoundEvent(event)
	text := bounded.Text()
	if !strings.Contains(text, "[truncated: original length 101000 characters]") {
		t.Fatalf("marker missing from %q", text[len(text)-80:])
	}
	if len(text) >= len(big) {
		t.Fatal("text was not truncated")
	}
	// The original event is untouched.
	if len(event.Text()) != len(big) {
		t.Fatal("BoundEvent mutated its input")
	}
}

func TestBoundEventLeavesSmallEventsAlone(t *testing.T) {
	event := newModelResponseEvent("short", true, "main", "m", time.Now().UTC())
	if got := BoundEvent(event).Text(); got != "short" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestSplitFramesSingleBatchWhenSmall(t *testing.T) {
	events := []models.Event{
		newModelResponseEvent("a", false, "main", "m", time.Now().UTC()),
		newModelResponseEvent("b", true, "main", "m", time.Now().UTC()),
	}
	frames := SplitFrames(events)
	if len(frames) != 1 || len(frames[0]) != 2 {
		t.Fatalf("frames = %d, want one batch of 2", len(frames))
	}
}

func TestSplitFramesSplitsOversizedBatch(t *testing.T) {
	// Fifteen events of ~90KB exceed 1 MiB together but fit individually.
	chunk := strings.Repeat("z", 90_000)
	var events []models.Event
	base := time.Now().UTC()
	for i := 0; i < 15; i++ {
		events = append(events, newModelResponseEvent(chunk, false, "main", "m", base.Add(time.Duration(i))))
	}
	frames := SplitFrames(events)
	if len(frames) != 15 {
		t.Fatalf("frames = %d, want 15 single-event frames", len(frames))
	}
	for _, frame := range frames {
		if size := payloadSize(frame); size > MaxFrameBytes {
			t.Fatalf("frame size %d exceeds bound", size)
		}
	}
}
