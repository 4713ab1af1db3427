package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBroadcasterPublishesTitleComplete(t *testing.T) {
	b, err := NewBroadcaster(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBroadcaster: %v", err)
	}
	defer b.Close()

	received := make(chan TitleEvent, 1)
	unsub, err := b.Subscribe(SubjectTitleComplete, func(data []byte) {
		var ev TitleEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			received <- ev
		}
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsub()

	b.TitleComplete("sess-1", "Fix the flaky test")

	select {
	case ev := <-received:
		if ev.SessionID != "sess-1" || ev.Title != "Fix the flaky test" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestBroadcasterImplementsNotifier(t *testing.T) {
	b, err := NewBroadcaster(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBroadcaster: %v", err)
	}
	defer b.Close()

	b.MemoryStart("sess-1")
	b.MemoryComplete("sess-1", 3)
	b.MemoryError("sess-1", "boom")
	b.SkillStart("sess-1")
	b.SkillComplete("sess-1", 1)
	b.SkillError("sess-1", "boom")
	b.TitleStart("sess-1")
	b.TitleError("sess-1", "boom")
	b.MarkerStart("sess-1")
	b.MarkerComplete("sess-1", 2)
	b.MarkerError("sess-1", "boom")
}

func TestSubscribePublishDoesNotBlockOnFullBuffer(t *testing.T) {
	b, err := NewBroadcaster(zerolog.Nop())
	if err != nil {
		t.Fatalf("NewBroadcaster: %v", err)
	}
	defer b.Close()

	block := make(chan struct{})
	unsub, err := b.Subscribe(SubjectMarkerStart, func(data []byte) {
		<-block // handler never drains; every event piles up on the buffer
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer func() {
		close(block)
		unsub()
	}()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize+50; i++ {
			b.MarkerStart("sess-1")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing past a full subscriber buffer should drop events, not block")
	}
}
