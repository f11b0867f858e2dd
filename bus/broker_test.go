package bus

import (
	"context"
	"testing"
	"time"
)

// --- Unit Tests ---

func TestPriorityFor(t *testing.T) {
	if PriorityFor(true) != "priority" {
		t.Errorf("PriorityFor(true) = %q", PriorityFor(true))
	}
	if PriorityFor(false) != "standard" {
		t.Errorf("PriorityFor(false) = %q", PriorityFor(false))
	}
}

func TestEventWireShape(t *testing.T) {
	data, err := EncodeEvent(Event{Type: EventAgentRegister, AgentID: "nia.ans", Priority: PriorityStandard})
	if err != nil {
		t.Fatalf("EncodeEvent error: %v", err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent error: %v", err)
	}
	if got.Type != "agent_register" || got.AgentID != "nia.ans" || got.Priority != "standard" {
		t.Errorf("got %+v", got)
	}
	if _, err := DecodeEvent([]byte("{")); err == nil {
		t.Error("expected decode error")
	}
}

func TestBroker_PublishValidates(t *testing.T) {
	b := NewBroker(NewMemoryBus(DefaultConfig()), "")
	defer b.Close()

	if b.Subject() != DefaultSubject {
		t.Errorf("Subject = %q", b.Subject())
	}
	if err := b.Publish(context.Background(), Event{Type: EventAgentRegister}); err != ErrInvalidEvent {
		t.Errorf("Publish without agent id = %v, want ErrInvalidEvent", err)
	}
}

// --- Integration Tests ---

func TestBroker_SubscribeFanOut(t *testing.T) {
	mb := NewMemoryBus(DefaultConfig())
	b := NewBroker(mb, "events")
	defer b.Close()

	s1, err := b.Subscribe()
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	defer s1.Close()
	s2, _ := b.Subscribe()
	defer s2.Close()

	// Garbage on the subject is skipped
	mb.Publish(context.Background(), "events", []byte("not json"))
	b.Publish(context.Background(), Event{Type: EventAgentDeregister, AgentID: "diana.ans", Priority: PriorityStandard})

	for i, s := range []*EventStream{s1, s2} {
		select {
		case ev := <-s.Events():
			if ev.Type != EventAgentDeregister || ev.AgentID != "diana.ans" {
				t.Errorf("stream %d got %+v", i, ev)
			}
			if ev.Timestamp.IsZero() {
				t.Errorf("stream %d: timestamp not set", i)
			}
		case <-time.After(time.Second):
			t.Errorf("stream %d: timeout", i)
		}
	}
}

func TestEventStream_Close(t *testing.T) {
	mb := NewMemoryBus(DefaultConfig())
	b := NewBroker(mb, "")
	defer b.Close()

	s, _ := b.Subscribe()
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	select {
	case _, ok := <-s.Events():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("events channel not closed")
	}
	if mb.SubscriberCount(DefaultSubject) != 0 {
		t.Error("subscription not removed")
	}
	s.Close()
}
