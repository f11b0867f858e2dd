package bus

import (
	"context"
	"sync"
	"time"
)

// Broker publishes and subscribes to registry events on a single subject
// of an underlying MessageBus.
type Broker struct {
	bus     MessageBus
	subject string
	now     func() time.Time
}

// NewBroker creates a broker on subject. An empty subject uses
// DefaultSubject.
func NewBroker(mb MessageBus, subject string) *Broker {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Broker{bus: mb, subject: subject, now: time.Now}
}

// Subject returns the subject events travel on.
func (b *Broker) Subject() string {
	return b.subject
}

// Publish encodes and sends one event.
func (b *Broker) Publish(ctx context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now().UTC()
	}
	data, err := EncodeEvent(e)
	if err != nil {
		return err
	}
	return b.bus.Publish(ctx, b.subject, data)
}

// Subscribe returns a stream of decoded events. Messages that do not decode
// are skipped.
func (b *Broker) Subscribe() (*EventStream, error) {
	sub, err := b.bus.Subscribe(b.subject)
	if err != nil {
		return nil, err
	}

	s := &EventStream{
		sub:    sub,
		events: make(chan Event, cap(sub.Messages())),
		done:   make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

// Close closes the underlying bus.
func (b *Broker) Close() error {
	return b.bus.Close()
}

// EventStream is one subscriber's view of the event subject.
type EventStream struct {
	sub    Subscription
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *EventStream) pump() {
	defer close(s.events)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.sub.Messages():
			if !ok {
				return
			}
			e, err := DecodeEvent(msg.Data)
			if err != nil {
				continue
			}
			select {
			case s.events <- e:
			case <-s.done:
				return
			}
		}
	}
}

// Events returns the event channel. It is closed when the stream ends.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Close ends the stream and its subscription.
func (s *EventStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.sub.Unsubscribe()
	})
	return err
}
