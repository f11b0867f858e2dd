package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Common errors.
var (
	ErrClosed         = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
	ErrInvalidEvent   = errors.New("invalid event")
)

// DefaultSubject is where registry events are published.
const DefaultSubject = "ans-sync"

// Event types.
const (
	EventAgentRegister   = "agent_register"
	EventAgentDeregister = "agent_deregister"
)

// Event priorities.
const (
	PriorityCritical = "priority"
	PriorityStandard = "standard"
)

// Event is a registry change notification.
type Event struct {
	Type     string `json:"type"`
	AgentID  string `json:"agent_id"`
	Priority string `json:"priority"`

	// Timestamp is set by the broker when publishing if zero.
	Timestamp time.Time `json:"timestamp"`
}

// PriorityFor maps the critical_registration flag to an event priority.
func PriorityFor(critical bool) string {
	if critical {
		return PriorityCritical
	}
	return PriorityStandard
}

// Validate checks the fields consumers rely on.
func (e Event) Validate() error {
	if e.Type == "" || e.AgentID == "" {
		return ErrInvalidEvent
	}
	return nil
}

// EncodeEvent serializes an event for the wire.
func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses a wire event.
func DecodeEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

// Message represents a message received from the bus.
type Message struct {
	// Subject the message was published to.
	Subject string

	// Data is the message payload.
	Data []byte
}

// MessageBus provides subject-based pub/sub.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject. The context
	// bounds any flush to the server.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all messages.
	Subscribe(subject string) (Subscription, error)

	// Close shuts down the bus.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *Message

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// Config holds common bus configuration.
type Config struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 256,
	}
}

// ValidateSubject checks if a subject is valid.
func ValidateSubject(subject string) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	return nil
}
