package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vinayprograms/ans/logging"
)

// Publisher sends one event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// EmitterConfig configures an Emitter.
type EmitterConfig struct {
	// QueueSize bounds the number of events waiting to be published.
	// Default: 1024
	QueueSize int

	// PublishTimeout bounds each publish attempt. Default: 2s
	PublishTimeout time.Duration
}

// DefaultEmitterConfig returns configuration with sensible defaults.
func DefaultEmitterConfig() EmitterConfig {
	return EmitterConfig{
		QueueSize:      1024,
		PublishTimeout: 2 * time.Second,
	}
}

// Emitter delivers events on a best-effort basis. Emit never blocks: events
// are queued for a single background publisher and dropped when the queue
// is full or the emitter is closed. Publish failures are logged, never
// retried.
type Emitter struct {
	pub    Publisher
	config EmitterConfig
	log    *logging.Logger

	mu     sync.RWMutex
	queue  chan Event
	closed bool
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewEmitter starts the publishing goroutine.
func NewEmitter(pub Publisher, cfg EmitterConfig, log *logging.Logger) *Emitter {
	def := DefaultEmitterConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if log == nil {
		log = logging.Nop()
	}

	e := &Emitter{
		pub:    pub,
		config: cfg,
		log:    log.WithComponent("events"),
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go e.run()
	return e
}

// Emit queues an event and reports whether it was accepted.
func (e *Emitter) Emit(ev Event) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		e.drop(ev, "emitter closed")
		return false
	}
	select {
	case e.queue <- ev:
		return true
	default:
		e.drop(ev, "queue full")
		return false
	}
}

func (e *Emitter) drop(ev Event, cause string) {
	e.dropped.Add(1)
	e.log.EventDropped(ev.Type, ev.AgentID, cause)
}

func (e *Emitter) run() {
	defer close(e.done)
	for ev := range e.queue {
		e.publish(ev)
	}
}

func (e *Emitter) publish(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.PublishTimeout)
	defer cancel()

	if err := e.pub.Publish(ctx, ev); err != nil {
		e.failed.Add(1)
		e.log.EventPublishFailed(ev.Type, ev.AgentID, err)
		return
	}
	e.published.Add(1)
}

// Close stops accepting events and waits for queued ones to be attempted,
// or for ctx to end.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns counters of published, dropped and failed events.
func (e *Emitter) Stats() (published, dropped, failed uint64) {
	return e.published.Load(), e.dropped.Load(), e.failed.Load()
}
