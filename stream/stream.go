// Package stream pushes live registry events to HTTP clients.
//
// # Overview
//
// Every connection holds its own broker subscription for as long as the
// client stays connected. Two encodings are offered:
//
//   - ServeSSE: Server-Sent Events, one "event: <type>" frame per event
//   - ServeWebSocket: one JSON text message per event
//
// A slow client never stalls the registry: events it cannot take are
// dropped by the bus subscription buffer, not queued without bound.
//
// # Usage
//
//	h := stream.NewHandler(broker, stream.DefaultConfig())
//	router.GET("/events", gin.WrapF(h.ServeSSE))
//	router.GET("/events/ws", gin.WrapF(h.ServeWebSocket))
//
// Watch is the matching client for SSE streams.
package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/ans/bus"
	"github.com/vinayprograms/ans/logging"
)

// ErrClosed is returned when the handler has been shut down.
var ErrClosed = errors.New("stream closed")

// Source opens event subscriptions. *bus.Broker satisfies it.
type Source interface {
	Subscribe() (*bus.EventStream, error)
}

// Config holds stream configuration.
type Config struct {
	// HeartbeatInterval sends SSE comments as keepalive (0 = disabled).
	HeartbeatInterval time.Duration

	// WriteTimeout for WebSocket writes.
	WriteTimeout time.Duration

	// PingInterval for WebSocket keepalive pings (0 = disabled).
	PingInterval time.Duration

	// MaxMessageSize limits frames read from WebSocket clients.
	MaxMessageSize int64
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
		MaxMessageSize:    4096,
	}
}

// Handler serves event streams.
type Handler struct {
	source   Source
	config   Config
	log      *logging.Logger
	upgrader *websocket.Upgrader
	done     chan struct{}
	once     sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) { h.log = l.WithComponent("stream") }
}

// WithUpgrader replaces the WebSocket upgrader, for example to restrict
// origins.
func WithUpgrader(u *websocket.Upgrader) Option {
	return func(h *Handler) { h.upgrader = u }
}

// NewHandler creates a stream handler reading from source.
func NewHandler(source Source, cfg Config, opts ...Option) *Handler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultConfig().MaxMessageSize
	}
	h := &Handler{
		source: source,
		config: cfg,
		log:    logging.Nop(),
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Close ends every open stream. Further connections are refused.
func (h *Handler) Close() error {
	h.once.Do(func() { close(h.done) })
	return nil
}

func (h *Handler) isClosed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
