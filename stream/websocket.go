package stream

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vinayprograms/ans/bus"
)

// ServeWebSocket upgrades the connection and writes one JSON text message
// per event. Anything the client sends is read and discarded; a read error
// ends the stream.
func (h *Handler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	events, err := h.source.Subscribe()
	if err != nil {
		h.log.Warn("subscribe_failed", map[string]interface{}{"error": err.Error()})
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer events.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.config.MaxMessageSize)

	gone := make(chan struct{})
	go h.readLoop(conn, gone)

	h.writeLoop(conn, events, gone)
}

// readLoop drains client frames so control messages are processed.
func (h *Handler) readLoop(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Handler) writeLoop(conn *websocket.Conn, events *bus.EventStream, gone <-chan struct{}) {
	ticker := h.createPingTicker()
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return
		case <-h.done:
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second),
			)
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-events.Events():
			if !ok {
				conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
			data, err := bus.EncodeEvent(ev)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// createPingTicker creates a ticker for keepalive pings.
func (h *Handler) createPingTicker() *time.Ticker {
	if h.config.PingInterval > 0 {
		return time.NewTicker(h.config.PingInterval)
	}
	// Return a ticker that never fires
	ticker := time.NewTicker(time.Hour)
	ticker.Stop()
	return ticker
}
