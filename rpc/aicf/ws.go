package aicf

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"aicf/core/events"
)

const wsWriteTimeout = 10 * time.Second
const subscriberBacklog = 64

// wsEvent is the wire envelope for one WS broadcast.
type wsEvent struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// Hub fans AicfEvents out to subscribed WebSocket clients with a bounded
// per-subscriber channel for backpressure; a subscriber that falls behind
// drops events rather than stalling the emitter.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan wsEvent]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan wsEvent]struct{})}
}

// Emit implements events.Emitter, translating AicfEvents into topic/payload
// WS broadcasts.
func (h *Hub) Emit(evt events.Event) {
	we, ok := toWSEvent(evt)
	if !ok {
		return
	}
	h.broadcast(we)
}

func toWSEvent(evt events.Event) (wsEvent, bool) {
	switch e := evt.(type) {
	case events.Assigned:
		return wsEvent{Topic: "jobAssigned", Payload: e}, true
	case events.Completed:
		return wsEvent{Topic: "jobCompleted", Payload: e}, true
	case events.Slashed:
		return wsEvent{Topic: "providerSlashed", Payload: e}, true
	case events.Settled:
		return wsEvent{Topic: "epochSettled", Payload: e}, true
	default:
		return wsEvent{}, false
	}
}

func (h *Hub) broadcast(we wsEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- we:
		default:
			// Drop the update for a slow subscriber rather than blocking
			// the dispatcher's emit path.
		}
	}
}

func (h *Hub) subscribe() chan wsEvent {
	ch := make(chan wsEvent, subscriberBacklog)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan wsEvent) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

// ServeWS upgrades the connection and streams events until the client
// disconnects or the request context is cancelled.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "context done")
			return
		case update, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, update)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
