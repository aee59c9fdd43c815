package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/voicechat/internal/observability"
	"github.com/antoniostano/voicechat/internal/protocol"
)

const subscriberBuffer = 64

// EventHub fans pipeline events out to websocket subscribers of a session.
// Publish never blocks; a subscriber whose queue is full misses the event.
type EventHub struct {
	mu      sync.Mutex
	subs    map[string]map[*subscriber]struct{}
	metrics *observability.Metrics
	logger  *slog.Logger
}

type subscriber struct {
	ch chan any
}

func NewEventHub(metrics *observability.Metrics, logger *slog.Logger) *EventHub {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventHub{
		subs:    make(map[string]map[*subscriber]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

func (h *EventHub) Publish(sessionID string, event any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[sessionID] {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("event subscriber queue full, dropping event", "session_id", sessionID)
		}
	}
}

func (h *EventHub) subscribe(sessionID string) *subscriber {
	sub := &subscriber{ch: make(chan any, subscriberBuffer)}
	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.EventSubscribers.Inc()
	}
	return sub
}

func (h *EventHub) unsubscribe(sessionID string, sub *subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.EventSubscribers.Dec()
	}
}

// Subscribers counts open subscriptions across all sessions.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "session_id"))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.events.subscribe(sessionID)
	defer s.events.unsubscribe(sessionID, sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replies to client pings share the writer so writes stay single-threaded.
	replies := make(chan any, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case msg = <-sub.ch:
			case msg = <-replies:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("event write failed", "session_id", sessionID, "error", err)
				cancel()
				return
			}
		}
	}()

	replies <- protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      "subscribed",
	}

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		var reply any
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reply = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Detail:    err.Error(),
			}
		} else if control, ok := parsed.(protocol.ClientControl); ok && control.Action == "ping" {
			reply = protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "pong"}
		}
		if reply == nil {
			continue
		}
		select {
		case replies <- reply:
		case <-ctx.Done():
		default:
			// Drop when the writer is saturated.
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	<-writerDone
}
