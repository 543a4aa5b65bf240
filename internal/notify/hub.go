// Package notify pushes progress events to connected clients over websockets.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-arena/internal/progress"
)

const (
	defaultBufferSize = 16
	writeTimeout      = 5 * time.Second
)

type subscriber struct {
	events chan progress.Event
}

// Hub fans progress events out to per-user subscribers. It implements
// progress.EventLogger so the ledger can publish to it directly.
type Hub struct {
	subs   map[string]map[*subscriber]struct{}
	buffer int
	mu     sync.RWMutex
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[*subscriber]struct{}),
		buffer: defaultBufferSize,
	}
}

// Subscribe registers interest in userID's events. The returned cancel func must be
// called to release the subscription.
func (h *Hub) Subscribe(userID string) (<-chan progress.Event, func()) {
	sub := &subscriber{events: make(chan progress.Event, h.buffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		})
	}
	return sub.events, cancel
}

// Subscribers returns the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// LogEvent delivers event to every subscriber of its user. Slow subscribers
// whose buffer is full miss the event rather than block the ledger.
func (h *Hub) LogEvent(event progress.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.UserID] {
		select {
		case sub.events <- event:
		default:
			slog.Warn("dropping progress event for slow subscriber",
				"user_id", event.UserID,
				"event_type", event.EventType,
			)
		}
	}
	return nil
}

// ServeHTTP upgrades GET /ws/progress?user={userID} and streams that user's events
// as JSON until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(w, `{"error":"user query parameter is required"}`, http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "user_id", userID, "error", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := h.Subscribe(userID)
	defer cancel()

	// Clients never send; CloseRead handles pings and reports disconnects.
	ctx := conn.CloseRead(r.Context())
	slog.Debug("progress stream opened", "user_id", userID)

	for {
		select {
		case <-ctx.Done():
			slog.Debug("progress stream closed", "user_id", userID)
			return
		case event := <-events:
			if err := write(ctx, conn, event); err != nil {
				slog.Warn("progress stream write failed", "user_id", userID, "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, event progress.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, event)
}
