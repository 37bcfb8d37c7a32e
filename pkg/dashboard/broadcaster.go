package dashboard

import (
	"sync"
	"time"

	"github.com/harun/agentforge/pkg/events"
	"github.com/rs/zerolog"
)

// DefaultHistorySize is the number of recent messages replayed to new clients
const DefaultHistorySize = 500

// EventBroadcaster fans messages out to every client and keeps a bounded
// backlog so late clients see the current run.
type EventBroadcaster struct {
	clients     *viewers
	logger      zerolog.Logger
	historySize int

	// mu serialises sends so every client sees the same order
	mu      sync.Mutex
	seq     int64
	history []EventMessage
}

// newEventBroadcaster creates a new event broadcaster
func newEventBroadcaster(clients *viewers, historySize int, logger zerolog.Logger) *EventBroadcaster {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &EventBroadcaster{
		clients:     clients,
		logger:      logger,
		historySize: historySize,
	}
}

// Publish forwards a run event. It matches the events.Tracer subscriber signature.
func (b *EventBroadcaster) Publish(e events.Event) {
	b.send(messageFromEvent(e))
}

// Broadcast sends a dashboard-level message such as approval_pending
func (b *EventBroadcaster) Broadcast(kind string, data map[string]interface{}) {
	b.send(EventMessage{
		Type:      "event",
		Kind:      kind,
		Timestamp: time.Now(),
		Data:      data,
	})
}

func (b *EventBroadcaster) send(msg EventMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	msg.Seq = b.seq
	b.history = append(b.history, msg)
	if over := len(b.history) - b.historySize; over > 0 {
		b.history = append(b.history[:0:0], b.history[over:]...)
	}

	clients := b.clients.snapshot()
	if len(clients) == 0 {
		return
	}

	failed := 0
	for _, client := range clients {
		if err := client.WriteJSON(msg); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Str("kind", msg.Kind).
				Int64("seq", msg.Seq).
				Msg("Failed to send event to client")
			failed++
		}
	}

	b.logger.Debug().
		Str("kind", msg.Kind).
		Int64("seq", msg.Seq).
		Int("clients", len(clients)).
		Int("failed", failed).
		Msg("Event broadcast complete")
}

// Attach replays the backlog to client and then registers it, so it neither
// misses nor duplicates a message.
func (b *EventBroadcaster) Attach(client *Client) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msg := range b.history {
		if err := client.WriteJSON(msg); err != nil {
			return err
		}
	}
	b.clients.add(client)
	return nil
}

// History returns the backlog, oldest first
func (b *EventBroadcaster) History() []EventMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]EventMessage(nil), b.history...)
}
