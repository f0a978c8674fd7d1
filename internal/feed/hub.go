// Package feed broadcasts completed actions to dashboard websocket
// subscribers.
package feed

import (
	"log"
	"time"

	"casguard/backend/internal/models"
)

// Event is one action as delivered to subscribers.
type Event struct {
	ChatID int64     `json:"chat_id"`
	UserID int64     `json:"user_id"`
	Action string    `json:"action"`
	Mode   string    `json:"mode"`
	Reason string    `json:"reason"`
	Source string    `json:"source"`
	Failed bool      `json:"failed"`
	At     time.Time `json:"at"`
}

// Client is the interface for one feed subscriber connection.
type Client interface {
	// GetSendChannel returns the channel the hub pushes events into.
	GetSendChannel() chan<- Event
	// Close shuts the subscriber down and releases its send channel.
	Close()
}

// Hub fans every action event out to the connected subscribers.
type Hub struct {
	Clients map[Client]bool

	BroadcastCh  chan Event
	RegisterCh   chan Client
	UnregisterCh chan Client
}

// NewHub Constructor
func NewHub() *Hub {
	return &Hub{
		Clients:      make(map[Client]bool),
		BroadcastCh:  make(chan Event, 64),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
	}
}

// Run is the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.RegisterCh:
			h.Clients[client] = true
		case client := <-h.UnregisterCh:
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				client.Close()
			}
		case event := <-h.BroadcastCh:
			for client := range h.Clients {
				select {
				case client.GetSendChannel() <- event:
				default:
					// Slow subscriber, drop it rather than stall the feed.
					delete(h.Clients, client)
					client.Close()
				}
			}
		}
	}
}

// ActionLogged feeds a finished action into the broadcast channel. It never
// blocks the dispatcher: when the feed is saturated the event is dropped.
func (h *Hub) ActionLogged(entry models.ActionLogEntry) {
	event := Event{
		ChatID: entry.ChatID,
		UserID: entry.UserID,
		Action: entry.Action,
		Mode:   entry.Mode,
		Reason: entry.Reason,
		Source: entry.Source,
		Failed: entry.Failed,
		At:     entry.CreatedAt,
	}
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case h.BroadcastCh <- event:
	default:
		log.Println("WARN: Action feed saturated, dropping event")
	}
}
