package websocket

import "github.com/rs/zerolog/log"

// Hub maintains the set of connected dashboard clients and fans each
// logged audit event out to all of them. A client that cannot keep up
// is dropped rather than allowed to block the feed.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Events to fan out to every connected client.
	Broadcast chan []byte

	// Register requests from new clients.
	Register chan *Client

	// Unregister requests from disconnecting clients.
	Unregister chan *Client
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:  make(chan []byte, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Msg("Audit feed client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Info().Int("total_clients", len(h.clients)).Msg("Audit feed client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}
