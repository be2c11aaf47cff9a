package devserver

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/concord-chat/teamchat/internal/logx"
	"github.com/concord-chat/teamchat/internal/protocol"
)

// Hub tracks connected clients and the channel rooms they joined
type Hub struct {
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	unregister chan *Client
	broadcast  chan *broadcastMessage
	done       chan struct{}

	mu  sync.RWMutex
	log zerolog.Logger
}

// broadcastMessage is a frame for everyone in one room
type broadcastMessage struct {
	channelID string
	frame     *protocol.Frame
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
		log:        logx.Component("hub"),
	}
}

// Run processes registrations and broadcasts until ctx ends
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastMessage(msg)
		}
	}
}

// Register adds a client. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case <-h.done:
		return false
	default:
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Debug().Str("user_id", client.user.ID).Msg("client registered")
	return true
}

// Unregister removes a client and closes its send queue
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	for channelID, members := range h.rooms {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, channelID)
		}
	}

	close(client.send)
	h.log.Debug().Str("user_id", client.user.ID).Msg("client unregistered")
}

func (h *Hub) broadcastMessage(msg *broadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[msg.channelID] {
		select {
		case client.send <- msg.frame:
		default:
			h.log.Warn().Str("user_id", client.user.ID).Msg("client buffer full, dropping event")
		}
	}
}

// Join puts a client in a channel room
func (h *Hub) Join(client *Client, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.rooms[channelID] == nil {
		h.rooms[channelID] = make(map[*Client]struct{})
	}
	h.rooms[channelID][client] = struct{}{}
}

// Leave removes a client from a channel room
func (h *Hub) Leave(client *Client, channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms[channelID], client)
	if len(h.rooms[channelID]) == 0 {
		delete(h.rooms, channelID)
	}
}

// CloseRoom empties a room, used when its channel is deleted
func (h *Hub) CloseRoom(channelID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, channelID)
}

// Broadcast queues an event for everyone in a channel room
func (h *Hub) Broadcast(channelID string, event protocol.Event, data interface{}) error {
	frame, err := protocol.NewFrame(event, data)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &broadcastMessage{channelID: channelID, frame: frame}:
	case <-h.done:
	}
	return nil
}

// RoomSize returns how many clients are in a channel room
func (h *Hub) RoomSize(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channelID])
}
