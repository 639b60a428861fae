// Package hub owns the live WebSocket connections: registration, per-room
// subscriber sets and fan-out of server-side events to sockets.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/unithread/chat-service/internal/config"
	"github.com/unithread/chat-service/internal/log"
)

// Hub tracks connected clients and routes outbound frames. A client belongs
// to exactly one user and views at most one room at a time.
type Hub struct {
	clients    map[string]*Client            // connID -> client
	users      map[string]map[string]*Client // userID -> connID -> client
	rooms      map[string]map[string]*Client // roomID -> connID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type outbound struct {
	// Exactly one of userID and roomID is set.
	userID  string
	roomID  string
	message []byte
	exclude string // connID to skip
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *outbound, 256),
		config:     cfg,
	}
}

// Run processes registration and fan-out until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.users[client.UserID]; !ok {
				h.users[client.UserID] = make(map[string]*Client)
			}
			h.users[client.UserID][client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.detachLocked(client)
				delete(h.clients, client.ID)
				if conns, ok := h.users[client.UserID]; ok {
					delete(conns, client.ID)
					if len(conns) == 0 {
						delete(h.users, client.UserID)
					}
				}
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) deliver(msg *outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var targets map[string]*Client
	if msg.roomID != "" {
		targets = h.rooms[msg.roomID]
	} else {
		targets = h.users[msg.userID]
	}

	for connID, client := range targets {
		if connID == msg.exclude {
			continue
		}
		select {
		case client.Send <- msg.message:
		default:
			// Slow consumer, drop the connection.
			go h.Unregister(client)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JoinRoom attaches the client to a room's subscriber set, detaching it from
// its previous room first.
func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.detachLocked(client)
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][client.ID] = client
	client.setRoom(roomID)
}

// LeaveRoom detaches the client from its current room, if any.
func (h *Hub) LeaveRoom(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(client)
}

func (h *Hub) detachLocked(client *Client) {
	roomID := client.Room()
	if roomID == "" {
		return
	}
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, client.ID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.setRoom("")
}

// BroadcastToRoom sends a frame to every client viewing the room, except
// the excluded connection.
func (h *Hub) BroadcastToRoom(roomID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.broadcast <- &outbound{roomID: roomID, message: data, exclude: exclude}
	return nil
}

// SendToUser sends a frame to every connection of a user.
func (h *Hub) SendToUser(userID string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	h.broadcast <- &outbound{userID: userID, message: data}
	return nil
}

// BroadcastRawToRoom sends pre-marshalled bytes to a room's subscribers.
func (h *Hub) BroadcastRawToRoom(roomID string, data []byte) {
	h.broadcast <- &outbound{roomID: roomID, message: data}
}

// SendRawToUser sends pre-marshalled bytes to a user's connections.
func (h *Hub) SendRawToUser(userID string, data []byte) {
	h.broadcast <- &outbound{userID: userID, message: data}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
