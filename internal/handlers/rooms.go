package handlers

import (
	"sync"

	"chatsync/internal/utils"
	"chatsync/models"

	"github.com/gofiber/websocket/v2"
)

// wsClient wraps a websocket connection with a write lock. Fiber's websocket
// conns are not safe for concurrent writers, and presence broadcasts can race
// with per-connection replies.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) sendJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(payload)
}

type connMeta struct {
	UserID   int64
	Username string
	Client   *wsClient
}

// RoomManager tracks websocket connections, their user identities, and which
// room each connection currently has open. It is constructed once and
// injected into the handlers that need it.
type RoomManager struct {
	mu sync.RWMutex
	// roomID -> connID set
	rooms map[string]map[string]struct{}
	// connID -> identity + connection
	conns map[string]*connMeta
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]*connMeta),
	}
}

// Register stores a newly identified connection. Returns true if this is the
// user's first live connection (the user just came online).
func (m *RoomManager) Register(connID string, userID int64, username string, client *wsClient) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	wasOnline := m.userOnlineLocked(userID)
	m.conns[connID] = &connMeta{UserID: userID, Username: username, Client: client}
	return !wasOnline
}

// Unregister drops a connection, removing it from any room. Returns the
// user ID, the rooms the connection was in, and whether this was the user's
// last connection (the user just went offline).
func (m *RoomManager) Unregister(connID string) (userID int64, rooms []string, wasLast bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok := m.conns[connID]
	if !ok {
		return 0, nil, false
	}
	userID = meta.UserID

	for room, conns := range m.rooms {
		if _, in := conns[connID]; in {
			delete(conns, connID)
			rooms = append(rooms, room)
			if len(conns) == 0 {
				delete(m.rooms, room)
			}
		}
	}
	delete(m.conns, connID)

	return userID, rooms, !m.userOnlineLocked(userID)
}

// Join scopes a connection to a room.
func (m *RoomManager) Join(room, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[room]; !ok {
		m.rooms[room] = make(map[string]struct{})
	}
	m.rooms[room][connID] = struct{}{}
}

// Leave removes a connection from a room without touching the connection.
func (m *RoomManager) Leave(room, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conns, ok := m.rooms[room]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(m.rooms, room)
		}
	}
}

// Broadcast sends an event to every connection in a room, optionally
// excluding one connection.
func (m *RoomManager) Broadcast(room string, event models.WSEvent, excludeConnID string) {
	for _, client := range m.roomClients(room, excludeConnID) {
		if err := client.sendJSON(event); err != nil {
			utils.LogError(err, "Broadcast")
		}
	}
}

func (m *RoomManager) roomClients(room, excludeConnID string) []*wsClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.rooms[room]
	if !ok {
		return nil
	}
	clients := make([]*wsClient, 0, len(conns))
	for connID := range conns {
		if connID == excludeConnID {
			continue
		}
		if meta, ok := m.conns[connID]; ok && meta.Client != nil {
			clients = append(clients, meta.Client)
		}
	}
	return clients
}

// BroadcastToAll sends an event to every live connection (global events,
// e.g. userOnlineStatusUpdate).
func (m *RoomManager) BroadcastToAll(event models.WSEvent) {
	m.mu.RLock()
	clients := make([]*wsClient, 0, len(m.conns))
	for _, meta := range m.conns {
		if meta.Client != nil {
			clients = append(clients, meta.Client)
		}
	}
	m.mu.RUnlock()

	for _, client := range clients {
		if err := client.sendJSON(event); err != nil {
			utils.LogError(err, "BroadcastToAll")
		}
	}
}

// SendToUser sends an event to all of a user's connections.
func (m *RoomManager) SendToUser(userID int64, event models.WSEvent) {
	m.mu.RLock()
	clients := make([]*wsClient, 0, 1)
	for _, meta := range m.conns {
		if meta.UserID == userID && meta.Client != nil {
			clients = append(clients, meta.Client)
		}
	}
	m.mu.RUnlock()

	for _, client := range clients {
		if err := client.sendJSON(event); err != nil {
			utils.LogError(err, "SendToUser")
		}
	}
}

// IsUserOnline reports whether the user has any live connection.
func (m *RoomManager) IsUserOnline(userID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userOnlineLocked(userID)
}

func (m *RoomManager) userOnlineLocked(userID int64) bool {
	for _, meta := range m.conns {
		if meta.UserID == userID {
			return true
		}
	}
	return false
}

// IsUserInRoom reports whether any of the user's connections has the room open.
func (m *RoomManager) IsUserInRoom(userID int64, room string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.rooms[room]
	if !ok {
		return false
	}
	for connID := range conns {
		if meta, ok := m.conns[connID]; ok && meta.UserID == userID {
			return true
		}
	}
	return false
}

// OnlineUsersInRoom returns the distinct user IDs with the room open.
func (m *RoomManager) OnlineUsersInRoom(room string) []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.rooms[room]
	if !ok {
		return []int64{}
	}
	seen := make(map[int64]struct{}, len(conns))
	ids := make([]int64, 0, len(conns))
	for connID := range conns {
		meta, ok := m.conns[connID]
		if !ok {
			continue
		}
		if _, dup := seen[meta.UserID]; dup {
			continue
		}
		seen[meta.UserID] = struct{}{}
		ids = append(ids, meta.UserID)
	}
	return ids
}
