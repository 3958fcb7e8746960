package websocket

import (
	"sync"

	"codeduel/pkg/interfaces"
)

// Registry tracks live connections and which rooms each one receives
// broadcasts for. It holds no room state of its own.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection // connectionID -> Connection
	rooms       map[string]map[string]struct{}   // roomID -> connectionIDs
	memberships map[string]map[string]struct{}   // connectionID -> roomIDs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Register adds a connection under its ID.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.ID()]; exists {
		return ErrDuplicateConnection
	}
	r.connections[conn.ID()] = conn
	return nil
}

// Unregister removes a connection and all of its room subscriptions.
// Only the instance that was registered can remove itself.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	registered, exists := r.connections[id]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, id)

	for roomID := range r.memberships[id] {
		r.removeMemberLocked(roomID, id)
	}
	delete(r.memberships, id)
}

// Get returns the connection registered under id.
func (r *Registry) Get(id string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.connections[id]
	return conn, ok
}

// Subscribe adds a connection to a room's delivery group. Unknown
// connections are ignored so a late subscribe cannot resurrect a closed socket.
func (r *Registry) Subscribe(roomID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connectionID]; !ok {
		return
	}
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][connectionID] = struct{}{}

	if r.memberships[connectionID] == nil {
		r.memberships[connectionID] = make(map[string]struct{})
	}
	r.memberships[connectionID][roomID] = struct{}{}
}

// Unsubscribe removes a connection from a room's delivery group.
func (r *Registry) Unsubscribe(roomID, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeMemberLocked(roomID, connectionID)
	if rooms, ok := r.memberships[connectionID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.memberships, connectionID)
		}
	}
}

func (r *Registry) removeMemberLocked(roomID, connectionID string) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// RoomConnections returns the connections subscribed to roomID.
func (r *Registry) RoomConnections(roomID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	conns := make([]interfaces.Connection, 0, len(members))
	for id := range members {
		if conn, ok := r.connections[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// GetStats returns counts for health reporting.
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"subscribed_rooms":  len(r.rooms),
	}
}
