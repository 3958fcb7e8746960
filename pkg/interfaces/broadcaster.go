package interfaces

import "codeduel/pkg/types"

// Broadcaster delivers server events to room members or single connections.
// Membership is tracked per connection, so a participant that reconnects
// must be resubscribed under its new connection ID.
type Broadcaster interface {
	// Subscribe adds a connection to a room's delivery group.
	Subscribe(roomID, connectionID string)

	// Unsubscribe removes a connection from a room's delivery group.
	Unsubscribe(roomID, connectionID string)

	// ToRoom delivers an event to every member of the room.
	ToRoom(roomID string, event *types.ServerEvent)

	// ToRoomExcept delivers an event to every member of the room except one connection.
	ToRoomExcept(roomID, exceptConnectionID string, event *types.ServerEvent)

	// ToConnection delivers an event to exactly one connection.
	ToConnection(connectionID string, event *types.ServerEvent) error
}
