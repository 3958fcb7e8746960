package broadcast

import (
	"time"

	"github.com/rs/zerolog"

	"codeduel/pkg/interfaces"
	"codeduel/pkg/types"
)

// ConnectionRegistry is the part of the websocket registry the bus needs.
type ConnectionRegistry interface {
	Get(id string) (interfaces.Connection, bool)
	Subscribe(roomID, connectionID string)
	Unsubscribe(roomID, connectionID string)
	RoomConnections(roomID string) []interfaces.Connection
}

// Bus fans server events out to room members. A failed write to one
// connection is logged and never stops delivery to the rest.
type Bus struct {
	registry ConnectionRegistry
	now      func() time.Time
	logger   zerolog.Logger
}

// NewBus creates a bus over registry.
func NewBus(registry ConnectionRegistry, logger zerolog.Logger) *Bus {
	return &Bus{
		registry: registry,
		now:      time.Now,
		logger:   logger.With().Str("component", "broadcast").Logger(),
	}
}

func (b *Bus) Subscribe(roomID, connectionID string) {
	b.registry.Subscribe(roomID, connectionID)
}

func (b *Bus) Unsubscribe(roomID, connectionID string) {
	b.registry.Unsubscribe(roomID, connectionID)
}

// ToRoom delivers event to every connection subscribed to roomID.
func (b *Bus) ToRoom(roomID string, event *types.ServerEvent) {
	b.deliver(roomID, "", event)
}

// ToRoomExcept delivers event to every subscriber of roomID other than exceptConnectionID.
func (b *Bus) ToRoomExcept(roomID, exceptConnectionID string, event *types.ServerEvent) {
	b.deliver(roomID, exceptConnectionID, event)
}

// ToConnection delivers event to a single connection.
func (b *Bus) ToConnection(connectionID string, event *types.ServerEvent) error {
	conn, ok := b.registry.Get(connectionID)
	if !ok {
		return interfaces.ErrConnectionNotFound
	}
	b.stamp(event)
	if err := conn.WriteJSON(event); err != nil {
		b.logger.Warn().Err(err).Str("connection_id", connectionID).Str("event", event.Type).Msg("direct delivery failed")
		return err
	}
	return nil
}

func (b *Bus) deliver(roomID, except string, event *types.ServerEvent) {
	b.stamp(event)
	if event.RoomID == "" {
		event.RoomID = roomID
	}

	delivered := 0
	for _, conn := range b.registry.RoomConnections(roomID) {
		if conn.ID() == except {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			b.logger.Warn().Err(err).
				Str("connection_id", conn.ID()).
				Str("room_id", roomID).
				Str("event", event.Type).
				Msg("room delivery failed")
			continue
		}
		delivered++
	}

	b.logger.Debug().Str("room_id", roomID).Str("event", event.Type).Int("delivered", delivered).Msg("broadcast")
}

func (b *Bus) stamp(event *types.ServerEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now()
	}
}
