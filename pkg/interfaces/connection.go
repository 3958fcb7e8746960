package interfaces

// Connection is a client transport that can receive server events.
// Implementations must make WriteJSON safe for concurrent use.
type Connection interface {
	// WriteJSON queues v for delivery as a JSON text frame.
	WriteJSON(v interface{}) error

	// Close closes the connection and releases its resources.
	Close() error

	// ID returns the server-assigned connection identity.
	ID() string
}
