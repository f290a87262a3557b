package interfaces

// Connection represents a client transport connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps room logic independent of the WebSocket layer
type Connection interface {
	// ID returns the server-assigned connection id. Rooms keep this id as a
	// weak reference and resolve it through a ConnectionRegistry at send time.
	ID() string

	// WriteJSON queues a JSON message for the client (thread-safe, non-blocking)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error
}

// ConnectionRegistry resolves connection ids to live connections.
// A missing id means the connection is gone and the send is skipped.
type ConnectionRegistry interface {
	Lookup(connID string) (Connection, bool)
}
