package interfaces

import "context"

// EventDispatcher consumes frames read from a connection.
// FUNCTIONAL DISCOVERY: Dispatch is called synchronously from the connection's
// read loop, so frames from one connection are handled in arrival order
type EventDispatcher interface {
	// Dispatch decodes and handles one inbound frame
	Dispatch(ctx context.Context, conn Connection, frame []byte)

	// Disconnect is called exactly once after the read loop exits
	Disconnect(connID string)
}
