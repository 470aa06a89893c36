package interfaces

import "chatrelay/pkg/types"

// Connection is one live client connection as seen by the delivery layer.
type Connection interface {
	// ID returns the transport-assigned connection id.
	ID() types.ConnectionID

	// Send queues an event for the client. It must not block; a connection
	// that cannot accept the event returns an error.
	Send(event types.Event) error

	// Close closes the connection and releases its resources.
	Close() error
}

// Deliverer is the transport's delivery primitive: one connection, all of
// them, or all but one.
type Deliverer interface {
	Deliver(delivery types.Delivery) error
}
