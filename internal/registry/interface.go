package registry

// Registry is the process-wide mapping from live connection IDs to the room
// each connection is currently subscribed to. Entries exist only for the
// lifetime of a connection and are never persisted.
type Registry interface {
	// Connect registers a connection with no room assigned yet.
	Connect(connID string)

	// Assign records that the connection is subscribed to roomID.
	Assign(connID, roomID string)

	// Get returns the room the connection is subscribed to. ok is false
	// when the connection is unknown or has no room assigned.
	Get(connID string) (roomID string, ok bool)

	// Remove drops the connection entry. Idempotent.
	Remove(connID string)

	// Len returns the number of registered connections.
	Len() int
}
