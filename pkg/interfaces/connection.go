package interfaces

// Connection is one live client socket. Identity is unset until the client
// sends identify.
type Connection interface {
	// WriteJSON queues v for delivery. Safe for concurrent use.
	WriteJSON(v interface{}) error

	Close() error

	// ID is an opaque handle assigned at accept time.
	ID() string

	ClientType() string
	Source() string
	IsIdentified() bool

	// SetIdentity records the identity declared by identify. It may be
	// called again to re-identify.
	SetIdentity(clientType, source string)
}
