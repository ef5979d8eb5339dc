package interfaces

import "context"

// EventDispatcher handles one raw inbound frame from a connection.
type EventDispatcher interface {
	Dispatch(ctx context.Context, conn Connection, data []byte)
}

// Task is a unit of work run on the event loop.
type Task func(ctx context.Context)

// Executor runs tasks sequentially with inbound event handling.
type Executor interface {
	Execute(name string, task Task) error
}
