// Package messagequeue defines the message queue port and event schemas.
package messagequeue

import "context"

// Handler processes one received message.
type Handler func(subject string, data []byte) error

// Queue is the port interface for the message queue.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
	Close() error
}
