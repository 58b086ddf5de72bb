package network

import (
	"context"
	"errors"
)

var (
	ErrClosed           = errors.New("session closed")
	ErrSubscriberClosed = errors.New("subscriber closed")
)

// Message is the transport envelope used by the runtime.
type Message struct {
	Topic   string
	Payload []byte
}

// PubSub is a minimal interface for broadcast-style communication.
type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (<-chan Message, func(), error)
}

// Session is an open messaging context. Publishers and subscribers are
// declared on it; Close releases every subscription it handed out.
type Session interface {
	PubSub
	Close() error
}

// Opener opens a Session with the transport's default configuration.
type Opener func(ctx context.Context) (Session, error)
