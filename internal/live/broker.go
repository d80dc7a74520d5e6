package live

import (
	"context"
	"errors"
)

var (
	// ErrBrokerClosed is returned by a broker after Close.
	ErrBrokerClosed = errors.New("live: broker closed")
	// ErrInvalidSubject is returned for empty subjects and patterns.
	ErrInvalidSubject = errors.New("live: invalid subject")
)

// Message is a payload received on a subject.
type Message struct {
	Subject string
	Data    []byte
}

// Broker routes raw payloads by subject. Patterns passed to Subscribe use
// NATS wildcards: "*" matches one token, a trailing ">" matches the rest.
type Broker interface {
	// Name identifies the backend in metrics and logs.
	Name() string
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe returns a channel of matching messages and a function that
	// ends the subscription. The channel is closed once the subscription
	// ends, either through that function or through ctx.
	Subscribe(ctx context.Context, pattern string, bufSize int) (<-chan Message, func(), error)
	Close() error
}
