// Package messagequeue defines the port for receiving push triggers from a
// message bus.
package messagequeue

import "context"

// Message is one trigger received from the bus.
type Message struct {
	Subject string
	// ID is the publisher-assigned message id (Nats-Msg-Id), empty when unset.
	ID   string
	Data []byte
}

// Handler processes a message received on a subject.
type Handler func(ctx context.Context, msg Message) error

// Subscriber is the port interface for consuming push triggers.
type Subscriber interface {
	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the connection immediately.
	Close() error

	// IsConnected reports whether the bus is currently connected.
	IsConnected() bool
}

// Subjects carrying push triggers. Delivery is at-most-once: triggers are
// not persisted or acknowledged.
const (
	SubjectPushUser      = "push.user"
	SubjectPushBatch     = "push.batch"
	SubjectPushBroadcast = "push.broadcast"
)

// Subjects lists every push subject, in subscription order.
var Subjects = []string{SubjectPushUser, SubjectPushBatch, SubjectPushBroadcast}
