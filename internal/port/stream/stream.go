// Package stream defines the port for a long-lived, write-only client stream.
package stream

import (
	"context"
	"errors"

	"github.com/Strob0t/ssepush/internal/domain/event"
)

// ErrClosed is returned by Send after the stream has been closed.
var ErrClosed = errors.New("stream: closed")

// Stream is an open push channel to one client. Implementations must allow
// Send, Close and Done to be called from multiple goroutines; concurrent
// Sends are serialized by the implementation.
type Stream interface {
	// Send writes and flushes one event. It blocks only on the underlying write.
	Send(ctx context.Context, ev event.Event) error

	// Close releases the stream. It is safe to call more than once.
	Close() error

	// Done is closed once the stream has been closed.
	Done() <-chan struct{}

	// Transport names the wire protocol, e.g. "sse" or "ws".
	Transport() string
}
