// Package sse implements the stream port over HTTP server-sent events.
package sse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Strob0t/ssepush/internal/domain/connection"
	"github.com/Strob0t/ssepush/internal/domain/event"
	"github.com/Strob0t/ssepush/internal/port/stream"
)

// Transport is the name reported by SSE streams.
const Transport = "sse"

// Options configures a Stream.
type Options struct {
	// WriteTimeout bounds each event write. Zero means no bound.
	WriteTimeout time.Duration
	// Heartbeat is the interval of keep-alive comments sent by Wait. Zero disables them.
	Heartbeat time.Duration
}

var _ stream.Stream = (*Stream)(nil)

// Stream writes events to an open text/event-stream response. The stream
// has no idle timeout; it ends when the client goes away, a write fails or
// Close is called.
type Stream struct {
	w    http.ResponseWriter
	rc   *http.ResponseController
	opts Options

	// mu serializes writes and guards against writing after Close.
	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewStream sends the event-stream response headers on w and returns a
// Stream for it. The handler that owns w must not return before the stream
// is closed.
func NewStream(w http.ResponseWriter, opts Options) (*Stream, error) {
	rc := http.NewResponseController(w)

	// The server's write timeout would cut the stream; each event sets its
	// own deadline instead.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("sse: clear write deadline: %w", err)
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream;charset=UTF-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("sse: flush headers: %w", err)
	}

	return &Stream{
		w:    w,
		rc:   rc,
		opts: opts,
		done: make(chan struct{}),
	}, nil
}

// Send writes and flushes one event.
func (s *Stream) Send(ctx context.Context, ev event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(Encode(ev))
}

// Close marks the stream closed and waits for an in-flight write to finish.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil
}

// Done is closed once Close has been called.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Transport returns "sse".
func (s *Stream) Transport() string {
	return Transport
}

// Wait blocks until the stream ends and reports why: the request context
// ending is a completion (client disconnect) or a timeout (deadline), a
// failed heartbeat is an error. A stream closed through Close reports
// completion; the registry already recorded the real reason.
func (s *Stream) Wait(ctx context.Context) connection.CloseReason {
	var tick <-chan time.Time
	if s.opts.Heartbeat > 0 {
		t := time.NewTicker(s.opts.Heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.done:
			return connection.ReasonCompletion
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return connection.ReasonTimeout
			}
			return connection.ReasonCompletion
		case <-tick:
			if err := s.write(heartbeatFrame); err != nil {
				if errors.Is(err, stream.ErrClosed) {
					return connection.ReasonCompletion
				}
				return connection.ReasonError
			}
		}
	}
}

func (s *Stream) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return stream.ErrClosed
	default:
	}

	if s.opts.WriteTimeout > 0 {
		_ = s.rc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
		defer func() { _ = s.rc.SetWriteDeadline(time.Time{}) }()
	}

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("sse write: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("sse flush: %w", err)
	}
	return nil
}
