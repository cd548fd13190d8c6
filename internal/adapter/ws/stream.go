// Package ws implements the stream port over WebSocket for clients that
// cannot use server-sent events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/ssepush/internal/domain/connection"
	"github.com/Strob0t/ssepush/internal/domain/event"
	"github.com/Strob0t/ssepush/internal/port/stream"
)

// Transport is the name reported by WebSocket streams.
const Transport = "ws"

// Options configures a Stream.
type Options struct {
	// WriteTimeout bounds each message write. Zero means no bound.
	WriteTimeout time.Duration
	// PingInterval is how often Wait pings the peer. Zero disables pings.
	PingInterval time.Duration
}

// Envelope is the JSON text frame carrying one event.
type Envelope struct {
	ID          string `json:"id,omitempty"`
	RetryMS     int64  `json:"retry_ms,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Data        string `json:"data"`
}

// Encode returns the wire form of ev.
func Encode(ev event.Event) ([]byte, error) {
	return json.Marshal(Envelope{
		ID:          ev.ID,
		RetryMS:     ev.Retry.Milliseconds(),
		ContentType: ev.ContentType,
		Data:        ev.Data,
	})
}

var _ stream.Stream = (*Stream)(nil)

// Stream is a write-only push channel over an accepted WebSocket. Messages
// sent by the client are discarded.
type Stream struct {
	conn *websocket.Conn
	opts Options

	mu        sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Accept upgrades the request and returns a Stream for it.
func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*Stream, error) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	return &Stream{
		conn: conn,
		opts: opts,
		done: make(chan struct{}),
	}, nil
}

// Send writes one event as a JSON text message.
func (s *Stream) Send(ctx context.Context, ev event.Event) error {
	data, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("websocket encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return stream.ErrClosed
	default:
	}

	if s.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close marks the stream closed, waits for an in-flight write and starts
// the closing handshake in the background.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		go func() { _ = s.conn.Close(websocket.StatusNormalClosure, "") }()
		s.mu.Unlock()
	})
	return nil
}

// Done is closed once Close has been called.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Transport returns "ws".
func (s *Stream) Transport() string {
	return Transport
}

// Wait reads and discards client frames until the stream ends and reports
// why, using the same reasons as the SSE transport.
func (s *Stream) Wait(ctx context.Context) connection.CloseReason {
	readCtx := s.conn.CloseRead(ctx)

	var tick <-chan time.Time
	if s.opts.PingInterval > 0 {
		t := time.NewTicker(s.opts.PingInterval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-s.done:
			return connection.ReasonCompletion
		case <-readCtx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return connection.ReasonTimeout
			}
			return connection.ReasonCompletion
		case <-tick:
			if err := s.ping(readCtx); err != nil {
				select {
				case <-s.done:
					return connection.ReasonCompletion
				default:
				}
				if readCtx.Err() != nil {
					continue
				}
				return connection.ReasonError
			}
		}
	}
}

func (s *Stream) ping(ctx context.Context) error {
	if s.opts.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.WriteTimeout)
		defer cancel()
	}
	return s.conn.Ping(ctx)
}
