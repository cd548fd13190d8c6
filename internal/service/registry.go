package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	pushotel "github.com/Strob0t/ssepush/internal/adapter/otel"
	"github.com/Strob0t/ssepush/internal/domain/connection"
	"github.com/Strob0t/ssepush/internal/domain/event"
	"github.com/Strob0t/ssepush/internal/port/stream"
)

// Connection is one registered client stream. The registry owns the stream;
// other components only borrow it for the duration of a write.
type Connection struct {
	connection.Info
	stream stream.Stream
}

// Done is closed when the connection's stream has been closed, whichever
// side closed it.
func (c *Connection) Done() <-chan struct{} {
	return c.stream.Done()
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Retry is the reconnect hint written in the handshake event.
	Retry time.Duration
	// HandshakeMessage is the payload of the handshake event.
	HandshakeMessage string
	// Metrics is optional.
	Metrics *pushotel.Metrics
}

// Registry maps user ids to their live stream. It has no global lock: the
// map is a sync.Map and the live count an atomic that is adjusted only after
// a successful map mutation, so it never drifts from the map but may lag it
// briefly.
type Registry struct {
	conns sync.Map // user id -> *Connection
	live  atomic.Int64

	retry     time.Duration
	handshake string
	metrics   *pushotel.Metrics
	now       func() time.Time // for testing
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOptions) *Registry {
	return &Registry{
		retry:     opts.Retry,
		handshake: opts.HandshakeMessage,
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// Connect writes the handshake event to s and registers it for userID.
// On any error s is closed and nothing is registered. A previous stream for
// the same user is replaced and closed.
func (r *Registry) Connect(ctx context.Context, userID string, s stream.Stream) (*Connection, error) {
	if err := connection.ValidateUserID(userID); err != nil {
		_ = s.Close()
		return nil, err
	}

	ctx, span := pushotel.StartConnectSpan(ctx, userID, s.Transport())
	defer span.End()

	conn := &Connection{
		Info: connection.Info{
			ID:          uuid.NewString(),
			UserID:      userID,
			Transport:   s.Transport(),
			ConnectedAt: r.now().UTC(),
		},
		stream: s,
	}

	if err := s.Send(ctx, event.Handshake(r.retry, r.handshake)); err != nil {
		_ = s.Close()
		r.metrics.RecordHandshakeFailure(ctx)
		slog.WarnContext(ctx, "stream handshake failed", "user_id", userID, "transport", conn.Transport, "error", err)
		return nil, fmt.Errorf("%w: %w", connection.ErrHandshakeFailed, err)
	}

	prev, replaced := r.conns.Swap(userID, conn)
	if replaced {
		// The count is unchanged: one connection out, one in.
		r.close(ctx, prev.(*Connection), connection.ReasonReplaced)
	} else {
		r.live.Add(1)
	}

	r.metrics.RecordConnect(ctx, conn.Transport)
	slog.InfoContext(ctx, "stream connected",
		"user_id", userID,
		"connection_id", conn.ID,
		"transport", conn.Transport,
		"replaced", replaced,
	)
	return conn, nil
}

// Release ends conn for the given lifecycle reason. It removes the registry
// entry only if it still holds conn, so a late completion of a replaced
// stream never evicts its successor. Reports whether the entry was removed.
func (r *Registry) Release(ctx context.Context, conn *Connection, reason connection.CloseReason) bool {
	if r.conns.CompareAndDelete(conn.UserID, conn) {
		r.live.Add(-1)
		r.close(ctx, conn, reason)
		return true
	}
	_ = conn.stream.Close()
	return false
}

// RemoveUser removes and closes the stream registered for userID, if any.
// Removing an absent user is a no-op for both the map and the count.
func (r *Registry) RemoveUser(ctx context.Context, userID string) bool {
	v, ok := r.conns.LoadAndDelete(userID)
	if !ok {
		slog.DebugContext(ctx, "remove of unknown user ignored", "user_id", userID)
		return false
	}
	r.live.Add(-1)
	r.close(ctx, v.(*Connection), connection.ReasonRemoved)
	return true
}

// Lookup returns the connection registered for userID.
func (r *Registry) Lookup(userID string) (*Connection, bool) {
	v, ok := r.conns.Load(userID)
	if !ok {
		return nil, false
	}
	return v.(*Connection), true
}

// IDs returns a point-in-time list of registered user ids, in no particular order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, r.UserCount())
	r.conns.Range(func(key, _ any) bool {
		ids = append(ids, key.(string))
		return true
	})
	return ids
}

// Connections returns a point-in-time description of every registered connection.
func (r *Registry) Connections() []connection.Info {
	infos := make([]connection.Info, 0, r.UserCount())
	r.conns.Range(func(_, v any) bool {
		infos = append(infos, v.(*Connection).Info)
		return true
	})
	return infos
}

// Snapshot returns the currently registered connections.
func (r *Registry) Snapshot() []*Connection {
	conns := make([]*Connection, 0, r.UserCount())
	r.conns.Range(func(_, v any) bool {
		conns = append(conns, v.(*Connection))
		return true
	})
	return conns
}

// UserCount returns the live connection count.
func (r *Registry) UserCount() int {
	return int(r.live.Load())
}

// Close removes and closes every registered connection.
func (r *Registry) Close(ctx context.Context) {
	r.conns.Range(func(key, v any) bool {
		if r.conns.CompareAndDelete(key, v) {
			r.live.Add(-1)
			r.close(ctx, v.(*Connection), connection.ReasonShutdown)
		}
		return true
	})
}

// close releases conn's stream after it left the map.
func (r *Registry) close(ctx context.Context, conn *Connection, reason connection.CloseReason) {
	if err := conn.stream.Close(); err != nil {
		slog.DebugContext(ctx, "stream close failed", "user_id", conn.UserID, "error", err)
	}
	r.metrics.RecordDisconnect(ctx, string(reason))
	slog.InfoContext(ctx, "stream disconnected",
		"user_id", conn.UserID,
		"connection_id", conn.ID,
		"reason", string(reason),
		"duration_ms", r.now().Sub(conn.ConnectedAt).Milliseconds(),
	)
}
