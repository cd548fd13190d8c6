package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	pushotel "github.com/Strob0t/ssepush/internal/adapter/otel"
	"github.com/Strob0t/ssepush/internal/domain/connection"
	"github.com/Strob0t/ssepush/internal/domain/event"
	"github.com/Strob0t/ssepush/internal/port/broadcast"
)

// Push modes, used as metric and span attributes.
const (
	modeUser      = "user"
	modeBatch     = "batch"
	modeBroadcast = "broadcast"
)

var _ broadcast.Pusher = (*Dispatcher)(nil)

// Dispatcher writes messages to registered streams. Delivery is best-effort
// and at-most-once: a failed write evicts that connection and is never
// retried or reported to the caller.
type Dispatcher struct {
	registry    *Registry
	maxParallel int
	metrics     *pushotel.Metrics
}

// NewDispatcher creates a Dispatcher over registry. maxParallel bounds the
// number of concurrent writes during a batch or broadcast.
func NewDispatcher(registry *Registry, maxParallel int, metrics *pushotel.Metrics) *Dispatcher {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Dispatcher{
		registry:    registry,
		maxParallel: maxParallel,
		metrics:     metrics,
	}
}

// SendMessage pushes message as plain text to userID. Unknown users are ignored.
func (d *Dispatcher) SendMessage(ctx context.Context, userID, message string) {
	ctx = context.WithoutCancel(ctx)
	conn, ok := d.registry.Lookup(userID)
	if !ok {
		slog.DebugContext(ctx, "push to unknown user ignored", "user_id", userID)
		return
	}
	d.deliver(ctx, conn, event.Text(message), modeUser)
}

// BatchSendMessage runs an independent SendMessage for every entry of
// userIDs, concurrently. Duplicates are delivered once per occurrence.
func (d *Dispatcher) BatchSendMessage(ctx context.Context, userIDs []string, message string) {
	ctx, span := pushotel.StartPushSpan(context.WithoutCancel(ctx), modeBatch, len(userIDs))
	defer span.End()
	d.metrics.RecordFanout(ctx, modeBatch, len(userIDs))

	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for _, id := range userIDs {
		g.Go(func() error {
			d.SendMessage(ctx, id, message)
			return nil
		})
	}
	_ = g.Wait()
}

// Broadcast pushes message, hinted as JSON, to every connection registered
// when the call starts.
func (d *Dispatcher) Broadcast(ctx context.Context, message string) {
	conns := d.registry.Snapshot()

	ctx, span := pushotel.StartPushSpan(context.WithoutCancel(ctx), modeBroadcast, len(conns))
	defer span.End()
	d.metrics.RecordFanout(ctx, modeBroadcast, len(conns))

	ev := event.JSON(message)
	var failed atomic.Int64

	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for _, conn := range conns {
		g.Go(func() error {
			if !d.deliver(ctx, conn, ev, modeBroadcast) {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.DebugContext(ctx, "broadcast complete",
		"recipients", len(conns),
		"failed", failed.Load(),
	)
}

// deliver writes ev to conn and evicts conn when the write fails.
func (d *Dispatcher) deliver(ctx context.Context, conn *Connection, ev event.Event, mode string) bool {
	err := conn.stream.Send(ctx, ev)
	d.metrics.RecordDelivery(ctx, mode, err)
	if err != nil {
		slog.WarnContext(ctx, "push failed, evicting connection",
			"user_id", conn.UserID,
			"connection_id", conn.ID,
			"mode", mode,
			"error", err,
		)
		d.registry.Release(ctx, conn, connection.ReasonEvicted)
		return false
	}
	return true
}
