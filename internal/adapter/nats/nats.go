// Package nats implements the message queue port over core NATS. Push
// triggers are fire-and-forget: subscriptions are not durable and messages
// are never acknowledged or redelivered.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/ssepush/internal/logger"
	"github.com/Strob0t/ssepush/internal/port/messagequeue"
)

const (
	clientName      = "ssepush"
	headerRequestID = "X-Request-ID"
	reconnectWait   = 2 * time.Second
)

var _ messagequeue.Subscriber = (*Queue)(nil)

// Queue implements messagequeue.Subscriber using a core NATS connection.
type Queue struct {
	nc *nats.Conn
}

// Connect establishes a connection to NATS. The client reconnects forever
// in the background; subscriptions survive reconnects.
func Connect(ctx context.Context, url string) (*Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	nc, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			slog.Error("nats async error", "subject", subject, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	slog.Info("nats connected", "url", nc.ConnectedUrlRedacted())
	return &Queue{nc: nc}, nil
}

// Publish sends data to subject. A non-empty msgID is carried in the
// Nats-Msg-Id header so subscribers can drop replays; the request id in ctx
// travels in X-Request-ID.
func (q *Queue) Publish(ctx context.Context, subject, msgID string, data []byte) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header.Set(headerRequestID, reqID)
	}
	if err := q.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (q *Queue) Flush(ctx context.Context) error {
	return q.nc.FlushWithContext(ctx)
}

// Subscribe registers handler for messages on subject. Handler errors are
// logged and the message is dropped. Messages are handled one at a time in
// arrival order.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	base := context.WithoutCancel(ctx)

	sub, err := q.nc.Subscribe(subject, func(m *nats.Msg) {
		msgCtx := base
		msg := messagequeue.Message{Subject: m.Subject, Data: m.Data}
		if m.Header != nil {
			msg.ID = m.Header.Get(nats.MsgIdHdr)
			if reqID := m.Header.Get(headerRequestID); reqID != "" {
				msgCtx = logger.WithRequestID(msgCtx, reqID)
			}
		}

		if err := handler(msgCtx, msg); err != nil {
			slog.WarnContext(msgCtx, "push trigger dropped",
				"subject", m.Subject,
				"msg_id", msg.ID,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil && q.nc.IsConnected() {
			slog.Debug("nats unsubscribe failed", "subject", subject, "error", err)
		}
	}, nil
}

// KeyValue returns the JetStream KV bucket with the given name, creating it
// when missing. Entries expire after ttl.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	js, err := jetstream.New(q.nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		Storage: jetstream.MemoryStorage,
		History: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("nats kv %s: %w", bucket, err)
	}
	return kv, nil
}

// Drain lets in-flight handlers finish, then closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
