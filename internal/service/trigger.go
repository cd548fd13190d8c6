package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/ssepush/internal/port/broadcast"
	"github.com/Strob0t/ssepush/internal/port/cache"
	"github.com/Strob0t/ssepush/internal/port/messagequeue"
)

const triggerKeyPrefix = "trigger:"

// TriggerService turns push triggers received from the message bus into
// dispatcher calls. Messages carrying an id are delivered at most once
// within the dedupe window.
type TriggerService struct {
	pusher broadcast.Pusher
	dedupe cache.Cache // optional
	ttl    time.Duration
}

// NewTriggerService creates a TriggerService. dedupe may be nil, in which
// case replayed message ids are delivered again.
func NewTriggerService(pusher broadcast.Pusher, dedupe cache.Cache, ttl time.Duration) *TriggerService {
	return &TriggerService{pusher: pusher, dedupe: dedupe, ttl: ttl}
}

// Start subscribes to every push subject on sub. The returned function
// cancels all subscriptions.
func (s *TriggerService) Start(ctx context.Context, sub messagequeue.Subscriber) (func(), error) {
	var cancels []func()
	stop := func() {
		for _, c := range cancels {
			c()
		}
	}

	for _, subject := range messagequeue.Subjects {
		cancel, err := sub.Subscribe(ctx, subject, s.Handle)
		if err != nil {
			stop()
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cancels = append(cancels, cancel)
	}

	slog.InfoContext(ctx, "push triggers subscribed", "subjects", messagequeue.Subjects)
	return stop, nil
}

// Handle decodes one trigger and pushes it. A malformed payload is
// returned as an error and nothing is pushed.
func (s *TriggerService) Handle(ctx context.Context, msg messagequeue.Message) error {
	payload, err := messagequeue.Decode(msg.Subject, msg.Data)
	if err != nil {
		return err
	}

	if dup, err := s.seen(ctx, msg.ID); err != nil {
		slog.WarnContext(ctx, "trigger dedupe unavailable", "msg_id", msg.ID, "error", err)
	} else if dup {
		slog.DebugContext(ctx, "duplicate trigger dropped", "subject", msg.Subject, "msg_id", msg.ID)
		return nil
	}

	switch p := payload.(type) {
	case *messagequeue.PushUserPayload:
		s.pusher.SendMessage(ctx, p.UserID, p.Message)
	case *messagequeue.PushBatchPayload:
		s.pusher.BatchSendMessage(ctx, p.UserIDs, p.Message)
	case *messagequeue.PushBroadcastPayload:
		s.pusher.Broadcast(ctx, p.Message)
	default:
		return errors.New("unhandled trigger payload")
	}
	return nil
}

// seen records id and reports whether it had been recorded before.
func (s *TriggerService) seen(ctx context.Context, id string) (bool, error) {
	if id == "" || s.dedupe == nil {
		return false, nil
	}
	stored, err := s.dedupe.SetIfAbsent(ctx, triggerKeyPrefix+id, []byte{1}, s.ttl)
	if err != nil {
		return false, err
	}
	return !stored, nil
}
