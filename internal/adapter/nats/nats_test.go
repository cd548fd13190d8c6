package nats

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/ssepush/internal/adapter/natskv"
	"github.com/Strob0t/ssepush/internal/logger"
	"github.com/Strob0t/ssepush/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

// uniqueSubject keeps parallel runs against a shared server apart.
func uniqueSubject(t *testing.T) string {
	t.Helper()
	return "push.test." + t.Name() + "." + time.Now().Format("150405.000000000")
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	var (
		mu       sync.Mutex
		received messagequeue.Message
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, msg messagequeue.Message) error {
		mu.Lock()
		received = msg
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, "msg-1", []byte(`{"message":"hello-nats"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()

	if received.Subject != subject {
		t.Errorf("subject = %q, want %q", received.Subject, subject)
	}
	if received.ID != "msg-1" {
		t.Errorf("msg id = %q, want %q", received.ID, "msg-1")
	}
	if string(received.Data) != `{"message":"hello-nats"}` {
		t.Errorf("data = %q", received.Data)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	const wantReqID = "req-abc-123"

	var (
		mu       sync.Mutex
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ messagequeue.Message) error {
		mu.Lock()
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, "", []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()

	if gotReqID != wantReqID {
		t.Errorf("request ID = %q, want %q", gotReqID, wantReqID)
	}
}

func TestQueue_UnsubscribeStopsDelivery(t *testing.T) {
	q := testConnect(t)
	subject := uniqueSubject(t)

	var (
		mu    sync.Mutex
		count int
	)
	stop, err := q.Subscribe(context.Background(), subject, func(context.Context, messagequeue.Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	stop()

	if err := q.Publish(context.Background(), subject, "", []byte(`{}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("expected no deliveries after unsubscribe, got %d", count)
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)
	if !q.IsConnected() {
		t.Fatal("expected connected queue")
	}
}

func TestQueue_KeyValueDedupe(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "test_dedupe", time.Minute)
	if err != nil {
		t.Fatalf("KeyValue: %v", err)
	}
	c := natskv.New(kv)

	key := "trigger:" + t.Name() + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { _ = c.Delete(ctx, key) })

	stored, err := c.SetIfAbsent(ctx, key, []byte{1}, time.Minute)
	if err != nil || !stored {
		t.Fatalf("first claim: stored=%v err=%v", stored, err)
	}
	stored, err = c.SetIfAbsent(ctx, key, []byte{1}, time.Minute)
	if err != nil || stored {
		t.Fatalf("second claim: stored=%v err=%v", stored, err)
	}
	if _, found, err := c.Get(ctx, key); err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
}
