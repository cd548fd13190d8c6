package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/ssepush/internal/domain"
	"github.com/Strob0t/ssepush/internal/domain/connection"
)

func newTestRegistry() *Registry {
	return NewRegistry(RegistryOptions{
		Retry:            5 * time.Second,
		HandshakeMessage: "connected",
	})
}

func mustConnect(t *testing.T, r *Registry, userID string, s *mockStream) *Connection {
	t.Helper()
	conn, err := r.Connect(context.Background(), userID, s)
	if err != nil {
		t.Fatalf("Connect(%q): %v", userID, err)
	}
	return conn
}

func TestRegistry_ConnectWritesHandshake(t *testing.T) {
	r := newTestRegistry()
	s := newMockStream()

	conn := mustConnect(t, r, "u1", s)

	hs, ok := s.handshake()
	if !ok {
		t.Fatal("expected handshake event")
	}
	if hs.Retry != 5*time.Second {
		t.Errorf("expected retry 5s, got %v", hs.Retry)
	}
	if hs.Data != "connected" {
		t.Errorf("expected handshake payload 'connected', got %q", hs.Data)
	}
	if hs.IsJSON() {
		t.Error("handshake must not carry the JSON hint")
	}
	if conn.ID == "" || conn.UserID != "u1" || conn.Transport != "mock" {
		t.Errorf("unexpected connection info: %+v", conn.Info)
	}
	if got := r.UserCount(); got != 1 {
		t.Errorf("expected count 1, got %d", got)
	}
}

func TestRegistry_ConnectInvalidUserID(t *testing.T) {
	r := newTestRegistry()
	s := newMockStream()

	_, err := r.Connect(context.Background(), "", s)
	if !errors.Is(err, connection.ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected domain.ErrValidation, got %v", err)
	}
	if !s.closed() {
		t.Error("expected rejected stream to be closed")
	}
	if r.UserCount() != 0 || len(r.IDs()) != 0 {
		t.Error("expected nothing registered")
	}
}

func TestRegistry_HandshakeFailureNotRegistered(t *testing.T) {
	r := newTestRegistry()
	s := newMockStream()
	s.sendErr = errBrokenPipe

	_, err := r.Connect(context.Background(), "u1", s)
	if !errors.Is(err, connection.ErrHandshakeFailed) {
		t.Fatalf("expected ErrHandshakeFailed, got %v", err)
	}
	if !errors.Is(err, errBrokenPipe) {
		t.Fatalf("expected wrapped I/O error, got %v", err)
	}
	if !s.closed() {
		t.Error("expected stream closed after failed handshake")
	}
	if got := r.IDs(); len(got) != 0 {
		t.Errorf("expected no ids, got %v", got)
	}
	if got := r.UserCount(); got != 0 {
		t.Errorf("expected count 0, got %d", got)
	}
}

func TestRegistry_ConnectThenRemove(t *testing.T) {
	r := newTestRegistry()
	s := newMockStream()
	mustConnect(t, r, "u1", s)

	if !r.RemoveUser(context.Background(), "u1") {
		t.Fatal("expected RemoveUser to report removal")
	}
	if got := r.IDs(); len(got) != 0 {
		t.Errorf("expected empty ids, got %v", got)
	}
	if got := r.UserCount(); got != 0 {
		t.Errorf("expected count 0, got %d", got)
	}
	if !s.closed() {
		t.Error("expected removed stream to be closed")
	}
}

// Removing an absent user must not move the counter. The connect/remove
// pair keeps count and map in step no matter how often remove repeats.
func TestRegistry_RemoveAbsentKeepsCount(t *testing.T) {
	r := newTestRegistry()
	mustConnect(t, r, "u1", newMockStream())

	if r.RemoveUser(context.Background(), "ghost") {
		t.Fatal("expected no removal for unknown user")
	}
	if got := r.UserCount(); got != 1 {
		t.Fatalf("expected count 1 after removing unknown user, got %d", got)
	}

	r.RemoveUser(context.Background(), "u1")
	r.RemoveUser(context.Background(), "u1")
	if got := r.UserCount(); got != 0 {
		t.Fatalf("expected count 0 after repeated removal, got %d", got)
	}
}

func TestRegistry_DuplicateConnectReplaces(t *testing.T) {
	r := newTestRegistry()
	first := newMockStream()
	second := newMockStream()

	mustConnect(t, r, "u1", first)
	conn2 := mustConnect(t, r, "u1", second)

	ids := r.IDs()
	if len(ids) != 1 || ids[0] != "u1" {
		t.Fatalf("expected exactly one u1 entry, got %v", ids)
	}
	if got := r.UserCount(); got != 1 {
		t.Errorf("expected count 1, got %d", got)
	}
	if !first.closed() {
		t.Error("expected replaced stream to be closed")
	}
	if second.closed() {
		t.Error("new stream must stay open")
	}
	if got, _ := r.Lookup("u1"); got != conn2 {
		t.Error("expected lookup to return the newest connection")
	}
}

func TestRegistry_ReleaseOfReplacedKeepsSuccessor(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	old := mustConnect(t, r, "u1", newMockStream())
	fresh := mustConnect(t, r, "u1", newMockStream())

	// The old transport notices its stream closed and reports completion.
	if r.Release(ctx, old, connection.ReasonCompletion) {
		t.Fatal("release of a replaced connection must not remove the entry")
	}
	if got, ok := r.Lookup("u1"); !ok || got != fresh {
		t.Fatal("expected successor to remain registered")
	}
	if got := r.UserCount(); got != 1 {
		t.Errorf("expected count 1, got %d", got)
	}
}

func TestRegistry_ReleaseReasons(t *testing.T) {
	reasons := []connection.CloseReason{
		connection.ReasonCompletion,
		connection.ReasonTimeout,
		connection.ReasonError,
	}
	for _, reason := range reasons {
		t.Run(string(reason), func(t *testing.T) {
			r := newTestRegistry()
			s := newMockStream()
			conn := mustConnect(t, r, "u1", s)

			if !r.Release(context.Background(), conn, reason) {
				t.Fatal("expected release to remove the entry")
			}
			if r.UserCount() != 0 || len(r.IDs()) != 0 {
				t.Error("expected registry empty after release")
			}
			if !s.closed() {
				t.Error("expected stream closed after release")
			}

			// A second lifecycle event for the same connection is a no-op.
			if r.Release(context.Background(), conn, reason) {
				t.Error("expected second release to be a no-op")
			}
			if got := r.UserCount(); got != 0 {
				t.Errorf("expected count 0, got %d", got)
			}
		})
	}
}

func TestRegistry_ConnectionsAndSnapshot(t *testing.T) {
	r := newTestRegistry()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	mustConnect(t, r, "u1", newMockStream())
	mustConnect(t, r, "u2", newMockStream())

	infos := r.Connections()
	if len(infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(infos))
	}
	for _, info := range infos {
		if !info.ConnectedAt.Equal(fixed) {
			t.Errorf("expected connected_at %v, got %v", fixed, info.ConnectedAt)
		}
	}
	if got := len(r.Snapshot()); got != 2 {
		t.Errorf("expected snapshot of 2, got %d", got)
	}
}

func TestRegistry_Close(t *testing.T) {
	r := newTestRegistry()
	streams := []*mockStream{newMockStream(), newMockStream(), newMockStream()}
	for i, s := range streams {
		mustConnect(t, r, fmt.Sprintf("u%d", i), s)
	}

	r.Close(context.Background())

	if got := r.UserCount(); got != 0 {
		t.Errorf("expected count 0 after close, got %d", got)
	}
	for i, s := range streams {
		if !s.closed() {
			t.Errorf("stream %d not closed", i)
		}
	}
}

func TestRegistry_ConcurrentConnectRemove(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	const users = 200
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i)
			if _, err := r.Connect(ctx, id, newMockStream()); err != nil {
				t.Errorf("Connect(%s): %v", id, err)
			}
			if i%2 == 0 {
				r.RemoveUser(ctx, id)
			}
		}()
	}
	wg.Wait()

	ids := r.IDs()
	if len(ids) != users/2 {
		t.Fatalf("expected %d ids, got %d", users/2, len(ids))
	}
	if got := r.UserCount(); got != users/2 {
		t.Fatalf("expected count %d, got %d", users/2, got)
	}
	slices.Sort(ids)
	if len(slices.Compact(ids)) != users/2 {
		t.Fatal("expected no duplicate ids")
	}
}

func TestRegistry_ConcurrentSameUser(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Connect(ctx, "shared", newMockStream())
		}()
	}
	wg.Wait()

	if got := r.UserCount(); got != 1 {
		t.Fatalf("expected count 1, got %d", got)
	}
	if ids := r.IDs(); len(ids) != 1 {
		t.Fatalf("expected one id, got %v", ids)
	}
}
