package service

import (
	"context"
	"errors"
	"sync"

	"github.com/Strob0t/ssepush/internal/domain/event"
	"github.com/Strob0t/ssepush/internal/port/stream"
)

var errBrokenPipe = errors.New("write: broken pipe")

// mockStream implements stream.Stream for testing.
type mockStream struct {
	mu      sync.Mutex
	events  []event.Event
	sendErr error
	// failAfter makes Send fail once this many events were accepted; 0 disables.
	failAfter int

	closeOnce sync.Once
	done      chan struct{}
}

func newMockStream() *mockStream {
	return &mockStream{done: make(chan struct{})}
}

// newFailingStream accepts the handshake, then fails every write.
func newFailingStream() *mockStream {
	s := newMockStream()
	s.failAfter = 1
	return s
}

func (m *mockStream) Send(_ context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.done:
		return stream.ErrClosed
	default:
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.failAfter > 0 && len(m.events) >= m.failAfter {
		return errBrokenPipe
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockStream) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *mockStream) Done() <-chan struct{} { return m.done }
func (m *mockStream) Transport() string     { return "mock" }

func (m *mockStream) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

// received returns every event after the handshake.
func (m *mockStream) received() []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return nil
	}
	return append([]event.Event(nil), m.events[1:]...)
}

func (m *mockStream) handshake() (event.Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return event.Event{}, false
	}
	return m.events[0], true
}
