package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/status"
	"go.uber.org/zap"
)

func newTestManager(f *fakeFactory, h Handler) *Manager {
	return NewManager(f, h, status.NewMachine(nil), zap.NewNop(), Options{RetryDelay: 50 * time.Millisecond})
}

func waitOpened(t *testing.T, f *fakeFactory) *fakeSession {
	t.Helper()
	select {
	case s := <-f.opened:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for session open")
		return nil
	}
}

func TestCurrentBeforeStart(t *testing.T) {
	m := newTestManager(newFakeFactory(), &recordingHandler{})
	if _, err := m.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() error = %v, want ErrNoSession", err)
	}
}

func TestStartInstallsSession(t *testing.T) {
	f := newFakeFactory()
	m := newTestManager(f, &recordingHandler{})
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s := waitOpened(t, f)

	cur, err := m.Current()
	if err != nil {
		t.Fatal(err)
	}
	if cur != s {
		t.Error("Current() is not the opened session")
	}
	if !s.connected {
		t.Error("session was not connected")
	}
	if m.Status() != status.Connecting {
		t.Errorf("status = %s, want CONNECTING", m.Status())
	}
}

func TestStartUnregisteredRequiresAuth(t *testing.T) {
	m := NewManager(FactoryFunc(func(ctx context.Context, sink Sink) (Session, error) {
		return &fakeSession{sink: sink}, nil
	}), &recordingHandler{}, nil, zap.NewNop(), Options{})
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.Status() != status.AuthRequired {
		t.Errorf("status = %s, want AUTH_REQUIRED", m.Status())
	}
}

func TestStartOpenError(t *testing.T) {
	f := newFakeFactory()
	f.openErr = errors.New("db locked")
	m := newTestManager(f, &recordingHandler{})
	defer m.Stop()

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error")
	}
	if _, err := m.Current(); !errors.Is(err, ErrNoSession) {
		t.Errorf("Current() error = %v, want ErrNoSession", err)
	}
}

func TestSinkDeliversWithSessionAndLifetime(t *testing.T) {
	f := newFakeFactory()
	h := &recordingHandler{}
	m := newTestManager(f, h)
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := waitOpened(t, f)
	s.sink(event.Of(event.CredsUpdate{}))

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(h.batches))
	}
	if h.from[0] != s {
		t.Error("batch delivered with wrong session")
	}
	if h.ctxs[0].Err() != nil {
		t.Error("lifetime context already cancelled")
	}
}

func TestReconnectReplacesSessionAndCancelsLifetime(t *testing.T) {
	f := newFakeFactory()
	h := &recordingHandler{}
	m := newTestManager(f, h)
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := waitOpened(t, f)
	first.sink(event.Of(event.ConnectionUpdate{Connection: event.ConnectionClose}))

	m.Reconnect(first)
	second := waitOpened(t, f)

	// Give the reconnect goroutine a moment to finish the swap.
	deadline := time.Now().Add(2 * time.Second)
	for !first.isClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !first.isClosed() {
		t.Error("replaced session was not closed")
	}
	cur, _ := m.Current()
	if cur != second {
		t.Error("Current() is not the reconnected session")
	}

	h.mu.Lock()
	firstCtx := h.ctxs[0]
	h.mu.Unlock()
	if firstCtx.Err() == nil {
		t.Error("lifetime context of the replaced session is still live")
	}
}

// TestReconnectIgnoresStaleSession verifies a close reported by a session
// that was already replaced does not open yet another session.
func TestReconnectIgnoresStaleSession(t *testing.T) {
	f := newFakeFactory()
	m := newTestManager(f, &recordingHandler{})
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := waitOpened(t, f)

	m.Reconnect(first)
	waitOpened(t, f)

	m.Reconnect(first)
	time.Sleep(100 * time.Millisecond)

	if got := f.count(); got != 2 {
		t.Errorf("opened %d sessions, want 2", got)
	}
}

func TestReconnectRetriesAfterConnectFailure(t *testing.T) {
	f := newFakeFactory()
	m := newTestManager(f, &recordingHandler{})
	defer m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	first := waitOpened(t, f)

	f.mu.Lock()
	f.connectErr = []error{errors.New("dial tcp: timeout")}
	f.mu.Unlock()

	m.Reconnect(first)
	waitOpened(t, f) // fails to connect
	third := waitOpened(t, f)

	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if cur, _ := m.Current(); cur == third {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("manager did not settle on the retried session")
}

func TestStopClosesSessionAndRejectsStart(t *testing.T) {
	f := newFakeFactory()
	m := newTestManager(f, &recordingHandler{})

	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := waitOpened(t, f)
	m.Stop()

	if !s.isClosed() {
		t.Error("session not closed on Stop")
	}
	if err := m.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}
}
