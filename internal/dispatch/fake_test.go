package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/session"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

// fakeSession records the calls made against it in order.
type fakeSession struct {
	mu    sync.Mutex
	calls []string
	sent  chan string
	// block, when set, is waited on inside SubscribePresence.
	block chan struct{}

	// readErr is returned by MarkRead.
	readErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{sent: make(chan string, 64)}
}

func (f *fakeSession) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) Connect(context.Context) error { return nil }
func (f *fakeSession) Close()                        {}
func (f *fakeSession) IsRegistered() bool            { return true }

func (f *fakeSession) SendText(_ context.Context, to, text string) (whatsmeow.SendResponse, error) {
	f.record("send:" + to + ":" + text)
	f.sent <- to
	return whatsmeow.SendResponse{ID: "REPLY"}, nil
}

func (f *fakeSession) SendMedia(context.Context, string, session.Media) (whatsmeow.SendResponse, error) {
	return whatsmeow.SendResponse{}, nil
}

func (f *fakeSession) MarkRead(_ context.Context, keys []event.MessageKey) error {
	f.record(fmt.Sprintf("read:%s", keys[0].ID))
	return f.readErr
}

func (f *fakeSession) SubscribePresence(ctx context.Context, jid string) error {
	f.record("subscribe:" + jid)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func (f *fakeSession) SendPresence(_ context.Context, _ string, p session.Presence) error {
	f.record("presence:" + string(p))
	return nil
}

func (f *fakeSession) UpdateGroupParticipants(context.Context, string, []string, session.ParticipantAction) ([]types.GroupParticipant, error) {
	return nil, nil
}

func (f *fakeSession) OnWhatsApp(context.Context, []string) ([]types.IsOnWhatsAppResponse, error) {
	return nil, nil
}

func (f *fakeSession) RequestPairingCode(context.Context, string) (string, error) {
	return "", nil
}

type fakeReconnector struct {
	mu    sync.Mutex
	stale []session.Session
}

func (f *fakeReconnector) Reconnect(s session.Session) {
	f.mu.Lock()
	f.stale = append(f.stale, s)
	f.mu.Unlock()
}

func (f *fakeReconnector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stale)
}

// fakeCreds records saves and can observe the order relative to other events.
type fakeCreds struct {
	saves  int
	err    error
	onSave func()
}

func (f *fakeCreds) Save(context.Context) error {
	f.saves++
	if f.onSave != nil {
		f.onSave()
	}
	return f.err
}

type fakeMirror struct {
	batches []event.Batch
}

func (f *fakeMirror) Apply(b event.Batch) {
	f.batches = append(f.batches, b)
}
