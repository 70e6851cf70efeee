package session

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/wabridge/internal/event"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

type fakeSession struct {
	mu         sync.Mutex
	id         int
	sink       Sink
	connectErr error
	connected  bool
	closed     bool
	registered bool
}

func (s *fakeSession) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectErr != nil {
		return s.connectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) IsRegistered() bool { return s.registered }

func (s *fakeSession) SendText(context.Context, string, string) (whatsmeow.SendResponse, error) {
	return whatsmeow.SendResponse{}, errors.New("not implemented")
}

func (s *fakeSession) SendMedia(context.Context, string, Media) (whatsmeow.SendResponse, error) {
	return whatsmeow.SendResponse{}, errors.New("not implemented")
}

func (s *fakeSession) MarkRead(context.Context, []event.MessageKey) error        { return nil }
func (s *fakeSession) SubscribePresence(context.Context, string) error           { return nil }
func (s *fakeSession) SendPresence(context.Context, string, Presence) error      { return nil }
func (s *fakeSession) RequestPairingCode(context.Context, string) (string, error) { return "", nil }

func (s *fakeSession) UpdateGroupParticipants(context.Context, string, []string, ParticipantAction) ([]types.GroupParticipant, error) {
	return nil, nil
}

func (s *fakeSession) OnWhatsApp(context.Context, []string) ([]types.IsOnWhatsAppResponse, error) {
	return nil, nil
}

type fakeFactory struct {
	mu         sync.Mutex
	sessions   []*fakeSession
	openErr    error
	connectErr []error // consumed per open
	opened     chan *fakeSession
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{opened: make(chan *fakeSession, 16)}
}

func (f *fakeFactory) Open(_ context.Context, sink Sink) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeSession{id: len(f.sessions) + 1, sink: sink, registered: true}
	if len(f.connectErr) > 0 {
		s.connectErr = f.connectErr[0]
		f.connectErr = f.connectErr[1:]
	}
	f.sessions = append(f.sessions, s)
	f.opened <- s
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

type recordingHandler struct {
	mu      sync.Mutex
	batches []event.Batch
	ctxs    []context.Context
	from    []Session
}

func (h *recordingHandler) Process(ctx context.Context, sess Session, b event.Batch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batches = append(h.batches, b)
	h.ctxs = append(h.ctxs, ctx)
	h.from = append(h.from, sess)
}
