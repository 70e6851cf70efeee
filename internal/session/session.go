package session

import (
	"context"

	"github.com/matheus3301/wabridge/internal/event"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
)

// Presence is a chat presence state announced to a peer.
type Presence string

const (
	PresenceAvailable Presence = "available"
	PresenceComposing Presence = "composing"
	PresencePaused    Presence = "paused"
)

// ParticipantAction is a group membership change.
type ParticipantAction string

const (
	ParticipantAdd     ParticipantAction = "add"
	ParticipantRemove  ParticipantAction = "remove"
	ParticipantPromote ParticipantAction = "promote"
	ParticipantDemote  ParticipantAction = "demote"
)

// Media is an image to send by URL.
type Media struct {
	URL     string
	Caption string
}

// Session is one live connection to the messaging service. JIDs are passed as
// strings; implementations accept bare phone numbers as user JIDs.
type Session interface {
	Connect(ctx context.Context) error
	Close()
	IsRegistered() bool

	SendText(ctx context.Context, to, text string) (whatsmeow.SendResponse, error)
	SendMedia(ctx context.Context, to string, media Media) (whatsmeow.SendResponse, error)
	MarkRead(ctx context.Context, keys []event.MessageKey) error
	SubscribePresence(ctx context.Context, jid string) error
	SendPresence(ctx context.Context, jid string, p Presence) error
	UpdateGroupParticipants(ctx context.Context, group string, members []string, action ParticipantAction) ([]types.GroupParticipant, error)
	OnWhatsApp(ctx context.Context, numbers []string) ([]types.IsOnWhatsAppResponse, error)
	RequestPairingCode(ctx context.Context, phone string) (string, error)
}

// Sink receives every batch a session emits.
type Sink func(event.Batch)

// Factory opens a new, not yet connected, Session delivering events to sink.
type Factory interface {
	Open(ctx context.Context, sink Sink) (Session, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, sink Sink) (Session, error)

func (f FactoryFunc) Open(ctx context.Context, sink Sink) (Session, error) {
	return f(ctx, sink)
}

// Handler processes the batches of a session. ctx is the session's lifetime
// context: it is cancelled once the session is replaced or stopped.
type Handler interface {
	Process(ctx context.Context, sess Session, batch event.Batch)
}
