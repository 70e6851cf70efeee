// Package event defines the typed events a messaging session emits. A Batch
// groups the events delivered together; consumers switch on the concrete type.
package event

import (
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
)

// Event is implemented by every variant below. The unexported method closes the set.
type Event interface {
	eventName() string
}

// Name returns the wire-style name of an event, e.g. "connection.update".
func Name(e Event) string {
	return e.eventName()
}

// Batch is one delivery unit of the event stream.
type Batch struct {
	Events []Event
}

// Of builds a batch from the given events.
func Of(events ...Event) Batch {
	return Batch{Events: events}
}

// Connection is the coarse connection phase reported by ConnectionUpdate.
type Connection string

const (
	ConnectionConnecting Connection = "connecting"
	ConnectionOpen       Connection = "open"
	ConnectionClose      Connection = "close"
)

// DisconnectReason explains a close. Only ReasonLoggedOut is terminal.
type DisconnectReason string

const (
	ReasonConnectionLost DisconnectReason = "connection_lost"
	ReasonLoggedOut      DisconnectReason = "logged_out"
	ReasonReplaced       DisconnectReason = "replaced"
	ReasonClientOutdated DisconnectReason = "client_outdated"
	ReasonTemporaryBan   DisconnectReason = "temporary_ban"
)

// ConnectionUpdate reports that the connection opened, is opening, or closed.
type ConnectionUpdate struct {
	Connection Connection
	Reason     DisconnectReason
	// Detail is the library's description of the close, if any.
	Detail string
}

// CredsUpdate signals that credentials changed and must be persisted.
type CredsUpdate struct{}

// MessageKey identifies a message for receipts and lookups.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	ID          string `json:"id"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant,omitempty"`
}

// Message is a received or synced message.
type Message struct {
	Key       MessageKey
	PushName  string
	Timestamp time.Time
	Content   *waE2E.Message
}

// Chat is a conversation summary from history sync.
type Chat struct {
	JID         string
	Name        string
	UnreadCount int
	Timestamp   time.Time
}

// Contact is a known address-book entry or push name.
type Contact struct {
	JID    string
	Name   string
	Notify string
}

// HistorySet carries one history sync chunk.
type HistorySet struct {
	Chats    []Chat
	Contacts []Contact
	Messages []Message
	IsLatest bool
}

// UpsertType distinguishes live notifications from appended backlog.
type UpsertType string

const (
	UpsertNotify UpsertType = "notify"
	UpsertAppend UpsertType = "append"
)

// MessagesUpsert carries new messages.
type MessagesUpsert struct {
	Type     UpsertType
	Messages []Message
}

// MessageUpdate is a change to an existing message identified by Key.
type MessageUpdate struct {
	Key         MessageKey
	PollUpdates []*waE2E.PollUpdateMessage
}

// MessagesUpdate carries updates to existing messages.
type MessagesUpdate struct {
	Updates []MessageUpdate
}

// Ignored stands in for library events that have no handler (labels, calls,
// receipts, reactions, presence, chat and contact updates).
type Ignored struct {
	Name string
}

func (ConnectionUpdate) eventName() string { return "connection.update" }
func (CredsUpdate) eventName() string      { return "creds.update" }
func (HistorySet) eventName() string       { return "messaging-history.set" }
func (MessagesUpsert) eventName() string   { return "messages.upsert" }
func (MessagesUpdate) eventName() string   { return "messages.update" }
func (i Ignored) eventName() string        { return i.Name }
