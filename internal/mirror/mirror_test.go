package mirror

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/wabridge/internal/event"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/proto"
)

const chatJID = "15551234567@s.whatsapp.net"

func textMessage(id, text string, fromMe bool, ts int64) event.Message {
	return event.Message{
		Key:       event.MessageKey{RemoteJID: chatJID, ID: id, FromMe: fromMe},
		PushName:  "Bob",
		Timestamp: time.Unix(ts, 0),
		Content:   &waE2E.Message{Conversation: proto.String(text)},
	}
}

func upsert(msgs ...event.Message) event.Batch {
	return event.Of(event.MessagesUpsert{Type: event.UpsertNotify, Messages: msgs})
}

func TestApplyUpsert(t *testing.T) {
	s := New()
	s.Apply(upsert(textMessage("M1", "hello", false, 100), textMessage("M2", "mine", true, 200)))

	snap := s.Snapshot()
	if len(snap.Chats) != 1 {
		t.Fatalf("chats = %d, want 1", len(snap.Chats))
	}
	chat := snap.Chats[0]
	if chat.ConversationTimestamp != 200 {
		t.Errorf("conversationTimestamp = %d, want 200", chat.ConversationTimestamp)
	}
	if chat.UnreadCount != 1 {
		t.Errorf("unreadCount = %d, want 1 (own messages do not count)", chat.UnreadCount)
	}
	msgs := snap.Messages[chatJID]
	if len(msgs) != 2 || msgs[0].Body != "hello" || msgs[0].Type != "text" {
		t.Errorf("messages = %+v", msgs)
	}
	if len(snap.Contacts) != 1 || snap.Contacts[0].Notify != "Bob" {
		t.Errorf("contacts = %+v", snap.Contacts)
	}
	if !s.Dirty() {
		t.Error("Dirty() = false after upsert")
	}
}

func TestLoadMessage(t *testing.T) {
	s := New()
	s.Apply(upsert(textMessage("M1", "hello", false, 100)))

	if got := s.LoadMessage(chatJID, "M1"); got.GetConversation() != "hello" {
		t.Errorf("LoadMessage() = %v, want hello", got)
	}
	if got := s.LoadMessage(chatJID, "nope"); got != nil {
		t.Errorf("LoadMessage(unknown) = %v, want nil", got)
	}
	if got := s.Lookup(event.MessageKey{RemoteJID: "other@s.whatsapp.net", ID: "M1"}); got != nil {
		t.Errorf("Lookup(other chat) = %v, want nil", got)
	}
}

func TestUpsertSameIDReplaces(t *testing.T) {
	s := New()
	s.Apply(upsert(textMessage("M1", "v1", false, 100)))
	s.Apply(event.Of(event.MessagesUpsert{Type: event.UpsertAppend, Messages: []event.Message{textMessage("M1", "v2", false, 100)}}))

	msgs := s.Snapshot().Messages[chatJID]
	if len(msgs) != 1 || msgs[0].Body != "v2" {
		t.Errorf("messages = %+v, want single v2", msgs)
	}
}

func TestMessagesBoundedPerChat(t *testing.T) {
	s := New()
	for i := range MaxMessagesPerChat + 5 {
		s.Apply(upsert(textMessage(fmt.Sprintf("M%d", i), "x", true, int64(i))))
	}

	msgs := s.Snapshot().Messages[chatJID]
	if len(msgs) != MaxMessagesPerChat {
		t.Fatalf("messages = %d, want %d", len(msgs), MaxMessagesPerChat)
	}
	if msgs[0].Key.ID != "M5" {
		t.Errorf("oldest kept = %s, want M5", msgs[0].Key.ID)
	}
	if s.LoadMessage(chatJID, "M0") != nil {
		t.Error("evicted message still loadable")
	}
}

func TestApplyHistoryLatestResets(t *testing.T) {
	s := New()
	s.Apply(upsert(textMessage("OLD", "old", false, 1)))
	s.Apply(event.Of(event.HistorySet{
		IsLatest: true,
		Chats:    []event.Chat{{JID: "other@s.whatsapp.net", Name: "Other", Timestamp: time.Unix(50, 0)}},
		Contacts: []event.Contact{{JID: "other@s.whatsapp.net", Notify: "O"}},
	}))

	snap := s.Snapshot()
	if len(snap.Chats) != 1 || snap.Chats[0].Name != "Other" {
		t.Errorf("chats = %+v, want only Other", snap.Chats)
	}
	if s.LoadMessage(chatJID, "OLD") != nil {
		t.Error("messages survived a latest history set")
	}
}

func TestApplyPollUpdate(t *testing.T) {
	s := New()
	s.Apply(upsert(event.Message{
		Key:     event.MessageKey{RemoteJID: chatJID, ID: "POLL", FromMe: true},
		Content: &waE2E.Message{PollCreationMessage: &waE2E.PollCreationMessage{Name: proto.String("lunch?")}},
	}))
	s.Apply(event.Of(event.MessagesUpdate{Updates: []event.MessageUpdate{{
		Key:         event.MessageKey{RemoteJID: chatJID, ID: "POLL", FromMe: true},
		PollUpdates: []*waE2E.PollUpdateMessage{{SenderTimestampMS: proto.Int64(5)}},
	}}}))

	msgs := s.Snapshot().Messages[chatJID]
	if len(msgs) != 1 || len(msgs[0].PollUpdates) != 1 {
		t.Fatalf("poll updates not recorded: %+v", msgs)
	}
}

func TestIgnoredEventsLeaveMirrorClean(t *testing.T) {
	s := New()
	s.Apply(event.Of(event.Ignored{Name: "presence.update"}, event.ConnectionUpdate{Connection: event.ConnectionOpen}))
	if s.Dirty() {
		t.Error("Dirty() = true after events that change nothing")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, name := range []string{"store.json", "store.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			s := New()
			s.Apply(upsert(textMessage("M1", "hello", false, 100)))

			if err := s.WriteToFile(path); err != nil {
				t.Fatalf("WriteToFile() error = %v", err)
			}
			if s.Dirty() {
				t.Error("Dirty() = true after write")
			}

			loaded := New()
			if err := loaded.ReadFromFile(path); err != nil {
				t.Fatalf("ReadFromFile() error = %v", err)
			}
			if got := loaded.LoadMessage(chatJID, "M1"); got.GetConversation() != "hello" {
				t.Errorf("loaded message = %v, want hello", got)
			}
			if snap := loaded.Snapshot(); len(snap.Chats) != 1 || snap.Chats[0].UnreadCount != 1 {
				t.Errorf("loaded chats = %+v", snap.Chats)
			}
		})
	}
}

// An Apply landing while a write is in flight must keep the mirror dirty so
// the next flush picks the change up.
func TestApplyDuringWriteStaysDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := New()
	s.Apply(upsert(textMessage("M1", "hello", false, 100)))
	s.afterRename = func() {
		s.Apply(upsert(textMessage("M2", "late", false, 200)))
	}

	if err := s.WriteToFile(path); err != nil {
		t.Fatalf("WriteToFile() error = %v", err)
	}
	if !s.Dirty() {
		t.Fatal("Dirty() = false with a change missing from disk")
	}

	s.afterRename = nil
	if err := s.WriteToFile(path); err != nil {
		t.Fatalf("second WriteToFile() error = %v", err)
	}
	if s.Dirty() {
		t.Error("Dirty() = true after the catch-up write")
	}
	loaded := New()
	if err := loaded.ReadFromFile(path); err != nil {
		t.Fatal(err)
	}
	if loaded.LoadMessage(chatJID, "M2") == nil {
		t.Error("late message missing from disk after the catch-up write")
	}
}

// Overlapping writes must not let an older snapshot land on disk after a
// newer one.
func TestConcurrentWritesAreSerialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := New()
	s.Apply(upsert(textMessage("M1", "hello", false, 100)))

	var calls atomic.Int32
	second := make(chan error, 1)
	overlapped := false
	s.afterRename = func() {
		if calls.Add(1) > 1 {
			return
		}
		s.Apply(upsert(textMessage("M2", "late", false, 200)))
		go func() { second <- s.WriteToFile(path) }()
		select {
		case <-second:
			overlapped = true
		case <-time.After(50 * time.Millisecond):
		}
	}

	if err := s.WriteToFile(path); err != nil {
		t.Fatalf("WriteToFile() error = %v", err)
	}
	if overlapped {
		t.Fatal("second WriteToFile() finished while the first was still writing")
	}
	select {
	case err := <-second:
		if err != nil {
			t.Fatalf("second WriteToFile() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second WriteToFile() never finished")
	}

	if s.Dirty() {
		t.Error("Dirty() = true after both writes")
	}
	loaded := New()
	if err := loaded.ReadFromFile(path); err != nil {
		t.Fatal(err)
	}
	if loaded.LoadMessage(chatJID, "M2") == nil {
		t.Error("late message missing from disk")
	}
}

func TestWriteGzipIsCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json.gz")
	s := New()
	s.Apply(upsert(textMessage("M1", "hello", false, 100)))
	if err := s.WriteToFile(path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		t.Error("file does not start with the gzip magic")
	}
}

func TestReadMissingFile(t *testing.T) {
	s := New()
	if err := s.ReadFromFile(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Fatalf("ReadFromFile(missing) error = %v", err)
	}
	if len(s.Snapshot().Chats) != 0 {
		t.Error("mirror not empty")
	}
}

func TestReadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := New().ReadFromFile(path); err == nil {
		t.Error("ReadFromFile(corrupt) error = nil")
	}
}
