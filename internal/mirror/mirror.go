// Package mirror keeps an in-memory copy of chats, contacts and recent
// messages built from the event stream, persisted as a JSON snapshot.
package mirror

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/wa"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"google.golang.org/protobuf/encoding/protojson"
)

// MaxMessagesPerChat bounds how many messages are kept for each chat.
const MaxMessagesPerChat = 1000

// Chat is a mirrored conversation.
type Chat struct {
	JID                   string `json:"jid"`
	Name                  string `json:"name,omitempty"`
	ConversationTimestamp int64  `json:"conversationTimestamp,omitempty"`
	UnreadCount           int    `json:"unreadCount,omitempty"`
}

// Contact is a mirrored contact.
type Contact struct {
	JID    string `json:"jid"`
	Name   string `json:"name,omitempty"`
	Notify string `json:"notify,omitempty"`
}

// Message is a mirrored message. Content and PollUpdates travel as protojson
// in the snapshot file.
type Message struct {
	Key         event.MessageKey           `json:"key"`
	PushName    string                     `json:"pushName,omitempty"`
	Timestamp   int64                      `json:"timestamp"`
	Type        string                     `json:"type"`
	Body        string                     `json:"body,omitempty"`
	Content     *waE2E.Message             `json:"-"`
	PollUpdates []*waE2E.PollUpdateMessage `json:"-"`
}

// Snapshot is a point-in-time copy of the mirror.
type Snapshot struct {
	Chats    []Chat               `json:"chats"`
	Contacts []Contact            `json:"contacts"`
	Messages map[string][]Message `json:"messages"`
}

type chatLog struct {
	order []*Message
	byID  map[string]*Message
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex // serializes WriteToFile
	chats    map[string]*Chat
	contacts map[string]*Contact
	messages map[string]*chatLog

	// version counts applied changes; written is the version last on disk.
	version uint64
	written uint64

	// afterRename runs between the rename and the dirty bookkeeping.
	afterRename func()
}

// New returns an empty store.
func New() *Store {
	return &Store{
		chats:    make(map[string]*Chat),
		contacts: make(map[string]*Contact),
		messages: make(map[string]*chatLog),
	}
}

// Apply folds a batch into the mirror.
func (s *Store) Apply(batch event.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range batch.Events {
		switch evt := e.(type) {
		case event.HistorySet:
			s.applyHistory(evt)
		case event.MessagesUpsert:
			for _, m := range evt.Messages {
				s.upsertMessage(m, evt.Type == event.UpsertNotify)
			}
			if len(evt.Messages) > 0 {
				s.version++
			}
		case event.MessagesUpdate:
			for _, u := range evt.Updates {
				if stored := s.lookupLocked(u.Key.RemoteJID, u.Key.ID); stored != nil && len(u.PollUpdates) > 0 {
					stored.PollUpdates = append(stored.PollUpdates, u.PollUpdates...)
					s.version++
				}
			}
		}
	}
}

func (s *Store) applyHistory(h event.HistorySet) {
	if h.IsLatest {
		clear(s.chats)
		clear(s.messages)
	}
	for _, c := range h.Chats {
		chat := s.chat(c.JID)
		if c.Name != "" {
			chat.Name = c.Name
		}
		chat.UnreadCount = c.UnreadCount
		if ts := c.Timestamp.Unix(); ts > chat.ConversationTimestamp {
			chat.ConversationTimestamp = ts
		}
	}
	for _, c := range h.Contacts {
		contact, ok := s.contacts[c.JID]
		if !ok {
			contact = &Contact{JID: c.JID}
			s.contacts[c.JID] = contact
		}
		if c.Name != "" {
			contact.Name = c.Name
		}
		if c.Notify != "" {
			contact.Notify = c.Notify
		}
	}
	for _, m := range h.Messages {
		s.upsertMessage(m, false)
	}
	s.version++
}

func (s *Store) chat(jid string) *Chat {
	c, ok := s.chats[jid]
	if !ok {
		c = &Chat{JID: jid}
		s.chats[jid] = c
	}
	return c
}

func (s *Store) upsertMessage(m event.Message, live bool) {
	jid := m.Key.RemoteJID
	if jid == "" || m.Key.ID == "" {
		return
	}
	chat := s.chat(jid)
	ts := m.Timestamp.Unix()
	if ts > chat.ConversationTimestamp {
		chat.ConversationTimestamp = ts
	}
	if live && !m.Key.FromMe {
		chat.UnreadCount++
	}
	if m.PushName != "" && !m.Key.FromMe {
		sender := m.Key.Participant
		if sender == "" {
			sender = jid
		}
		contact, ok := s.contacts[sender]
		if !ok {
			contact = &Contact{JID: sender}
			s.contacts[sender] = contact
		}
		contact.Notify = m.PushName
	}

	log, ok := s.messages[jid]
	if !ok {
		log = &chatLog{byID: make(map[string]*Message)}
		s.messages[jid] = log
	}
	stored := &Message{
		Key:       m.Key,
		PushName:  m.PushName,
		Timestamp: ts,
		Type:      wa.MessageType(m.Content),
		Body:      wa.TextBody(m.Content),
		Content:   m.Content,
	}
	if existing, ok := log.byID[m.Key.ID]; ok {
		stored.PollUpdates = existing.PollUpdates
		*existing = *stored
		return
	}
	log.order = append(log.order, stored)
	log.byID[m.Key.ID] = stored
	if over := len(log.order) - MaxMessagesPerChat; over > 0 {
		for _, old := range log.order[:over] {
			delete(log.byID, old.Key.ID)
		}
		log.order = slices.Clone(log.order[over:])
	}
}

func (s *Store) lookupLocked(jid, id string) *Message {
	log, ok := s.messages[jid]
	if !ok {
		return nil
	}
	return log.byID[id]
}

// LoadMessage returns the stored payload of a message, or nil.
func (s *Store) LoadMessage(jid, id string) *waE2E.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m := s.lookupLocked(jid, id); m != nil {
		return m.Content
	}
	return nil
}

// Lookup adapts LoadMessage to a message key.
func (s *Store) Lookup(key event.MessageKey) *waE2E.Message {
	return s.LoadMessage(key.RemoteJID, key.ID)
}

// Dirty reports whether the mirror changed since the last successful write.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version != s.written
}

// Snapshot copies the mirror. Chats are ordered newest first.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Chats:    make([]Chat, 0, len(s.chats)),
		Contacts: make([]Contact, 0, len(s.contacts)),
		Messages: make(map[string][]Message, len(s.messages)),
	}
	for _, c := range s.chats {
		snap.Chats = append(snap.Chats, *c)
	}
	slices.SortFunc(snap.Chats, func(a, b Chat) int {
		if c := cmp.Compare(b.ConversationTimestamp, a.ConversationTimestamp); c != 0 {
			return c
		}
		return strings.Compare(a.JID, b.JID)
	})
	for _, c := range s.contacts {
		snap.Contacts = append(snap.Contacts, *c)
	}
	slices.SortFunc(snap.Contacts, func(a, b Contact) int { return strings.Compare(a.JID, b.JID) })
	for jid, log := range s.messages {
		msgs := make([]Message, 0, len(log.order))
		for _, m := range log.order {
			msgs = append(msgs, *m)
		}
		snap.Messages[jid] = msgs
	}
	return snap
}

type fileMessage struct {
	Message
	Payload     json.RawMessage   `json:"message,omitempty"`
	PollUpdates []json.RawMessage `json:"pollUpdates,omitempty"`
}

type fileSnapshot struct {
	Chats    []Chat                   `json:"chats"`
	Contacts []Contact                `json:"contacts"`
	Messages map[string][]fileMessage `json:"messages"`
}

// WriteToFile writes the mirror to path atomically. Paths ending in ".gz"
// are gzip-compressed.
func (s *Store) WriteToFile(path string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	snap := s.snapshotLocked()
	version := s.version
	s.mu.RUnlock()

	out, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp mirror: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeEncoded(tmp, out, isGzip(path)); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp mirror: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename mirror: %w", err)
	}
	if s.afterRename != nil {
		s.afterRename()
	}

	// Changes applied after the snapshot keep the store dirty.
	s.mu.Lock()
	s.written = max(s.written, version)
	s.mu.Unlock()
	return nil
}

func writeEncoded(w io.Writer, data []byte, compress bool) error {
	if !compress {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("write mirror: %w", err)
		}
		return nil
	}
	zw := gzip.NewWriter(w)
	if _, err := zw.Write(data); err != nil {
		return fmt.Errorf("write mirror: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress mirror: %w", err)
	}
	return nil
}

func encodeSnapshot(snap Snapshot) ([]byte, error) {
	file := fileSnapshot{
		Chats:    snap.Chats,
		Contacts: snap.Contacts,
		Messages: make(map[string][]fileMessage, len(snap.Messages)),
	}
	for jid, msgs := range snap.Messages {
		out := make([]fileMessage, 0, len(msgs))
		for _, m := range msgs {
			fm := fileMessage{Message: m}
			if m.Content != nil {
				raw, err := protojson.Marshal(m.Content)
				if err != nil {
					return nil, fmt.Errorf("encode message %s: %w", m.Key.ID, err)
				}
				fm.Payload = raw
			}
			for _, p := range m.PollUpdates {
				raw, err := protojson.Marshal(p)
				if err != nil {
					return nil, fmt.Errorf("encode poll update of %s: %w", m.Key.ID, err)
				}
				fm.PollUpdates = append(fm.PollUpdates, raw)
			}
			out = append(out, fm)
		}
		file.Messages[jid] = out
	}
	data, err := json.Marshal(file)
	if err != nil {
		return nil, fmt.Errorf("encode mirror: %w", err)
	}
	return data, nil
}

// ReadFromFile replaces the mirror with the snapshot at path. A missing file
// leaves the mirror empty.
func (s *Store) ReadFromFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open mirror: %w", err)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if isGzip(path) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("decompress mirror: %w", err)
		}
		defer func() { _ = zr.Close() }()
		r = zr
	}

	var file fileSnapshot
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return fmt.Errorf("decode mirror: %w", err)
	}

	chats := make(map[string]*Chat, len(file.Chats))
	for _, c := range file.Chats {
		chats[c.JID] = &c
	}
	contacts := make(map[string]*Contact, len(file.Contacts))
	for _, c := range file.Contacts {
		contacts[c.JID] = &c
	}
	messages := make(map[string]*chatLog, len(file.Messages))
	for jid, msgs := range file.Messages {
		log := &chatLog{byID: make(map[string]*Message, len(msgs))}
		for _, fm := range msgs {
			m := fm.Message
			if len(fm.Payload) > 0 {
				m.Content = &waE2E.Message{}
				if err := protojson.Unmarshal(fm.Payload, m.Content); err != nil {
					return fmt.Errorf("decode message %s: %w", m.Key.ID, err)
				}
			}
			for _, raw := range fm.PollUpdates {
				p := &waE2E.PollUpdateMessage{}
				if err := protojson.Unmarshal(raw, p); err != nil {
					return fmt.Errorf("decode poll update of %s: %w", m.Key.ID, err)
				}
				m.PollUpdates = append(m.PollUpdates, p)
			}
			log.order = append(log.order, &m)
			log.byID[m.Key.ID] = &m
		}
		messages[jid] = log
	}

	s.mu.Lock()
	s.chats, s.contacts, s.messages = chats, contacts, messages
	s.written = s.version
	s.mu.Unlock()
	return nil
}

func isGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}
