package wa

import (
	"fmt"
	"time"

	"github.com/matheus3301/wabridge/internal/event"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Translate converts one whatsmeow event into a batch. The second result is
// false for library events that have no counterpart at all (internal
// bookkeeping such as app-state sync), which are not delivered.
func Translate(raw any) (event.Batch, bool) {
	switch evt := raw.(type) {
	case *events.Connected:
		return event.Of(event.ConnectionUpdate{Connection: event.ConnectionOpen}), true
	case *events.Disconnected:
		return closed(event.ReasonConnectionLost, "socket closed"), true
	case *events.StreamError:
		return closed(event.ReasonConnectionLost, "stream error "+evt.Code), true
	case *events.ConnectFailure:
		if evt.Reason.IsLoggedOut() {
			// A LoggedOut event follows and carries the terminal close.
			return event.Batch{}, false
		}
		return closed(event.ReasonConnectionLost, fmt.Sprintf("connect failure %d: %s", int(evt.Reason), evt.Message)), true
	case *events.LoggedOut:
		return closed(event.ReasonLoggedOut, evt.Reason.String()), true
	case *events.StreamReplaced:
		return closed(event.ReasonReplaced, "stream replaced by another connection"), true
	case *events.ClientOutdated:
		return closed(event.ReasonClientOutdated, "client outdated"), true
	case *events.TemporaryBan:
		return closed(event.ReasonTemporaryBan, evt.String()), true
	case *events.PairSuccess:
		return event.Of(event.CredsUpdate{}), true
	case *events.HistorySync:
		return event.Of(historySet(evt.Data)), true
	case *events.Message:
		if poll := evt.Message.GetPollUpdateMessage(); poll != nil {
			return event.Of(event.MessagesUpdate{Updates: []event.MessageUpdate{{
				Key:         keyFromProto(poll.GetPollCreationMessageKey(), evt.Info.Chat),
				PollUpdates: []*waE2E.PollUpdateMessage{poll},
			}}}), true
		}
		return event.Of(event.MessagesUpsert{
			Type:     event.UpsertNotify,
			Messages: []event.Message{liveMessage(evt)},
		}), true
	case *events.Receipt:
		return ignored("message-receipt.update"), true
	case *events.Presence, *events.ChatPresence:
		return ignored("presence.update"), true
	case *events.Contact, *events.PushName, *events.Picture:
		return ignored("contacts.update"), true
	case *events.CallOffer, *events.CallTerminate:
		return ignored("call"), true
	case *events.LabelEdit:
		return ignored("labels.edit"), true
	case *events.LabelAssociationChat:
		return ignored("labels.association"), true
	case *events.Archive, *events.Pin, *events.Mute, *events.DeleteChat:
		return ignored("chats.update"), true
	default:
		return event.Batch{}, false
	}
}

func closed(reason event.DisconnectReason, detail string) event.Batch {
	return event.Of(event.ConnectionUpdate{
		Connection: event.ConnectionClose,
		Reason:     reason,
		Detail:     detail,
	})
}

func ignored(name string) event.Batch {
	return event.Of(event.Ignored{Name: name})
}

func liveMessage(evt *events.Message) event.Message {
	key := event.MessageKey{
		RemoteJID: evt.Info.Chat.String(),
		ID:        evt.Info.ID,
		FromMe:    evt.Info.IsFromMe,
	}
	if evt.Info.IsGroup {
		key.Participant = evt.Info.Sender.String()
	}
	return event.Message{
		Key:       key,
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
		Content:   evt.Message,
	}
}

func keyFromProto(k *waCommon.MessageKey, chat types.JID) event.MessageKey {
	remote := k.GetRemoteJID()
	if remote == "" {
		remote = chat.String()
	}
	return event.MessageKey{
		RemoteJID:   remote,
		ID:          k.GetID(),
		FromMe:      k.GetFromMe(),
		Participant: k.GetParticipant(),
	}
}

func historySet(data *waHistorySync.HistorySync) event.HistorySet {
	var set event.HistorySet
	if data == nil {
		return set
	}
	set.IsLatest = data.GetSyncType() == waHistorySync.HistorySync_INITIAL_BOOTSTRAP

	for _, conv := range data.GetConversations() {
		chatJID := conv.GetID()
		set.Chats = append(set.Chats, event.Chat{
			JID:         chatJID,
			Name:        conv.GetName(),
			UnreadCount: int(conv.GetUnreadCount()),
			Timestamp:   time.Unix(int64(conv.GetConversationTimestamp()), 0),
		})
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			key := wmsg.GetKey()
			remote := key.GetRemoteJID()
			if remote == "" {
				remote = chatJID
			}
			set.Messages = append(set.Messages, event.Message{
				Key: event.MessageKey{
					RemoteJID:   remote,
					ID:          key.GetID(),
					FromMe:      key.GetFromMe(),
					Participant: key.GetParticipant(),
				},
				PushName:  wmsg.GetPushName(),
				Timestamp: time.Unix(int64(wmsg.GetMessageTimestamp()), 0),
				Content:   wmsg.GetMessage(),
			})
		}
	}
	for _, pn := range data.GetPushnames() {
		set.Contacts = append(set.Contacts, event.Contact{
			JID:    pn.GetID(),
			Notify: pn.GetPushname(),
		})
	}
	return set
}
