package wa

import (
	"testing"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"
)

func TestTextBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")}}, "extended"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}}, "look"},
		{"image without caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
		{"video caption", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")}}, "clip"},
		{"poll name", &waE2E.Message{PollCreationMessage: &waE2E.PollCreationMessage{Name: proto.String("lunch?")}}, "lunch?"},
		{"empty conversation", &waE2E.Message{Conversation: proto.String("")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextBody(tt.msg); got != tt.want {
				t.Errorf("TextBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageType(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, "unknown"},
		{"conversation", &waE2E.Message{Conversation: proto.String("hi")}, "text"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{}}, "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "video"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
		{"contact", &waE2E.Message{ContactMessage: &waE2E.ContactMessage{}}, "contact"},
		{"location", &waE2E.Message{LocationMessage: &waE2E.LocationMessage{}}, "location"},
		{"poll", &waE2E.Message{PollCreationMessage: &waE2E.PollCreationMessage{}}, "poll"},
		{"poll update", &waE2E.Message{PollUpdateMessage: &waE2E.PollUpdateMessage{}}, "poll_update"},
		{"reaction", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{}}, "reaction"},
		{"empty", &waE2E.Message{}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MessageType(tt.msg); got != tt.want {
				t.Errorf("MessageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJID(t *testing.T) {
	tests := []struct {
		in      string
		want    types.JID
		wantErr bool
	}{
		{in: "5511999999999", want: types.NewJID("5511999999999", types.DefaultUserServer)},
		{in: "+1 (555) 123-4567", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "15551234567@s.whatsapp.net", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "15551234567@c.us", want: types.NewJID("15551234567", types.DefaultUserServer)},
		{in: "120363000000000000@g.us", want: types.NewJID("120363000000000000", types.GroupServer)},
		{in: "  ", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "\u0661\u0665\u0665\u0665", wantErr: true},
		{in: "+1 555 \u0661\u0662\u0663", want: types.NewJID("1555", types.DefaultUserServer)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseJID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseJID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseJID(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
