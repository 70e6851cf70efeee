package wa

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/matheus3301/wabridge/internal/credstore"
	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/logging"
	"github.com/matheus3301/wabridge/internal/register"
	"github.com/matheus3301/wabridge/internal/session"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// maxMediaBytes caps how much is downloaded for /send-media.
const maxMediaBytes = 64 << 20

// MessageLookup resolves a previously seen message, used for retry receipts
// and poll updates. It returns nil when the message is unknown.
type MessageLookup func(key event.MessageKey) *waE2E.Message

// Options configures every session the factory opens.
type Options struct {
	Creds  *credstore.Store
	Logger *zap.Logger
	Lookup MessageLookup

	// PrintQR renders pairing QR codes when the device is not registered.
	PrintQR     bool
	QRWriter    io.Writer
	QRImagePath string

	HTTPClient *http.Client
}

// Factory opens whatsmeow-backed sessions.
type Factory struct {
	opts Options
}

// NewFactory creates a session factory. The device name shown in the phone's
// linked devices list is set once here.
func NewFactory(opts Options) *Factory {
	wastore.SetOSInfo("wabridge", [3]uint32{0, 1, 0})
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: time.Minute}
	}
	if opts.QRWriter == nil {
		opts.QRWriter = os.Stdout
	}
	return &Factory{opts: opts}
}

// Open loads the stored device and builds a client around it. The client is
// not connected yet.
func (f *Factory) Open(ctx context.Context, sink session.Sink) (session.Session, error) {
	device, err := f.opts.Creds.Load(ctx)
	if err != nil {
		return nil, err
	}

	client := whatsmeow.NewClient(device, logging.WA(f.opts.Logger, "Client"))
	// Reconnects are owned by the session manager.
	client.EnableAutoReconnect = false

	a := &Adapter{
		client: client,
		opts:   f.opts,
		logger: f.opts.Logger,
	}
	if f.opts.Lookup != nil {
		client.GetMessageForRetry = func(_, to types.JID, id types.MessageID) *waE2E.Message {
			return f.opts.Lookup(event.MessageKey{RemoteJID: to.String(), ID: id, FromMe: true})
		}
	}
	client.AddEventHandler(func(raw any) {
		if batch, ok := Translate(raw); ok {
			sink(batch)
		}
	})
	return a, nil
}

// Adapter wraps one whatsmeow client and implements session.Session.
type Adapter struct {
	client *whatsmeow.Client
	opts   Options
	logger *zap.Logger
}

// ErrMobileUnsupported is returned by the mobile registration calls: the
// multi-device protocol only supports linking to an existing phone.
var ErrMobileUnsupported = fmt.Errorf("multi-device client: %w", register.ErrUnsupported)

// IsRegistered reports whether the device has paired credentials.
func (a *Adapter) IsRegistered() bool {
	return a.client.Store.ID != nil
}

// Connect opens the socket. When the device is not registered and QR printing
// is enabled, QR codes are rendered until pairing succeeds or ctx ends.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.IsRegistered() && a.opts.PrintQR {
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		go a.renderQR(qrChan)
	}
	a.logger.Info("connecting to WhatsApp")
	if err := a.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (a *Adapter) renderQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			printQR(a.opts.QRWriter, item.Code)
			if a.opts.QRImagePath != "" {
				if err := writeQRImage(item.Code, a.opts.QRImagePath); err != nil {
					a.logger.Warn("failed to write QR image", zap.Error(err))
				}
			}
		case whatsmeow.QRChannelSuccess.Event:
			a.logger.Info("QR pairing succeeded")
			a.removeQRImage()
			return
		case whatsmeow.QRChannelTimeout.Event:
			a.logger.Warn("QR pairing timed out")
			a.removeQRImage()
			return
		default:
			if item.Error != nil {
				a.logger.Error("QR pairing failed", zap.String("event", item.Event), zap.Error(item.Error))
				a.removeQRImage()
				return
			}
		}
	}
}

func (a *Adapter) removeQRImage() {
	if a.opts.QRImagePath != "" {
		_ = os.Remove(a.opts.QRImagePath)
	}
}

// Close disconnects the socket.
func (a *Adapter) Close() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// SendText sends a plain text message.
func (a *Adapter) SendText(ctx context.Context, to, text string) (whatsmeow.SendResponse, error) {
	jid, err := ParseJID(to)
	if err != nil {
		return whatsmeow.SendResponse{}, err
	}
	resp, err := a.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return resp, fmt.Errorf("send message: %w", err)
	}
	return resp, nil
}

// SendMedia downloads the image at media.URL, uploads it and sends it with the caption.
func (a *Adapter) SendMedia(ctx context.Context, to string, media session.Media) (whatsmeow.SendResponse, error) {
	jid, err := ParseJID(to)
	if err != nil {
		return whatsmeow.SendResponse{}, err
	}
	data, mimeType, err := fetchMedia(ctx, a.opts.HTTPClient, media.URL)
	if err != nil {
		return whatsmeow.SendResponse{}, err
	}
	uploaded, err := a.client.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return whatsmeow.SendResponse{}, fmt.Errorf("upload image: %w", err)
	}
	msg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(mimeType),
			URL:           proto.String(uploaded.URL),
			DirectPath:    proto.String(uploaded.DirectPath),
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    proto.Uint64(uploaded.FileLength),
		},
	}
	resp, err := a.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return resp, fmt.Errorf("send image: %w", err)
	}
	return resp, nil
}

// MarkRead sends read receipts, grouped per chat and sender.
func (a *Adapter) MarkRead(ctx context.Context, keys []event.MessageKey) error {
	type target struct{ chat, sender types.JID }
	grouped := make(map[target][]types.MessageID)
	var order []target
	for _, k := range keys {
		chat, err := ParseJID(k.RemoteJID)
		if err != nil {
			return err
		}
		sender := chat
		if k.Participant != "" {
			if sender, err = ParseJID(k.Participant); err != nil {
				return err
			}
		}
		t := target{chat, sender}
		if _, ok := grouped[t]; !ok {
			order = append(order, t)
		}
		grouped[t] = append(grouped[t], k.ID)
	}
	now := time.Now()
	for _, t := range order {
		if err := a.client.MarkRead(ctx, grouped[t], now, t.chat, t.sender); err != nil {
			return fmt.Errorf("mark read in %s: %w", t.chat, err)
		}
	}
	return nil
}

// SubscribePresence asks to receive presence updates of jid.
func (a *Adapter) SubscribePresence(ctx context.Context, jid string) error {
	to, err := ParseJID(jid)
	if err != nil {
		return err
	}
	return a.client.SubscribePresence(ctx, to)
}

// SendPresence announces typing state in a chat, or global availability.
func (a *Adapter) SendPresence(ctx context.Context, jid string, p session.Presence) error {
	if p == session.PresenceAvailable {
		return a.client.SendPresence(ctx, types.PresenceAvailable)
	}
	to, err := ParseJID(jid)
	if err != nil {
		return err
	}
	state := types.ChatPresencePaused
	if p == session.PresenceComposing {
		state = types.ChatPresenceComposing
	}
	return a.client.SendChatPresence(ctx, to, state, types.ChatPresenceMediaText)
}

// UpdateGroupParticipants adds, removes, promotes or demotes group members.
func (a *Adapter) UpdateGroupParticipants(ctx context.Context, group string, members []string, action session.ParticipantAction) ([]types.GroupParticipant, error) {
	groupJID, err := ParseJID(group)
	if err != nil {
		return nil, err
	}
	if groupJID.Server != types.GroupServer {
		return nil, fmt.Errorf("%s is not a group jid", groupJID)
	}
	change, err := participantChange(action)
	if err != nil {
		return nil, err
	}
	jids := make([]types.JID, 0, len(members))
	for _, m := range members {
		jid, err := ParseJID(m)
		if err != nil {
			return nil, err
		}
		jids = append(jids, jid)
	}
	resp, err := a.client.UpdateGroupParticipants(ctx, groupJID, jids, change)
	if err != nil {
		return nil, fmt.Errorf("update participants of %s: %w", groupJID, err)
	}
	return resp, nil
}

func participantChange(action session.ParticipantAction) (whatsmeow.ParticipantChange, error) {
	switch action {
	case session.ParticipantAdd:
		return whatsmeow.ParticipantChangeAdd, nil
	case session.ParticipantRemove:
		return whatsmeow.ParticipantChangeRemove, nil
	case session.ParticipantPromote:
		return whatsmeow.ParticipantChangePromote, nil
	case session.ParticipantDemote:
		return whatsmeow.ParticipantChangeDemote, nil
	default:
		return "", fmt.Errorf("unknown participant action %q", action)
	}
}

// OnWhatsApp checks which phone numbers have an account.
func (a *Adapter) OnWhatsApp(ctx context.Context, numbers []string) ([]types.IsOnWhatsAppResponse, error) {
	phones := make([]string, 0, len(numbers))
	for _, n := range numbers {
		jid, err := ParseJID(n)
		if err != nil {
			return nil, err
		}
		phones = append(phones, "+"+jid.User)
	}
	resp, err := a.client.IsOnWhatsApp(ctx, phones)
	if err != nil {
		return nil, fmt.Errorf("check numbers: %w", err)
	}
	return resp, nil
}

// RequestPairingCode links this device to the phone number with an 8-character code.
func (a *Adapter) RequestPairingCode(ctx context.Context, phone string) (string, error) {
	jid, err := ParseJID(phone)
	if err != nil {
		return "", err
	}
	code, err := a.client.PairPhone(ctx, jid.User, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		return "", fmt.Errorf("request pairing code: %w", err)
	}
	return code, nil
}

// RequestRegistrationCode is part of register.Registrar. Only companion
// devices can be linked, so it always fails.
func (a *Adapter) RequestRegistrationCode(context.Context, register.Registration) (register.CodeResponse, error) {
	return register.CodeResponse{}, ErrMobileUnsupported
}

// Register is part of register.Registrar; see RequestRegistrationCode.
func (a *Adapter) Register(context.Context, string) error {
	return ErrMobileUnsupported
}

// PhoneNumber returns the paired phone number, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

func fetchMedia(ctx context.Context, client *http.Client, url string) ([]byte, string, error) {
	if url == "" {
		return nil, "", errors.New("media url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build media request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media: unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("media larger than %d bytes", maxMediaBytes)
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
