// Package dispatch reacts to the event batches emitted by a session.
package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/session"
	"github.com/matheus3301/wabridge/internal/status"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
)

// Mirror receives every batch before it is dispatched.
type Mirror interface {
	Apply(batch event.Batch)
}

// Reconnector replaces a closed session.
type Reconnector interface {
	Reconnect(stale session.Session)
}

// CredSaver persists credentials after the library updates them.
type CredSaver interface {
	Save(ctx context.Context) error
}

// Lookup resolves a stored message by key, or returns nil.
type Lookup func(key event.MessageKey) *waE2E.Message

// PollHandler receives poll votes together with the poll they belong to.
// creation is nil when the poll is not in the mirror.
type PollHandler func(ctx context.Context, sess session.Session, update event.MessageUpdate, creation *waE2E.Message)

// Options wires the optional collaborators of a Dispatcher.
type Options struct {
	Mirror  Mirror
	Creds   CredSaver
	Replier *Replier
	Lookup  Lookup
	Polls   PollHandler
}

// Dispatcher implements session.Handler.
type Dispatcher struct {
	opts        Options
	machine     *status.Machine
	logger      *zap.Logger
	reconnector atomic.Pointer[reconnectorBox]
}

type reconnectorBox struct{ r Reconnector }

// New creates a dispatcher. Reconnects are disabled until Attach is called.
func New(machine *status.Machine, logger *zap.Logger, opts Options) *Dispatcher {
	return &Dispatcher{opts: opts, machine: machine, logger: logger}
}

// Attach sets the reconnector. The session manager depends on the dispatcher,
// so it is attached after both exist.
func (d *Dispatcher) Attach(r Reconnector) {
	d.reconnector.Store(&reconnectorBox{r: r})
}

// Process handles each event of the batch in order.
func (d *Dispatcher) Process(ctx context.Context, sess session.Session, batch event.Batch) {
	if d.opts.Mirror != nil {
		d.opts.Mirror.Apply(batch)
	}

	for _, e := range batch.Events {
		switch evt := e.(type) {
		case event.ConnectionUpdate:
			d.handleConnection(sess, evt)
		case event.CredsUpdate:
			d.handleCreds(ctx)
		case event.MessagesUpsert:
			d.handleUpsert(ctx, sess, evt)
		case event.MessagesUpdate:
			d.handleUpdate(ctx, sess, evt)
		case event.HistorySet:
			d.logger.Debug("history received",
				zap.Int("chats", len(evt.Chats)),
				zap.Int("contacts", len(evt.Contacts)),
				zap.Int("messages", len(evt.Messages)),
				zap.Bool("is_latest", evt.IsLatest))
		case event.Ignored:
		}
	}
}

func (d *Dispatcher) handleConnection(sess session.Session, evt event.ConnectionUpdate) {
	switch evt.Connection {
	case event.ConnectionOpen:
		d.logger.Info("connection opened")
		if err := d.machine.Transition(status.Open); err != nil {
			d.logger.Warn("unexpected open", zap.Error(err))
		}
	case event.ConnectionClose:
		if evt.Reason == event.ReasonLoggedOut {
			d.logger.Info("connection closed, logged out", zap.String("detail", evt.Detail))
			if err := d.machine.Transition(status.LoggedOut); err != nil {
				d.logger.Warn("unexpected logout", zap.Error(err))
			}
			return
		}
		d.logger.Warn("connection closed, reconnecting",
			zap.String("reason", string(evt.Reason)),
			zap.String("detail", evt.Detail))
		if box := d.reconnector.Load(); box != nil {
			box.r.Reconnect(sess)
		}
	}
}

func (d *Dispatcher) handleCreds(ctx context.Context) {
	if d.opts.Creds == nil {
		return
	}
	if err := d.opts.Creds.Save(ctx); err != nil {
		d.logger.Error("failed to save credentials", zap.Error(err))
	}
}

func (d *Dispatcher) handleUpsert(ctx context.Context, sess session.Session, evt event.MessagesUpsert) {
	if evt.Type != event.UpsertNotify || d.opts.Replier == nil {
		return
	}
	for _, m := range evt.Messages {
		if m.Key.FromMe || isBroadcast(m.Key.RemoteJID) {
			continue
		}
		d.opts.Replier.Reply(ctx, sess, m.Key)
	}
}

func (d *Dispatcher) handleUpdate(ctx context.Context, sess session.Session, evt event.MessagesUpdate) {
	for _, u := range evt.Updates {
		if len(u.PollUpdates) == 0 {
			continue
		}
		var creation *waE2E.Message
		if d.opts.Lookup != nil {
			creation = d.opts.Lookup(u.Key)
		}
		if d.opts.Polls == nil {
			d.logger.Debug("poll update received",
				zap.String("chat", u.Key.RemoteJID),
				zap.String("poll_id", u.Key.ID),
				zap.Bool("poll_known", creation != nil))
			continue
		}
		d.opts.Polls(ctx, sess, u, creation)
	}
}

// isBroadcast reports the status feed, where a reply would post a status.
func isBroadcast(jid string) bool {
	return jid == "status@broadcast"
}
