package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/session"
	"go.uber.org/zap"
)

// ReplyOptions configures the canned auto-reply.
type ReplyOptions struct {
	Text           string
	MaxInFlight    int
	SubscribeDelay time.Duration
	ComposeDelay   time.Duration
}

// Replier answers inbound messages with a canned text after simulating typing.
type Replier struct {
	opts   ReplyOptions
	logger *zap.Logger
	slots  chan struct{}
	wg     sync.WaitGroup
}

// NewReplier creates a replier. MaxInFlight below one is treated as one.
func NewReplier(opts ReplyOptions, logger *zap.Logger) *Replier {
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	return &Replier{
		opts:   opts,
		logger: logger,
		slots:  make(chan struct{}, opts.MaxInFlight),
	}
}

// Reply starts an auto-reply to key in the background. ctx is the session's
// lifetime; the sequence stops at the next step once it is cancelled.
// It returns false when the reply was dropped because too many are running.
func (r *Replier) Reply(ctx context.Context, sess session.Session, key event.MessageKey) bool {
	select {
	case r.slots <- struct{}{}:
	default:
		r.logger.Warn("too many auto-replies in flight, dropping",
			zap.String("chat", key.RemoteJID),
			zap.String("msg_id", key.ID))
		return false
	}

	r.wg.Go(func() {
		defer func() { <-r.slots }()
		r.run(ctx, sess, key)
	})
	return true
}

// Wait blocks until every started reply has finished.
func (r *Replier) Wait() {
	r.wg.Wait()
}

func (r *Replier) run(ctx context.Context, sess session.Session, key event.MessageKey) {
	jid := key.RemoteJID
	log := r.logger.With(zap.String("chat", jid), zap.String("msg_id", key.ID))

	// Any failed step abandons the reply.
	if err := sess.MarkRead(ctx, []event.MessageKey{key}); err != nil {
		log.Warn("auto-reply aborted: mark read failed", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}
	if err := sess.SubscribePresence(ctx, jid); err != nil {
		log.Warn("auto-reply aborted: presence subscribe failed", zap.Error(err))
		return
	}
	if !wait(ctx, r.opts.SubscribeDelay) {
		return
	}
	if err := sess.SendPresence(ctx, jid, session.PresenceComposing); err != nil {
		log.Warn("auto-reply aborted: composing failed", zap.Error(err))
		return
	}
	if !wait(ctx, r.opts.ComposeDelay) {
		return
	}
	if err := sess.SendPresence(ctx, jid, session.PresencePaused); err != nil {
		log.Warn("auto-reply aborted: paused failed", zap.Error(err))
		return
	}
	if ctx.Err() != nil {
		return
	}

	resp, err := sess.SendText(ctx, jid, r.opts.Text)
	if err != nil {
		log.Error("failed to send auto-reply", zap.Error(err))
		return
	}
	log.Info("auto-reply sent", zap.String("reply_id", resp.ID))
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
