package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/matheus3301/wabridge/internal/event"
	"github.com/matheus3301/wabridge/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrNoSession is returned by Current before the first session is open.
	ErrNoSession = errors.New("session not ready")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("session manager stopped")
)

// defaultRetryDelay is the wait before retrying a reconnect whose open or connect failed.
const defaultRetryDelay = 2 * time.Second

type handle struct {
	sess   Session
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns the current Session. Consumers resolve the session through
// Current on every use; on reconnect the reference is replaced atomically and
// the previous session's lifetime context is cancelled.
type Manager struct {
	factory Factory
	handler Handler
	machine *status.Machine
	logger  *zap.Logger
	delay   time.Duration
	retry   time.Duration

	mu      sync.Mutex // serializes open/replace
	current atomic.Pointer[handle]
	opened  atomic.Int64

	base    context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// Options configures a Manager.
type Options struct {
	// ReconnectDelay is waited before reopening after a close.
	ReconnectDelay time.Duration
	// RetryDelay is waited between failed reconnect attempts. Zero means 2s.
	RetryDelay time.Duration
}

// NewManager creates a manager. machine may be nil.
func NewManager(factory Factory, handler Handler, machine *status.Machine, logger *zap.Logger, opts Options) *Manager {
	if machine == nil {
		machine = status.NewMachine(logger)
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	base, stop := context.WithCancel(context.Background())
	return &Manager{
		factory: factory,
		handler: handler,
		machine: machine,
		logger:  logger,
		delay:   opts.ReconnectDelay,
		retry:   opts.RetryDelay,
		base:    base,
		stop:    stop,
	}
}

// Start opens and connects a new session, replacing any current one. The
// session itself is bound to the manager's lifetime, not to ctx.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(ctx)
}

func (m *Manager) startLocked(ctx context.Context) error {
	if m.stopped {
		return ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.machine.Force(status.Connecting)

	h := &handle{}
	h.ctx, h.cancel = context.WithCancel(m.base)
	sink := func(b event.Batch) {
		m.handler.Process(h.ctx, h.sess, b)
	}

	sess, err := m.factory.Open(h.ctx, sink)
	if err != nil {
		h.cancel()
		_ = m.machine.Transition(status.Error)
		return fmt.Errorf("open session: %w", err)
	}
	h.sess = sess

	if old := m.current.Swap(h); old != nil {
		old.cancel()
		old.sess.Close()
	}
	n := m.opened.Add(1)
	m.logger.Info("session opened", zap.Int64("generation", n))

	if err := sess.Connect(h.ctx); err != nil {
		_ = m.machine.Transition(status.Error)
		return fmt.Errorf("connect session: %w", err)
	}
	if !sess.IsRegistered() {
		_ = m.machine.Transition(status.AuthRequired)
	}
	return nil
}

// Current returns the live session.
func (m *Manager) Current() (Session, error) {
	h := m.current.Load()
	if h == nil {
		return nil, ErrNoSession
	}
	return h.sess, nil
}

// Status returns the connection state.
func (m *Manager) Status() status.State {
	return m.machine.Current()
}

// Reconnect replaces stale with a fresh session. Closes reported by a session
// that is no longer current are ignored.
func (m *Manager) Reconnect(stale Session) {
	if !m.isCurrent(stale) {
		m.logger.Debug("ignoring close from replaced session")
		return
	}
	_ = m.machine.Transition(status.Reconnecting)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		delay := m.delay
		for {
			if !sleep(m.base, delay) {
				return
			}
			err := m.restart(stale)
			if err == nil || errors.Is(err, ErrStopped) {
				return
			}
			m.logger.Error("reconnect failed", zap.Error(err))
			delay = m.retry
		}
	}()
}

func (m *Manager) restart(stale Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.current.Load()
	if cur == nil || (cur.sess != stale && m.machine.Current() != status.Error) {
		// Someone else already replaced it.
		return nil
	}
	m.logger.Info("reconnecting")
	return m.startLocked(m.base)
}

func (m *Manager) isCurrent(s Session) bool {
	h := m.current.Load()
	return h != nil && h.sess == s
}

// Stop cancels the current session, closes it and waits for pending reconnects.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.stop()
	h := m.current.Load()
	m.mu.Unlock()

	if h != nil {
		h.cancel()
		h.sess.Close()
	}
	m.wg.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
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
