package daemon

import (
	"github.com/matheus3301/wabridge/internal/mirror"
	"github.com/matheus3301/wabridge/internal/status"
	"go.uber.org/zap"
)

// watchState reacts to connection state changes that need operator attention.
// A logged-out device stays unusable until its credentials are removed, so the
// mirror is flushed right away instead of waiting for the next tick.
func watchState(machine *status.Machine, flusher *mirror.Flusher, authDir string, logger *zap.Logger) {
	machine.OnChange(func(c status.Change) {
		switch c.To {
		case status.LoggedOut:
			logger.Warn("device logged out, remove the auth dir and restart to link again",
				zap.String("auth_dir", authDir))
			if flusher != nil {
				flusher.Flush()
			}
		case status.Error:
			logger.Warn("session failed", zap.String("from", string(c.From)))
		}
	})
}
