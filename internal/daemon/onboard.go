package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wabridge/internal/register"
	"go.uber.org/zap"
)

// onboard links or registers the device when it has no credentials yet.
// Without --use-pairing-code or --mobile the QR code printed on connect is
// the only way in, so there is nothing to do here.
func onboard(ctx context.Context, p lifecycleParams) error {
	sess, err := p.Manager.Current()
	if err != nil {
		return err
	}
	if sess.IsRegistered() {
		return nil
	}

	prompter := register.NewPrompter(p.Params.In, p.Params.Out)
	switch {
	case p.Config.UsePairingCode:
		p.Logger.Info("requesting pairing code")
		return register.PairWithCode(ctx, sess, prompter, p.Params.Out)
	case p.Config.UseMobile:
		registrar, ok := sess.(register.Registrar)
		if !ok {
			return fmt.Errorf("session: %w", register.ErrUnsupported)
		}
		flow := &register.Flow{
			Registrar:   registrar,
			Asker:       prompter,
			Out:         p.Params.Out,
			Logger:      p.Logger.Named("register"),
			MaxAttempts: p.Config.Registration.MaxAttempts,
		}
		if err := flow.Run(ctx, ""); err != nil {
			if errors.Is(err, register.ErrTooManyAttempts) {
				p.Logger.Error("registration gave up", zap.Int("max_attempts", p.Config.Registration.MaxAttempts))
			}
			return err
		}
		return nil
	default:
		p.Logger.Info("device not linked, scan the QR code to pair")
		return nil
	}
}
