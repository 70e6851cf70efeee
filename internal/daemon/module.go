package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matheus3301/wabridge/internal/config"
	"github.com/matheus3301/wabridge/internal/credstore"
	"github.com/matheus3301/wabridge/internal/dispatch"
	"github.com/matheus3301/wabridge/internal/httpapi"
	"github.com/matheus3301/wabridge/internal/keepalive"
	"github.com/matheus3301/wabridge/internal/lock"
	"github.com/matheus3301/wabridge/internal/logging"
	"github.com/matheus3301/wabridge/internal/mirror"
	"github.com/matheus3301/wabridge/internal/session"
	"github.com/matheus3301/wabridge/internal/status"
	"github.com/matheus3301/wabridge/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration and the terminal used for onboarding.
type Params struct {
	Config *config.Config
	In     io.Reader // defaults to os.Stdin
	Out    io.Writer // defaults to os.Stdout
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.In == nil {
		p.In = os.Stdin
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}
	return fx.Module("daemon",
		fx.Supply(p, p.Config),
		fx.Provide(
			provideLogger,
			provideStateMachine,
			provideLock,
			provideCredStore,
			provideMirror,
			provideReplier,
			provideDispatcher,
			provideFactory,
			provideManager,
			provideServer,
			providePinger,
			provideFlusher,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Path: cfg.LogPath(), Level: cfg.LogLevel})
}

func provideStateMachine(logger *zap.Logger) *status.Machine {
	return status.NewMachine(logger)
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	logger.Info("acquiring instance lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("instance lock acquired")
	return l, nil
}

func provideCredStore(cfg *config.Config, logger *zap.Logger) (*credstore.Store, error) {
	s, err := credstore.Open(context.Background(), cfg.AuthDBPath(), logging.WA(logger, "Database"))
	if err != nil {
		return nil, err
	}
	logger.Info("credential store opened", zap.String("path", s.Path()))
	return s, nil
}

// provideMirror returns nil when the mirror is disabled with --no-store.
func provideMirror(cfg *config.Config) *mirror.Store {
	if !cfg.UseStore {
		return nil
	}
	return mirror.New()
}

// provideReplier returns nil when auto-reply is disabled.
func provideReplier(cfg *config.Config, logger *zap.Logger) *dispatch.Replier {
	if !cfg.AutoReply.Enabled {
		return nil
	}
	return dispatch.NewReplier(dispatch.ReplyOptions{
		Text:           cfg.AutoReply.Text,
		MaxInFlight:    cfg.AutoReply.MaxInFlight,
		SubscribeDelay: cfg.AutoReply.SubscribeDelay.Duration,
		ComposeDelay:   cfg.AutoReply.ComposeDelay.Duration,
	}, logger.Named("autoreply"))
}

func provideDispatcher(machine *status.Machine, logger *zap.Logger, creds *credstore.Store, m *mirror.Store, replier *dispatch.Replier) *dispatch.Dispatcher {
	opts := dispatch.Options{Creds: creds, Replier: replier}
	if m != nil {
		opts.Mirror = m
		opts.Lookup = m.Lookup
	}
	return dispatch.New(machine, logger.Named("dispatch"), opts)
}

func provideFactory(p Params, cfg *config.Config, creds *credstore.Store, m *mirror.Store, logger *zap.Logger) session.Factory {
	opts := wa.Options{
		Creds:       creds,
		Logger:      logger.Named("wa"),
		PrintQR:     !cfg.UsePairingCode && !cfg.UseMobile,
		QRWriter:    p.Out,
		QRImagePath: cfg.QRImagePath(),
	}
	if m != nil {
		opts.Lookup = m.Lookup
	}
	return wa.NewFactory(opts)
}

func provideManager(cfg *config.Config, factory session.Factory, d *dispatch.Dispatcher, machine *status.Machine, logger *zap.Logger) *session.Manager {
	mgr := session.NewManager(factory, d, machine, logger.Named("session"), session.Options{
		ReconnectDelay: cfg.Reconnect.Delay.Duration,
	})
	d.Attach(mgr)
	return mgr
}

func provideServer(cfg *config.Config, mgr *session.Manager, logger *zap.Logger) (*httpapi.Server, error) {
	return httpapi.NewServer(cfg.Addr(), httpapi.NewRouter(mgr, logger.Named("http")), logger)
}

// providePinger returns nil when no keep-alive URL is configured.
func providePinger(cfg *config.Config, logger *zap.Logger) *keepalive.Pinger {
	if cfg.KeepAlive.URL == "" {
		return nil
	}
	return keepalive.NewPinger(cfg.KeepAlive.URL, cfg.KeepAlive.Interval.Duration, nil, logger.Named("keepalive"))
}

func provideFlusher(cfg *config.Config, m *mirror.Store, logger *zap.Logger) *mirror.Flusher {
	if m == nil {
		return nil
	}
	return mirror.NewFlusher(m, cfg.MirrorFile(), cfg.FlushInterval.Duration, logger.Named("mirror"))
}

type lifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Params     Params
	Config     *config.Config
	Logger     *zap.Logger
	Machine    *status.Machine
	Lock       *lock.Lock
	Creds      *credstore.Store
	Mirror     *mirror.Store
	Flusher    *mirror.Flusher
	Replier    *dispatch.Replier
	Manager    *session.Manager
	Server     *httpapi.Server
	Pinger     *keepalive.Pinger
}

func registerLifecycle(p lifecycleParams) {
	logger := p.Logger
	runCtx, cancel := context.WithCancel(context.Background())
	watchState(p.Machine, p.Flusher, filepath.Dir(p.Config.AuthDBPath()), logger)

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Mirror != nil {
				if err := p.Mirror.ReadFromFile(p.Config.MirrorFile()); err != nil {
					return err
				}
				p.Flusher.Start(runCtx)
				logger.Info("mirror loaded", zap.String("path", p.Config.MirrorFile()))
			}

			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("HTTP server error", zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()

			if p.Pinger != nil {
				p.Pinger.Start(runCtx)
			}

			if err := p.Manager.Start(ctx); err != nil {
				return err
			}

			go func() {
				if err := onboard(runCtx, p); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					logger.Error("onboarding failed", zap.Error(err))
					_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			if p.Pinger != nil {
				p.Pinger.Stop()
			}
			p.Manager.Stop()
			if p.Replier != nil {
				p.Replier.Wait()
			}
			if p.Flusher != nil {
				p.Flusher.Stop()
			}
			if err := p.Server.Stop(ctx); err != nil {
				logger.Warn("error stopping HTTP server", zap.Error(err))
			}
			if err := p.Creds.Close(); err != nil {
				logger.Warn("error closing credential store", zap.Error(err))
			}
			if err := p.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
