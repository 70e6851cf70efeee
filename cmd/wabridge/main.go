package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wabridge/internal/config"
	"github.com/matheus3301/wabridge/internal/daemon"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the TOML config file")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading PORT")
	writeConfig := flag.Bool("write-config", false, "write the effective config to --config and exit")
	var flags config.Flags
	flag.BoolVar(&flags.NoStore, "no-store", false, "disable the in-memory mirror")
	flag.BoolVar(&flags.NoReply, "no-reply", false, "disable auto-replies")
	flag.BoolVar(&flags.UsePairingCode, "use-pairing-code", false, "link with a pairing code instead of a QR code")
	flag.BoolVar(&flags.Mobile, "mobile", false, "register the phone number as a new primary device")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(err)
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		fail(err)
	}

	if *writeConfig {
		if err := config.Save(*configPath, cfg); err != nil {
			fail(err)
		}
		fmt.Printf("config written to %s\n", *configPath)
		return
	}

	cfg.ApplyFlags(flags)
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	app := fx.New(
		daemon.Module(daemon.Params{Config: cfg}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
	)
	app.Run()
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
