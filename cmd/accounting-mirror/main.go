package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"accounting/internal/backend"
	"accounting/internal/cli"
	"accounting/internal/config"
	"accounting/internal/log"
	"accounting/internal/mirror"
	"accounting/internal/mirror/google"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		cli.Exit(nil, "Failed to load .env file", err)
	}

	cfg, err := cli.LoadConfig((*config.Config).ValidateMirror)
	logger := cli.SetupLogger(cfg.LogLevel).WithComponent(log.ComponentMirror)
	if err != nil {
		cli.Exit(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Exit(logger, "Mirror worker stopped with error", err)
	}
	logger.Info("Mirror worker stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg, backend.RoleMirror, uuid.NewString())
	if err != nil {
		return err
	}
	factory := backend.NewFactory(logger)

	st, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		return err
	}
	defer st.Close()

	bus, err := factory.CreateBus(ctx, bcfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	sheets, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		return err
	}

	m := mirror.New(st, st, sheets, time.Local, logger)

	logger.Info("Starting mirror worker",
		"events", cfg.EventsBackend,
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		log.FieldOperation, log.OpStartup)

	return bus.Consume(ctx, m.HandleEvent)
}
