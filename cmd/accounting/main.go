package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"accounting/internal/backend"
	"accounting/internal/cache"
	"accounting/internal/cli"
	"accounting/internal/config"
	"accounting/internal/events"
	apphttp "accounting/internal/http"
	"accounting/internal/identity"
	"accounting/internal/ledger"
	"accounting/internal/livequery"
	"accounting/internal/log"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = 5 * time.Minute
	streamKeepAlive      = 25 * time.Second
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		cli.Exit(nil, "Failed to load .env file", err)
	}

	cfg, err := cli.LoadConfig((*config.Config).Validate)
	logger := cli.SetupLogger(cfg.LogLevel)
	if err != nil {
		cli.Exit(logger, "Configuration validation failed", err)
	}

	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		cli.Exit(logger, "Server stopped with error", err)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	origin := uuid.NewString()

	bcfg, err := backend.FromAppConfig(cfg, backend.RoleServer, origin)
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

	hub := livequery.NewHub(st, logger)
	svc := ledger.NewService(st, hub, bus, origin, logger)

	idp, err := identity.NewProvider(st, identity.Config{
		Secret:     []byte(cfg.AuthSecret),
		SessionTTL: cfg.SessionTTL,
	}, logger)
	if err != nil {
		return err
	}

	caches := cache.NewManager(logger)
	for name, c := range idp.Caches() {
		caches.Register(name, c)
	}
	caches.StartCleanup(cacheCleanupInterval)
	defer caches.Stop()

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Ledger:             svc,
		Hub:                hub,
		Identity:           idp,
		Pinger:             st,
		Caches:             caches,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		KeepAlive:          streamKeepAlive,
		Location:           time.Local,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting accounting server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events", cfg.EventsBackend,
			"origin", origin,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Writes made by other instances reach this process's open views here.
	g.Go(func() error {
		return bus.Consume(gctx, events.SkipOrigin(origin, func(ctx context.Context, e events.Event) error {
			return hub.Notify(ctx, e.UserID)
		}))
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := cli.ShutdownContext(shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err, log.FieldOperation, log.OpShutdown)
			return err
		}
		return nil
	})

	return g.Wait()
}
