package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/chatplatform/relay/internal/auth"
	"github.com/chatplatform/relay/internal/bus"
	"github.com/chatplatform/relay/internal/config"
	"github.com/chatplatform/relay/internal/consume"
	"github.com/chatplatform/relay/internal/cron"
	"github.com/chatplatform/relay/internal/dispatch"
	"github.com/chatplatform/relay/internal/httpapi"
	"github.com/chatplatform/relay/internal/hub"
	"github.com/chatplatform/relay/internal/media"
	"github.com/chatplatform/relay/internal/pubsub"
	"github.com/chatplatform/relay/internal/store/pg"
	"github.com/chatplatform/relay/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay node",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	if cfg.Store.AutoMigrate {
		if err := autoMigrate(cfg.Store.DSN()); err != nil {
			slog.Error("auto-migrate failed", "error", err)
			os.Exit(1)
		}
	}

	stores, err := pg.NewStores(cfg.Store)
	if err != nil {
		slog.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	rabbit, err := bus.Dial(cfg.Bus)
	if err != nil {
		slog.Error("bus dial failed", "error", err)
		os.Exit(1)
	}
	defer rabbit.Close()

	ps, err := pubsub.DialRedis(ctx, cfg.PubSub)
	if err != nil {
		slog.Error("pubsub dial failed", "error", err)
		os.Exit(1)
	}
	defer ps.Close()

	sessionHub := hub.New(cfg.Hub, ps, rabbit, stores.Users)
	dispatcher := dispatch.New(stores, rabbit, sessionHub)
	sessionHub.SetTypingSink(dispatcher)

	var signer *media.Signer
	if cfg.Media.Bucket != "" {
		signer, err = media.NewSigner(ctx, cfg.Media)
		if err != nil {
			slog.Error("media signer init failed", "error", err)
			os.Exit(1)
		}
	}

	tokens := auth.NewTokens(cfg.Auth)
	server := httpapi.NewServer(cfg, stores, dispatcher, sessionHub, tokens, signer)
	consumer := consume.New(rabbit, stores.Chats, sessionHub)
	purger := cron.New(cfg.Cron, stores.Stories)

	slog.Info("relay starting", "version", Version, "instance", sessionHub.InstanceID())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return purger.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("relay stopped", "error", err)
		sessionHub.Close()
		os.Exit(1)
	}

	sessionHub.Close()
	slog.Info("relay stopped")
}

// autoMigrate applies pending migrations at startup.
func autoMigrate(dsn string) error {
	m, err := newMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	v, dirty, _ := m.Version()
	slog.Info("migrations applied", "version", v, "dirty", dirty)
	return nil
}
