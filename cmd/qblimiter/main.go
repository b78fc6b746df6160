package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gamevyo/qblimiter/internal/api"
	"github.com/gamevyo/qblimiter/internal/config"
	"github.com/gamevyo/qblimiter/internal/database"
	"github.com/gamevyo/qblimiter/internal/downloader"
	"github.com/gamevyo/qblimiter/internal/eventbus"
	"github.com/gamevyo/qblimiter/internal/logger"
	"github.com/gamevyo/qblimiter/internal/notification"
	"github.com/gamevyo/qblimiter/internal/plugin"
	"github.com/gamevyo/qblimiter/internal/plugin/qblimiter"
	"github.com/gamevyo/qblimiter/internal/pluginstate"
	"github.com/gamevyo/qblimiter/internal/scheduler"
	"github.com/gamevyo/qblimiter/internal/startup"
	"github.com/gamevyo/qblimiter/internal/websocket"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting qblimiter")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("qblimiter stopped with error")
		log.Close()
		os.Exit(1)
	}
	log.Info().Msg("qblimiter stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	log.Info().Str("path", db.Path()).Ints64("applied", applied).Msg("database ready")

	store, err := pluginstate.New(cfg.State, db.Conn())
	if err != nil {
		return fmt.Errorf("failed to create plugin state store: %w", err)
	}

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		return err
	}

	bus := eventbus.New(log.Logger)

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)
	log.SetHub(hub)

	downloaders, err := downloader.NewServiceFromConfig(cfg.Downloaders, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to configure download clients: %w", err)
	}
	go downloaders.ConnectAll(ctx, startup.DefaultRetryConfig())

	transfers := downloader.NewTransferBroadcaster(downloaders, hub, log.Logger)
	transfers.Start()
	defer transfers.Stop()

	notifications, err := notification.NewServiceFromConfig(cfg.Notifications, log.Logger)
	if err != nil {
		return fmt.Errorf("failed to configure notifications: %w", err)
	}

	plugins := plugin.NewManager(store, log.Logger)
	plugins.SetPublisher(bus)
	if err := plugins.Register(qblimiter.New(qblimiter.Deps{
		Gateway:   downloaders,
		Scheduler: sched,
		Bus:       bus,
		Notifier:  notifications,
		Store:     store,
		Hub:       hub,
		Logger:    log.Logger,
	})); err != nil {
		return err
	}

	// Stopped after plugins.Shutdown so plugins can still remove their jobs.
	if err := sched.Start(); err != nil {
		return err
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn().Err(err).Msg("scheduler shutdown error")
		}
	}()

	if err := plugins.Start(ctx); err != nil {
		return err
	}
	defer plugins.Shutdown()

	// Push fresh transfer state after a command or reload has been handled.
	// Delivery is in subscription order, so this runs after the plugins.
	refresh := func(context.Context, eventbus.Event) { transfers.Trigger() }
	defer bus.Subscribe(eventbus.CommandExecute, refresh)()
	defer bus.Subscribe(eventbus.PluginReload, refresh)()

	api.Version = version
	server := api.NewServer(cfg, api.Services{
		Plugins:       plugins,
		Scheduler:     sched,
		Downloaders:   downloaders,
		Notifications: notifications,
		Bus:           bus,
		Hub:           hub,
		Logs:          log,
	}, log.Logger)

	hub.SetCommandHandler(func(ctx context.Context, command, user string) error {
		server.PublishCommand(ctx, command, "websocket", user)
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}
