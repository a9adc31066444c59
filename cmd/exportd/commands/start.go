package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/erp"
	"github.com/motorgrid/exportd/internal/event"
	"github.com/motorgrid/exportd/internal/export"
	"github.com/motorgrid/exportd/internal/logger"
	"github.com/motorgrid/exportd/internal/notify"
	"github.com/motorgrid/exportd/internal/server"
	"github.com/motorgrid/exportd/internal/version"
)

// NewStartCommand runs the agent.
func NewStartCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the export agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanup, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer cleanup()

	log := logger.StdLogger()
	log.SetVersion(version.GetVersionInfo().Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info(ctx, "Starting export agent",
		"app", cfg.AppName,
		"version", version.GetVersionInfo().Version)

	store := newEventStore(ctx, cfg, log)
	bus := event.NewBus(256, log, store)
	bus.Start(ctx, 2)
	defer bus.Shutdown(context.Background())

	client := erp.NewClient(cfg.ERP, cfg.ERP.Token)
	session := server.NewSession(cfg.ERP.Token)
	downloader := export.NewDownloader(client, session.Token, cfg.ERP.Timeout)

	svc := export.NewService(cfg.Export, log, client, newNotifier(cfg, log))
	svc.Start(ctx)

	srv := server.New(cfg, log, svc, downloader, session, bus)

	cfg.Watch(func(next *config.Config) {
		log.Info(ctx, "Configuration file changed; restart to apply")
	})

	if err := srv.Start(ctx); err != nil {
		log.Error(ctx, "Server stopped with error", "error", err)
		return err
	}

	log.Info(context.Background(), "Export agent stopped")
	return nil
}

// newEventStore picks the Redis-backed store when Redis is configured,
// otherwise events are kept in memory.
func newEventStore(ctx context.Context, cfg *config.Config, log *logger.Logger) event.EventStore {
	if cfg.Data == nil || cfg.Data.Redis == nil || cfg.Data.Redis.Addr == "" {
		return event.NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Data.Redis.Addr,
		Username: cfg.Data.Redis.Username,
		Password: cfg.Data.Redis.Password,
		DB:       cfg.Data.Redis.DB,
	})
	store, err := event.NewRedisStore(client, log)
	if err != nil {
		log.Warn(ctx, "Redis unavailable, falling back to in-memory event store", "error", err)
		return event.NewMemoryStore()
	}
	return store
}

// newNotifier builds the notification chain from config: desktop
// alerts, SMTP, or none.
func newNotifier(cfg *config.Config, log *logger.Logger) notify.Notifier {
	if cfg.Notify == nil {
		return notify.Noop{}
	}
	if cfg.Notify.Desktop {
		return notify.NewDesktop(log)
	}
	if cfg.Notify.Email != nil && cfg.Notify.Email.Host != "" {
		email, err := notify.NewEmail(cfg.Notify.Email, log)
		if err != nil {
			log.Warn(context.Background(), "Email notifier misconfigured", "error", err)
			return notify.Noop{}
		}
		return email
	}
	return notify.Noop{}
}
