package cli

import (
	"context"
	"fmt"
	"os/signal"
	"time"

	"github.com/melisync/melisync/internal/api"
	"github.com/melisync/melisync/internal/config"
	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/syncer"
	"github.com/melisync/melisync/internal/telegram"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Run the scheduler and HTTP API",
	Long: `Run melisync in main mode.

Persisted refresh tokens are restored, the HTTP API starts, and a sync
cycle runs every sync.interval (SYNC_INTERVAL_MINUTES). POST /sync
triggers a cycle on demand; concurrent triggers share one cycle.

Example:
  melisync serve --config config.yaml --port 8080`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", 0, "Shutdown timeout (overrides config)")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, loader, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}
	if serveFlags.Timeout > 0 {
		cfg.Server.ShutdownTimeout = serveFlags.Timeout
	}

	svc, err := buildService(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	logger := svc.logger

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if len(svc.accounts) == 0 {
		logger.Warn("no accounts configured; cycles will be empty")
	}
	restored := svc.rotator.Restore(ctx, svc.accounts)
	logger.Info("accounts loaded",
		"accounts", len(svc.accounts),
		"restored_tokens", restored,
		"ledger", cfg.Ledger.Backend,
		"interval", cfg.Sync.Interval.String(),
	)

	if cfg.Telegram.Enabled {
		attachTelegram(svc, cfg.Telegram)
	}

	watchConfig(ctx, loader, logger)

	scheduler := syncer.NewScheduler(svc.coordinator, syncer.SchedulerConfig{
		Interval:   cfg.Sync.Interval,
		RunOnStart: cfg.Sync.RunOnStart,
	}, logger)

	server := api.NewServer(cfg.Server, cfg.API, svc.coordinator, api.Options{
		Interval: cfg.Sync.Interval,
		Metrics:  svc.metrics,
		Logger:   logger,
	})

	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	sigCh := api.SetupSignalHandler()
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case runErr = <-serverErr:
		logger.Error("HTTP server stopped", "error", fmt.Sprint(runErr))
	case <-ctx.Done():
	}

	cancel()
	shutdownErr := api.ShutdownWithComponents(server, cfg.Server.ShutdownTimeout, []api.Shutdownable{
		api.ShutdownFunc(func(context.Context) error { return scheduler.Stop() }),
		api.ShutdownFunc(func(context.Context) error { return svc.store.Close() }),
	})
	if runErr != nil {
		return runErr
	}
	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info("graceful shutdown completed")
	return nil
}

func attachTelegram(svc *service, cfg config.TelegramConfig) {
	client, err := telegram.NewTGBotAPIClient(cfg.BotToken)
	if err != nil {
		svc.logger.Warn("telegram disabled: bot initialization failed", "error", err.Error())
		return
	}
	notifier := telegram.NewNotifier(client, telegram.NotifierConfig{ChatID: cfg.ChatID}, svc.logger, svc.metrics)
	svc.coordinator.OnCycle(notifier.HandleCycle)
	svc.logger.Info("telegram alerts enabled", "chat_id", cfg.ChatID)
}

// watchConfig applies log level changes from the config file without a
// restart. Accounts and the interval are fixed at startup.
func watchConfig(ctx context.Context, loader *config.Loader, logger *logging.Logger) {
	loader.SetOnChange(func(c *config.Config) {
		level := logging.ParseLevel(c.Server.LogLevel)
		if globalFlags.Verbose {
			level = logging.LevelDebug
		}
		logger.SetLevel(level)
		logger.Info("configuration reloaded", "log_level", string(level))
	})
	loader.SetOnError(func(err error) {
		logger.Warn("configuration reload failed", "error", err.Error())
	})

	if err := loader.Watch(ctx); err != nil {
		logger.Debug("config watch disabled", "path", loader.Path(), "error", err.Error())
	}
}
