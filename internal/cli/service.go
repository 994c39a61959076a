package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/melisync/melisync/internal/config"
	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/marketplace"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
	"github.com/melisync/melisync/internal/store"
	"github.com/melisync/melisync/internal/syncer"
	"github.com/rs/zerolog"
)

const defaultConfigPath = "config.yaml"

// service bundles everything a command needs to run sync cycles.
type service struct {
	cfg         *config.Config
	logger      *logging.Logger
	metrics     *metrics.Metrics
	client      *marketplace.Client
	store       store.Store
	accounts    models.AccountList
	rotator     *syncer.Rotator
	coordinator *syncer.Coordinator
}

// loadConfig reads the --config file. The default path may be absent.
func loadConfig() (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(globalFlags.Config)
	if globalFlags.Config == defaultConfigPath {
		loader.AllowMissing()
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, loader, nil
}

func newLogger(cfg config.ServerConfig, out io.Writer) *logging.Logger {
	level := logging.ParseLevel(cfg.LogLevel)
	if globalFlags.Verbose {
		level = logging.LevelDebug
	}
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return logging.NewLogger(logging.WithOutput(out), logging.WithLevel(level))
}

// resolveAccounts builds the ordered account list: environment accounts
// first, then YAML accounts with names not already discovered.
func resolveAccounts(cfg *config.Config, logger *logging.Logger) (models.AccountList, error) {
	discovery, err := config.DiscoverAccounts()
	if err != nil {
		return nil, err
	}
	for _, name := range discovery.Skipped {
		logger.Warn("account skipped: incomplete credentials", "account", name)
	}
	for _, name := range discovery.Unsupported {
		logger.Warn("account skipped: name must be upper-case, rename MELI_"+name+"_* variables", "account", name)
	}

	merged := config.MergeAccounts(discovery.Accounts, cfg.Accounts)
	accounts := make(models.AccountList, 0, len(merged))
	for _, a := range merged {
		acc := models.NewAccount(a.Name, a.Empresa, a.UserID, a.AppID, a.SecretKey, a.RefreshToken)
		if err := acc.Validate(); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.Name, err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func buildService(cfg *config.Config, logOut io.Writer) (*service, error) {
	logger := newLogger(cfg.Server, logOut)

	accounts, err := resolveAccounts(cfg, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.NewMetrics("melisync")
	httpClient := marketplace.NewHTTPClient()
	client := marketplace.NewClient(marketplace.ClientConfig{
		AuthURL:        cfg.Marketplace.AuthURL,
		OrdersURL:      cfg.Marketplace.OrdersURL,
		UserAgent:      cfg.Marketplace.UserAgent,
		RequestTimeout: cfg.Sync.RequestTimeout,
		HTTPClient:     httpClient,
	})

	st, err := store.Open(cfg.Ledger, httpClient, cfg.Sync.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Ledger.Backend, err)
	}

	rotator := syncer.NewRotator(client, st, logger, m)
	coordinator := syncer.NewCoordinator(syncer.CoordinatorConfig{
		Accounts:   accounts,
		Rotator:    rotator,
		Aggregator: syncer.NewAggregator(client, cfg.Sync.PageSize, cfg.Sync.MaxOffset, m),
		Writer:     syncer.NewLedgerWriter(st),
		Location:   cfg.Sync.Location(),
		IdleCloser: client,
		Logger:     logger,
		Metrics:    m,
	})

	return &service{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		client:      client,
		store:       st,
		accounts:    accounts,
		rotator:     rotator,
		coordinator: coordinator,
	}, nil
}
