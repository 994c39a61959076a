package store

import (
	"fmt"
	"net/http"
	"time"

	"github.com/melisync/melisync/internal/config"
)

// Open builds the store selected by the ledger configuration.
func Open(cfg config.LedgerConfig, client *http.Client, timeout time.Duration) (Store, error) {
	switch cfg.Backend {
	case "postgrest":
		return NewPostgRESTStore(PostgRESTConfig{
			BaseURL:     cfg.URL,
			ServiceKey:  cfg.ServiceKey,
			LedgerTable: cfg.LedgerTable,
			TokensTable: cfg.TokensTable,
			Timeout:     timeout,
		}, client), nil
	case "sqlite":
		return NewSQLiteStore(cfg.DBPath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}
