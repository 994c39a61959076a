package store

import (
	"context"

	"github.com/melisync/melisync/internal/models"
)

// TokenStore persists the latest refresh token of each account.
type TokenStore interface {
	// LoadToken returns nil without error when nothing is stored for the account.
	LoadToken(ctx context.Context, accountName string) (*models.PersistedToken, error)
	SaveToken(ctx context.Context, token models.PersistedToken) error
	ListTokens(ctx context.Context) ([]models.PersistedToken, error)
}

// LedgerStore persists daily revenue rows keyed by (empresa, date).
type LedgerStore interface {
	// UpsertLedger overwrites any existing row for the same key.
	UpsertLedger(ctx context.Context, entry models.LedgerEntry) error
	// ListLedger returns rows for empresa, newest date first.
	ListLedger(ctx context.Context, empresa string) ([]models.LedgerEntry, error)
}

// Store combines token and ledger persistence.
type Store interface {
	TokenStore
	LedgerStore
	Close() error
}
