package syncer

import (
	"context"
	"time"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/models"
	"github.com/melisync/melisync/internal/store"
	"github.com/shopspring/decimal"
)

// LedgerWriter conditionally persists daily totals.
type LedgerWriter struct {
	store store.LedgerStore
	now   func() time.Time
}

// NewLedgerWriter creates a writer backed by the given store.
func NewLedgerWriter(s store.LedgerStore) *LedgerWriter {
	return &LedgerWriter{store: s, now: time.Now}
}

// Commit upserts (empresa, date) with value when value is positive and
// reports whether a write was issued. Zero never clears a stored value.
func (w *LedgerWriter) Commit(ctx context.Context, empresa, date string, value decimal.Decimal) (bool, error) {
	if !value.IsPositive() {
		return false, nil
	}
	entry := models.LedgerEntry{
		Empresa:   empresa,
		Date:      date,
		Value:     value.Round(2).InexactFloat64(),
		UpdatedAt: w.now().UTC(),
	}
	if err := w.store.UpsertLedger(ctx, entry); err != nil {
		return false, &errors.UpsertError{Empresa: empresa, Date: date, Err: err}
	}
	return true, nil
}
