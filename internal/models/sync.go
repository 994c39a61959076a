package models

import (
	"encoding/json"
	"time"
)

// SyncStatus is the terminal outcome of one account in a cycle.
type SyncStatus string

const (
	StatusSynced      SyncStatus = "synced"
	StatusNoSales     SyncStatus = "no_sales"
	StatusTokenError  SyncStatus = "token_error"
	StatusUpsertError SyncStatus = "upsert_error"
	StatusError       SyncStatus = "error"
)

// HasTotals reports whether results with this status carry value and order counts.
func (s SyncStatus) HasTotals() bool {
	switch s {
	case StatusSynced, StatusNoSales, StatusUpsertError:
		return true
	default:
		return false
	}
}

// SyncResult is the outcome of one account in one cycle.
type SyncResult struct {
	Account      string     `json:"-"`
	Empresa      string     `json:"empresa"`
	Date         string     `json:"date"`
	Value        float64    `json:"valor"`
	OrderCount   int        `json:"orders"`
	FraudSkipped int        `json:"fraud_skipped"`
	Status       SyncStatus `json:"status"`
	Error        string     `json:"error,omitempty"`
}

// MarshalJSON omits totals for statuses that never reached aggregation.
func (r SyncResult) MarshalJSON() ([]byte, error) {
	if r.Status.HasTotals() {
		type plain SyncResult
		return json.Marshal(plain(r))
	}
	return json.Marshal(struct {
		Empresa string     `json:"empresa"`
		Date    string     `json:"date"`
		Status  SyncStatus `json:"status"`
		Error   string     `json:"error,omitempty"`
	}{r.Empresa, r.Date, r.Status, r.Error})
}

// LedgerEntry is one persisted daily revenue figure.
type LedgerEntry struct {
	Empresa   string    `json:"empresa"`
	Date      string    `json:"data"`
	Value     float64   `json:"valor"`
	UpdatedAt time.Time `json:"-"`
}

// RunSnapshot is a read-only copy of the last completed cycle.
type RunSnapshot struct {
	LastSync *time.Time   `json:"last_sync"`
	Results  []SyncResult `json:"results"`
}
