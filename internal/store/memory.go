package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/melisync/melisync/internal/models"
)

type ledgerKey struct {
	empresa string
	date    string
}

// MemoryStore keeps tokens and ledger rows in process memory.
// It is thread-safe and loses everything on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]models.PersistedToken
	ledger map[ledgerKey]models.LedgerEntry
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]models.PersistedToken),
		ledger: make(map[ledgerKey]models.LedgerEntry),
	}
}

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// LoadToken retrieves the persisted token for an account
func (s *MemoryStore) LoadToken(_ context.Context, accountName string) (*models.PersistedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[accountName]
	if !ok {
		return nil, nil
	}
	return &tok, nil
}

// SaveToken stores or replaces the token for an account
func (s *MemoryStore) SaveToken(_ context.Context, token models.PersistedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}
	s.tokens[token.AccountName] = token
	return nil
}

// ListTokens returns all persisted tokens ordered by account name
func (s *MemoryStore) ListTokens(_ context.Context) ([]models.PersistedToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PersistedToken, 0, len(s.tokens))
	for _, tok := range s.tokens {
		out = append(out, tok)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountName < out[j].AccountName })
	return out, nil
}

// UpsertLedger stores or replaces a ledger row
func (s *MemoryStore) UpsertLedger(_ context.Context, entry models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	s.ledger[ledgerKey{entry.Empresa, entry.Date}] = entry
	return nil
}

// ListLedger returns the rows for empresa, newest first
func (s *MemoryStore) ListLedger(_ context.Context, empresa string) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LedgerEntry
	for k, e := range s.ledger {
		if k.empresa == empresa {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
