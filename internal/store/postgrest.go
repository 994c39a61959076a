package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/models"
)

// PostgRESTConfig configures a PostgRESTStore.
type PostgRESTConfig struct {
	BaseURL     string
	ServiceKey  string
	LedgerTable string
	TokensTable string
	Timeout     time.Duration
}

// PostgRESTStore persists tokens and ledger rows through a PostgREST
// endpoint (for example Supabase) using merge-duplicates upserts.
type PostgRESTStore struct {
	http        *http.Client
	baseURL     string
	serviceKey  string
	ledgerTable string
	tokensTable string
	timeout     time.Duration
}

// Ensure PostgRESTStore implements the Store interface
var _ Store = (*PostgRESTStore)(nil)

// NewPostgRESTStore creates a store sharing the given HTTP client.
func NewPostgRESTStore(cfg PostgRESTConfig, client *http.Client) *PostgRESTStore {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.LedgerTable == "" {
		cfg.LedgerTable = "faturamento"
	}
	if cfg.TokensTable == "" {
		cfg.TokensTable = "meli_tokens"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &PostgRESTStore{
		http:        client,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey:  cfg.ServiceKey,
		ledgerTable: cfg.LedgerTable,
		tokensTable: cfg.TokensTable,
		timeout:     cfg.Timeout,
	}
}

func (s *PostgRESTStore) tableURL(table string, params url.Values) string {
	u := s.baseURL + "/rest/v1/" + table
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (s *PostgRESTStore) do(ctx context.Context, operation, method, target, prefer string, body interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", operation, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &errors.ErrRemoteStatus{Operation: operation, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", operation, err)
	}
	return nil
}

// LoadToken fetches the stored refresh token for an account
func (s *PostgRESTStore) LoadToken(ctx context.Context, accountName string) (*models.PersistedToken, error) {
	params := url.Values{}
	params.Set("account_name", "eq."+accountName)
	params.Set("select", "refresh_token")

	var rows []struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := s.do(ctx, "load token", http.MethodGet, s.tableURL(s.tokensTable, params), "", nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].RefreshToken == "" {
		return nil, nil
	}
	return &models.PersistedToken{AccountName: accountName, RefreshToken: rows[0].RefreshToken}, nil
}

// SaveToken upserts the token row keyed by account name
func (s *PostgRESTStore) SaveToken(ctx context.Context, token models.PersistedToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}
	return s.do(ctx, "save token", http.MethodPost, s.tableURL(s.tokensTable, nil), "resolution=merge-duplicates", token, nil)
}

// ListTokens returns token metadata for every account, without secrets
func (s *PostgRESTStore) ListTokens(ctx context.Context) ([]models.PersistedToken, error) {
	params := url.Values{}
	params.Set("select", "account_name,access_token_expires_at,updated_at")
	params.Set("order", "account_name.asc")

	var rows []models.PersistedToken
	if err := s.do(ctx, "list tokens", http.MethodGet, s.tableURL(s.tokensTable, params), "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpsertLedger merges the row for (empresa, date)
func (s *PostgRESTStore) UpsertLedger(ctx context.Context, entry models.LedgerEntry) error {
	params := url.Values{}
	params.Set("on_conflict", "empresa,data")

	return s.do(ctx, "upsert ledger", http.MethodPost, s.tableURL(s.ledgerTable, params),
		"resolution=merge-duplicates,return=minimal", entry, nil)
}

// ListLedger returns the rows for empresa, newest first
func (s *PostgRESTStore) ListLedger(ctx context.Context, empresa string) ([]models.LedgerEntry, error) {
	params := url.Values{}
	params.Set("empresa", "eq."+empresa)
	params.Set("select", "empresa,data,valor")
	params.Set("order", "data.desc")

	var rows []models.LedgerEntry
	if err := s.do(ctx, "list ledger", http.MethodGet, s.tableURL(s.ledgerTable, params), "", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Close releases nothing; the HTTP client is shared.
func (s *PostgRESTStore) Close() error {
	return nil
}
