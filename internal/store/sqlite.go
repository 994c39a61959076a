package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists tokens and ledger rows in a local SQLite database with WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// Ensure SQLiteStore implements the Store interface
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Create directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS meli_tokens (
					account_name TEXT PRIMARY KEY,
					refresh_token TEXT NOT NULL,
					access_token TEXT NOT NULL DEFAULT '',
					access_token_expires_at DATETIME,
					updated_at DATETIME NOT NULL
				);

				CREATE TABLE IF NOT EXISTS faturamento (
					empresa TEXT NOT NULL,
					data TEXT NOT NULL,
					valor REAL NOT NULL,
					updated_at DATETIME NOT NULL,
					PRIMARY KEY (empresa, data)
				);
			`,
		},
		{
			version: 2,
			up: `
				CREATE INDEX IF NOT EXISTS idx_faturamento_data ON faturamento(data);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Token operations

// LoadToken retrieves the persisted token for an account
func (s *SQLiteStore) LoadToken(ctx context.Context, accountName string) (*models.PersistedToken, error) {
	var (
		tok       models.PersistedToken
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT account_name, refresh_token, access_token, access_token_expires_at, updated_at
		FROM meli_tokens WHERE account_name = ?
	`, accountName).Scan(&tok.AccountName, &tok.RefreshToken, &tok.AccessToken, &expiresAt, &tok.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "load token", Err: err}
	}
	if expiresAt.Valid {
		tok.AccessTokenExpiresAt = expiresAt.Time
	}
	return &tok, nil
}

// SaveToken stores or replaces the token for an account
func (s *SQLiteStore) SaveToken(ctx context.Context, token models.PersistedToken) error {
	if token.UpdatedAt.IsZero() {
		token.UpdatedAt = time.Now().UTC()
	}
	var expiresAt interface{}
	if !token.AccessTokenExpiresAt.IsZero() {
		expiresAt = token.AccessTokenExpiresAt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meli_tokens (account_name, refresh_token, access_token, access_token_expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(account_name) DO UPDATE SET
			refresh_token = excluded.refresh_token,
			access_token = excluded.access_token,
			access_token_expires_at = excluded.access_token_expires_at,
			updated_at = excluded.updated_at
	`, token.AccountName, token.RefreshToken, token.AccessToken, expiresAt, token.UpdatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "save token", Err: err}
	}
	return nil
}

// ListTokens returns all persisted tokens ordered by account name
func (s *SQLiteStore) ListTokens(ctx context.Context) ([]models.PersistedToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT account_name, refresh_token, access_token, access_token_expires_at, updated_at
		FROM meli_tokens ORDER BY account_name
	`)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list tokens", Err: err}
	}
	defer rows.Close()

	var out []models.PersistedToken
	for rows.Next() {
		var (
			tok       models.PersistedToken
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&tok.AccountName, &tok.RefreshToken, &tok.AccessToken, &expiresAt, &tok.UpdatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan token", Err: err}
		}
		if expiresAt.Valid {
			tok.AccessTokenExpiresAt = expiresAt.Time
		}
		out = append(out, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list tokens", Err: err}
	}
	return out, nil
}

// Ledger operations

// UpsertLedger stores or replaces the row for (empresa, date)
func (s *SQLiteStore) UpsertLedger(ctx context.Context, entry models.LedgerEntry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO faturamento (empresa, data, valor, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(empresa, data) DO UPDATE SET
			valor = excluded.valor,
			updated_at = excluded.updated_at
	`, entry.Empresa, entry.Date, entry.Value, entry.UpdatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert ledger", Err: err}
	}
	return nil
}

// ListLedger returns the rows for empresa, newest first
func (s *SQLiteStore) ListLedger(ctx context.Context, empresa string) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT empresa, data, valor, updated_at
		FROM faturamento WHERE empresa = ? ORDER BY data DESC
	`, empresa)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list ledger", Err: err}
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.Empresa, &e.Date, &e.Value, &e.UpdatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan ledger", Err: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list ledger", Err: err}
	}
	return out, nil
}
