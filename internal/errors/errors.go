package errors

import "fmt"

// Config errors

type ErrConfigNotFound struct {
	Path string
}

func (e *ErrConfigNotFound) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

type ErrConfigParse struct {
	Err error
}

func (e *ErrConfigParse) Error() string {
	return fmt.Sprintf("failed to parse YAML: %v", e.Err)
}

func (e *ErrConfigParse) Unwrap() error {
	return e.Err
}

type ErrConfigValidation struct {
	Err error
}

func (e *ErrConfigValidation) Error() string {
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ErrConfigValidation) Unwrap() error {
	return e.Err
}

// Database errors

type ErrDatabaseOpen struct {
	Path string
	Err  error
}

func (e *ErrDatabaseOpen) Error() string {
	return fmt.Sprintf("failed to open database %s: %v", e.Path, e.Err)
}

func (e *ErrDatabaseOpen) Unwrap() error {
	return e.Err
}

type ErrDatabaseMigration struct {
	Version int
	Err     error
}

func (e *ErrDatabaseMigration) Error() string {
	return fmt.Sprintf("database migration %d failed: %v", e.Version, e.Err)
}

func (e *ErrDatabaseMigration) Unwrap() error {
	return e.Err
}

type ErrDatabaseQuery struct {
	Operation string
	Err       error
}

func (e *ErrDatabaseQuery) Error() string {
	return fmt.Sprintf("database query failed for operation %s: %v", e.Operation, e.Err)
}

func (e *ErrDatabaseQuery) Unwrap() error {
	return e.Err
}

// Remote store errors

// ErrRemoteStatus is returned when a REST backend answers with a non-2xx status.
type ErrRemoteStatus struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ErrRemoteStatus) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Operation, e.StatusCode)
}

// Server errors

type ErrServerStart struct {
	Addr string
	Err  error
}

func (e *ErrServerStart) Error() string {
	return fmt.Sprintf("failed to start server on %s: %v", e.Addr, e.Err)
}

func (e *ErrServerStart) Unwrap() error {
	return e.Err
}

type ErrServerShutdown struct {
	Err error
}

func (e *ErrServerShutdown) Error() string {
	return fmt.Sprintf("server shutdown failed: %v", e.Err)
}

func (e *ErrServerShutdown) Unwrap() error {
	return e.Err
}

// Filesystem errors

type ErrDirectoryCreate struct {
	Path string
	Err  error
}

func (e *ErrDirectoryCreate) Error() string {
	return fmt.Sprintf("failed to create directory %s: %v", e.Path, e.Err)
}

func (e *ErrDirectoryCreate) Unwrap() error {
	return e.Err
}

type ErrFileRead struct {
	Path string
	Err  error
}

func (e *ErrFileRead) Error() string {
	return fmt.Sprintf("failed to read file %s: %v", e.Path, e.Err)
}

func (e *ErrFileRead) Unwrap() error {
	return e.Err
}

// Sync errors

// TokenError reports a failed credential exchange. The cached refresh token
// is unchanged when this error is returned.
type TokenError struct {
	Account    string
	StatusCode int
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh failed for %s (status %d): %v", e.Account, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token refresh failed for %s: %v", e.Account, e.Err)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// FetchError reports a failed order search page. Partial totals are discarded.
type FetchError struct {
	Account string
	Offset  int
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("orders search failed for %s at offset %d: %v", e.Account, e.Offset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// UpsertError is returned when the ledger row for (empresa, date) could not be written.
type UpsertError struct {
	Empresa string
	Date    string
	Err     error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("ledger upsert failed for %s/%s: %v", e.Empresa, e.Date, e.Err)
}

func (e *UpsertError) Unwrap() error {
	return e.Err
}

// UnexpectedError wraps anything not classified above, including recovered panics.
type UnexpectedError struct {
	Account string
	Err     error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("sync failed for %s: %v", e.Account, e.Err)
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
