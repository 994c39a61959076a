package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPostgREST(t *testing.T, h http.HandlerFunc) *PostgRESTStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewPostgRESTStore(PostgRESTConfig{BaseURL: srv.URL + "/", ServiceKey: "svc-key"}, srv.Client())
}

func assertPostgRESTHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, "svc-key", r.Header.Get("apikey"))
	assert.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))
	assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
}

func TestPostgREST_UpsertLedger(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assertPostgRESTHeaders(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/faturamento", r.URL.Path)
		assert.Equal(t, "empresa,data", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=minimal", r.Header.Get("Prefer"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"empresa": "Loja", "data": "2024-05-01", "valor": 15230.5}, body)
		w.WriteHeader(http.StatusCreated)
	})

	err := s.UpsertLedger(context.Background(), models.LedgerEntry{Empresa: "Loja", Date: "2024-05-01", Value: 15230.5})
	require.NoError(t, err)
}

func TestPostgREST_UpsertLedgerFailure(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message":"duplicate"}`)
	})

	err := s.UpsertLedger(context.Background(), models.LedgerEntry{Empresa: "Loja", Date: "2024-05-01", Value: 1})
	var statusErr *errors.ErrRemoteStatus
	require.True(t, stderrors.As(err, &statusErr))
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Equal(t, "upsert ledger", statusErr.Operation)
}

func TestPostgREST_LoadToken(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assertPostgRESTHeaders(t, r)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/meli_tokens", r.URL.Path)
		assert.Equal(t, "refresh_token", r.URL.Query().Get("select"))

		switch r.URL.Query().Get("account_name") {
		case "eq.LOJA1":
			fmt.Fprint(w, `[{"refresh_token":"TG-db"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})

	tok, err := s.LoadToken(context.Background(), "LOJA1")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "TG-db", tok.RefreshToken)
	assert.Equal(t, "LOJA1", tok.AccountName)

	tok, err = s.LoadToken(context.Background(), "OTHER")
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestPostgREST_LoadTokenErrors(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := s.LoadToken(context.Background(), "LOJA1")
	var statusErr *errors.ErrRemoteStatus
	require.True(t, stderrors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestPostgREST_SaveToken(t *testing.T) {
	expires := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assertPostgRESTHeaders(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/meli_tokens", r.URL.Path)
		assert.Equal(t, "resolution=merge-duplicates", r.Header.Get("Prefer"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "LOJA1", body["account_name"])
		assert.Equal(t, "TG-2", body["refresh_token"])
		assert.Equal(t, "APP-2", body["access_token"])
		assert.Equal(t, "2024-05-01T18:00:00Z", body["access_token_expires_at"])
		assert.NotEmpty(t, body["updated_at"])
		w.WriteHeader(http.StatusCreated)
	})

	err := s.SaveToken(context.Background(), models.PersistedToken{
		AccountName:          "LOJA1",
		RefreshToken:         "TG-2",
		AccessToken:          "APP-2",
		AccessTokenExpiresAt: expires,
	})
	require.NoError(t, err)
}

func TestPostgREST_ListLedger(t *testing.T) {
	s := newTestPostgREST(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.Loja", r.URL.Query().Get("empresa"))
		assert.Equal(t, "data.desc", r.URL.Query().Get("order"))
		fmt.Fprint(w, `[{"empresa":"Loja","data":"2024-05-02","valor":3},{"empresa":"Loja","data":"2024-05-01","valor":10.5}]`)
	})

	rows, err := s.ListLedger(context.Background(), "Loja")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 10.5, rows[1].Value)
}

func TestPostgREST_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	s := NewPostgRESTStore(PostgRESTConfig{BaseURL: srv.URL, ServiceKey: "k"}, srv.Client())
	srv.Close()

	err := s.UpsertLedger(context.Background(), models.LedgerEntry{Empresa: "Loja", Date: "2024-05-01", Value: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert ledger")
}
