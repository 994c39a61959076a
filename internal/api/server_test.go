package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/melisync/melisync/internal/config"
	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSync struct {
	mu       sync.Mutex
	accounts models.AccountList
	snapshot models.RunSnapshot
	results  []models.SyncResult
	err      error
	calls    int
	ctxErr   error
}

func (f *fakeSync) RunCycle(ctx context.Context) ([]models.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return nil, f.err
	}
	now := time.Date(2024, 5, 1, 22, 30, 0, 0, time.FixedZone("UTC-3", -3*3600))
	f.snapshot = models.RunSnapshot{LastSync: &now, Results: f.results}
	return f.results, nil
}

func (f *fakeSync) Snapshot() models.RunSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot.Results == nil {
		f.snapshot.Results = []models.SyncResult{}
	}
	return f.snapshot
}

func (f *fakeSync) Accounts() models.AccountList {
	return f.accounts
}

func newFakeSync() *fakeSync {
	return &fakeSync{
		accounts: models.AccountList{
			models.NewAccount("LOJA1", "Loja Um", "111", "app1", "sec1", "TG-1"),
			models.NewAccount("LOJA2", "", "222", "app2", "sec2", "TG-2"),
		},
		results: []models.SyncResult{
			{Account: "LOJA1", Empresa: "Loja Um", Date: "2024-05-01", Value: 860, OrderCount: 86, FraudSkipped: 1, Status: models.StatusSynced},
			{Account: "LOJA2", Empresa: "LOJA2", Date: "2024-05-01", Status: models.StatusTokenError, Error: "token refresh failed for LOJA2 (status 400): invalid_grant"},
		},
	}
}

func setupTestServer(t *testing.T, apiCfg config.APIConfig) (*Server, *fakeSync, *metrics.Metrics) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newFakeSync()
	m := metrics.NewMetrics("api_test")
	srv := NewServer(config.ServerConfig{Host: "localhost", HTTPPort: 8080}, apiCfg, svc, Options{
		Interval: 5 * time.Minute,
		Metrics:  m,
		Logger:   logging.NewLogger(logging.WithOutput(&bytes.Buffer{})),
	})
	return srv, svc, m
}

func serve(s *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleStatus(t *testing.T) {
	server, _, _ := setupTestServer(t, config.APIConfig{})

	w := serve(server, "GET", "/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ServiceName, resp.Service)
	assert.Equal(t, []string{"Loja Um", "LOJA2"}, resp.Accounts)
	assert.Equal(t, 5.0, resp.IntervalMinutes)
	assert.Nil(t, resp.LastSync)
	assert.Contains(t, w.Body.String(), `"last_sync":null`)
}

func TestHandleHealth(t *testing.T) {
	server, _, _ := setupTestServer(t, config.APIConfig{})

	w := serve(server, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 2, resp.Accounts)
}

func TestHandleSyncThenLast(t *testing.T) {
	server, svc, _ := setupTestServer(t, config.APIConfig{})

	w := serve(server, "GET", "/last", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"last_sync":null,"results":[]}`, w.Body.String())

	w = serve(server, "POST", "/sync", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.calls)

	var raw struct {
		Results []map[string]interface{} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Len(t, raw.Results, 2)

	synced := raw.Results[0]
	assert.Equal(t, "synced", synced["status"])
	assert.Equal(t, 860.0, synced["valor"])
	assert.Equal(t, 86.0, synced["orders"])
	assert.NotContains(t, synced, "error")

	failed := raw.Results[1]
	assert.Equal(t, "token_error", failed["status"])
	assert.Contains(t, failed["error"], "invalid_grant")
	assert.NotContains(t, failed, "valor")

	w = serve(server, "GET", "/last", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"last_sync":"2024-05-01T22:30:00-03:00"`)
	assert.Contains(t, w.Body.String(), `"empresa":"Loja Um"`)
}

func TestHandleSyncDetachesFromRequestContext(t *testing.T) {
	server, svc, _ := setupTestServer(t, config.APIConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/sync", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, svc.ctxErr)
}

func TestHandleSyncFailure(t *testing.T) {
	server, svc, _ := setupTestServer(t, config.APIConfig{})
	svc.err = stderrors.New("context canceled")

	w := serve(server, "POST", "/sync", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "sync_failed")

	body := serve(server, "GET", "/metrics", nil).Body.String()
	assert.Contains(t, body, `api_test_errors_total{component="api",type="manual_sync"} 1`)
}

func TestHandleSyncRequiresKeyWhenEnabled(t *testing.T) {
	server, svc, _ := setupTestServer(t, config.APIConfig{
		Auth: config.AuthConfig{Enabled: true, APIKeys: []string{"k1"}},
	})

	w := serve(server, "POST", "/sync", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, svc.calls)

	w = serve(server, "POST", "/sync", map[string]string{DefaultAPIKeyHeader: "k1"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.calls)

	w = serve(server, "GET", "/last", nil)
	assert.Equal(t, http.StatusOK, w.Code, "read endpoints stay open")
}

func TestAuthDisabledIgnoresConfiguredKeys(t *testing.T) {
	server, svc, _ := setupTestServer(t, config.APIConfig{
		Auth: config.AuthConfig{Enabled: false, APIKeys: []string{"k1"}},
	})

	w := serve(server, "POST", "/sync", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.calls)
}

func TestMethodNotAllowed(t *testing.T) {
	server, _, _ := setupTestServer(t, config.APIConfig{})

	w := serve(server, "GET", "/sync", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestCorrelationIDEchoed(t *testing.T) {
	server, _, _ := setupTestServer(t, config.APIConfig{})

	w := serve(server, "GET", "/health", map[string]string{"X-Correlation-ID": "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get("X-Correlation-ID"))

	w = serve(server, "GET", "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestRateLimit(t *testing.T) {
	server, _, _ := setupTestServer(t, config.APIConfig{
		RateLimit: config.RateLimitConfig{RequestsPerMinute: 1, Burst: 2},
	})

	assert.Equal(t, http.StatusOK, serve(server, "GET", "/health", nil).Code)
	assert.Equal(t, http.StatusOK, serve(server, "GET", "/health", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(server, "GET", "/health", nil).Code)
}

func TestBodyLimit(t *testing.T) {
	server, svc, _ := setupTestServer(t, config.APIConfig{MaxBodyBytes: 16})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/sync", strings.NewReader(strings.Repeat("x", 64)))
	server.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, svc.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t, config.APIConfig{})

	serve(server, "GET", "/health", nil)
	w := serve(server, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `api_test_http_requests_total{endpoint="/health",method="GET",status="200"} 1`)
	assert.NotContains(t, w.Body.String(), `endpoint="/metrics"`)
}
