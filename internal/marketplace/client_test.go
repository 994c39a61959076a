package marketplace

import (
	"context"
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

var testCreds = models.Credentials{ClientID: "app-1", ClientSecret: "secret-1"}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(ClientConfig{
		AuthURL:        srv.URL + "/oauth/token",
		OrdersURL:      srv.URL + "/orders/search",
		UserAgent:      "melisync-test",
		RequestTimeout: 5 * time.Second,
		HTTPClient:     srv.Client(),
	})
}

func TestExchange_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))
		assert.Equal(t, "TG-old", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"APP_USR-1","token_type":"bearer","expires_in":21600,"refresh_token":"TG-new"}`)
	}))
	defer srv.Close()

	before := time.Now()
	grant, err := newTestClient(srv).Exchange(context.Background(), "LOJA1", testCreds, "TG-old")
	require.NoError(t, err)

	assert.Equal(t, "APP_USR-1", grant.AccessToken)
	assert.Equal(t, "TG-new", grant.RefreshToken)
	assert.WithinDuration(t, before.Add(6*time.Hour), grant.ExpiresAt, time.Minute)
}

func TestExchange_DefaultsExpiry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"a","refresh_token":"TG-new"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	grant, err := c.Exchange(context.Background(), "LOJA1", testCreds, "TG-old")
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(DefaultGrantLifetime), grant.ExpiresAt)
}

func TestExchange_Failures(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		errMsg     string
	}{
		{"invalid grant", http.StatusBadRequest, `{"error":"invalid_grant","message":"expired"}`, http.StatusBadRequest, "invalid_grant"},
		{"server error", http.StatusInternalServerError, `oops`, http.StatusInternalServerError, ""},
		{"missing refresh token", http.StatusOK, `{"access_token":"a","expires_in":21600}`, 0, "missing refresh_token"},
		{"same refresh token", http.StatusOK, `{"access_token":"a","refresh_token":"TG-old"}`, 0, "missing refresh_token"},
		{"missing access token", http.StatusOK, `{"refresh_token":"TG-new"}`, 0, "access_token"},
		{"malformed payload", http.StatusOK, `{not json`, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			grant, err := newTestClient(srv).Exchange(context.Background(), "LOJA1", testCreds, "TG-old")
			require.Error(t, err)
			assert.Nil(t, grant)

			var tokenErr *errors.TokenError
			require.True(t, stderrors.As(err, &tokenErr))
			assert.Equal(t, "LOJA1", tokenErr.Account)
			assert.Equal(t, tt.wantStatus, tokenErr.StatusCode)
			if tt.errMsg != "" {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}

func TestExchange_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(srv)
	srv.Close()

	_, err := c.Exchange(context.Background(), "LOJA1", testCreds, "TG-old")
	var tokenErr *errors.TokenError
	require.True(t, stderrors.As(err, &tokenErr))
	assert.Zero(t, tokenErr.StatusCode)
}

func TestSearchOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/search", r.URL.Path)
		assert.Equal(t, "Bearer APP_USR-1", r.Header.Get("Authorization"))
		assert.Equal(t, "melisync-test", r.Header.Get("User-Agent"))

		q := r.URL.Query()
		assert.Equal(t, "123", q.Get("seller"))
		assert.Equal(t, "paid", q.Get("order.status"))
		assert.Equal(t, "2024-05-01T00:00:00.000-03:00", q.Get("order.date_created.from"))
		assert.Equal(t, "2024-05-01T23:59:59.999-03:00", q.Get("order.date_created.to"))
		assert.Equal(t, "date_desc", q.Get("sort"))
		assert.Equal(t, "50", q.Get("limit"))
		assert.Equal(t, "100", q.Get("offset"))

		fmt.Fprint(w, `{"paging":{"total":120,"offset":100,"limit":50},"results":[{"id":1,"total_amount":10,"paid_amount":9.5,"tags":[]}]}`)
	}))
	defer srv.Close()

	page, err := newTestClient(srv).SearchOrders(context.Background(), "APP_USR-1", OrderQuery{
		SellerID: "123",
		From:     "2024-05-01T00:00:00.000-03:00",
		To:       "2024-05-01T23:59:59.999-03:00",
		Offset:   100,
		Limit:    50,
	})
	require.NoError(t, err)
	assert.Equal(t, 120, page.Paging.Total)
	require.Len(t, page.Results, 1)
	assert.Equal(t, "9.5", page.Results[0].Value().String())
}

func TestSearchOrders_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"message":"forbidden"}`)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).SearchOrders(context.Background(), "t", OrderQuery{Limit: 50})
		var statusErr *errors.ErrRemoteStatus
		require.True(t, stderrors.As(err, &statusErr))
		assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
		assert.Contains(t, statusErr.Body, "forbidden")
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "12")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).SearchOrders(context.Background(), "t", OrderQuery{Limit: 50})
		var rl *RateLimitError
		require.True(t, stderrors.As(err, &rl))
		assert.Equal(t, 12*time.Second, rl.RetryAfter)
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"paging":`)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).SearchOrders(context.Background(), "t", OrderQuery{Limit: 50})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode orders page")
	})
}

func TestDayWindow(t *testing.T) {
	brt := time.FixedZone("UTC-3", -3*3600)

	// 02:00 UTC is still the previous day in UTC-3.
	date, from, to := DayWindow(time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC), brt)
	assert.Equal(t, "2024-05-01", date)
	assert.Equal(t, "2024-05-01T00:00:00.000-03:00", from)
	assert.Equal(t, "2024-05-01T23:59:59.999-03:00", to)

	date, _, _ = DayWindow(time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC), brt)
	assert.Equal(t, "2024-05-02", date)
}

func TestRateLimitErrorFromHeaders(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, 30*time.Second, rateLimitErrorFromHeaders(h, "x").RetryAfter)

	h.Set("Retry-After", "5")
	err := rateLimitErrorFromHeaders(h, "orders")
	assert.Equal(t, 5*time.Second, err.RetryAfter)
	assert.Equal(t, "orders (retry after 5s)", err.Error())
}
