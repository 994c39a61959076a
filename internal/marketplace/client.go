package marketplace

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/models"
	"golang.org/x/oauth2"
)

// DefaultGrantLifetime is assumed when the token response carries no expires_in.
const DefaultGrantLifetime = 6 * time.Hour

// ClientConfig configures a marketplace Client.
type ClientConfig struct {
	AuthURL        string
	OrdersURL      string
	UserAgent      string
	RequestTimeout time.Duration
	// HTTPClient overrides the default pooled client.
	HTTPClient *http.Client
}

// Client talks to the marketplace token and order search endpoints.
// A single Client is shared by every account in a cycle.
type Client struct {
	http           *http.Client
	authURL        string
	ordersURL      string
	userAgent      string
	requestTimeout time.Duration
	now            func() time.Time
}

// NewClient creates a marketplace client.
func NewClient(cfg ClientConfig) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = NewHTTPClient()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:           hc,
		authURL:        cfg.AuthURL,
		ordersURL:      cfg.OrdersURL,
		userAgent:      cfg.UserAgent,
		requestTimeout: timeout,
		now:            time.Now,
	}
}

// NewHTTPClient returns a pooled client suitable for sharing between the
// marketplace client and a REST ledger store.
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// CloseIdleConnections drops pooled connections so the next cycle starts fresh.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// Exchange trades a refresh token for an access grant using the OAuth2
// refresh_token grant with client credentials in the form body.
// The returned grant always carries a refresh token different from the input.
func (c *Client) Exchange(ctx context.Context, account string, creds models.Credentials, refreshToken string) (*models.AccessGrant, error) {
	cfg := oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  c.authURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		tokenErr := &errors.TokenError{Account: account, Err: err}
		var retrieveErr *oauth2.RetrieveError
		if stderrors.As(err, &retrieveErr) && retrieveErr.Response != nil {
			tokenErr.StatusCode = retrieveErr.Response.StatusCode
		}
		return nil, tokenErr
	}

	// The oauth2 package carries the old refresh token forward when the
	// response omits one, so an unchanged value means none was issued.
	if tok.RefreshToken == "" || tok.RefreshToken == refreshToken {
		return nil, &errors.TokenError{Account: account, Err: fmt.Errorf("response missing refresh_token")}
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = c.now().Add(DefaultGrantLifetime)
	}

	return &models.AccessGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}

// OrderQuery selects one page of paid orders for a seller.
type OrderQuery struct {
	SellerID string
	From     string
	To       string
	Offset   int
	Limit    int
}

// SearchOrders fetches one page of paid orders sorted by date_desc.
func (c *Client) SearchOrders(ctx context.Context, accessToken string, q OrderQuery) (*models.OrderPage, error) {
	params := url.Values{}
	params.Set("seller", q.SellerID)
	params.Set("order.status", "paid")
	params.Set("order.date_created.from", q.From)
	params.Set("order.date_created.to", q.To)
	params.Set("sort", "date_desc")
	params.Set("limit", strconv.Itoa(q.Limit))
	params.Set("offset", strconv.Itoa(q.Offset))

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ordersURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, rateLimitErrorFromHeaders(resp.Header, "orders search rate limited")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &errors.ErrRemoteStatus{Operation: "orders search", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var page models.OrderPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode orders page: %w", err)
	}
	return &page, nil
}

// DayWindow returns the closed search window covering the calendar day of t
// in loc, formatted the way the order search expects.
func DayWindow(t time.Time, loc *time.Location) (date, from, to string) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1).Add(-time.Millisecond)
	const layout = "2006-01-02T15:04:05.000-07:00"
	return start.Format("2006-01-02"), start.Format(layout), end.Format(layout)
}
