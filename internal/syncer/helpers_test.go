package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/melisync/melisync/internal/marketplace"
	"github.com/melisync/melisync/internal/models"
	"github.com/melisync/melisync/internal/store"
	"github.com/shopspring/decimal"
)

// fakeExchanger issues TG-<n> tokens and records every refresh token it was given.
type fakeExchanger struct {
	mu      sync.Mutex
	seen    map[string][]string
	counter int
	fail    map[string]error
	hook    func(ctx context.Context, account string)
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{seen: make(map[string][]string), fail: make(map[string]error)}
}

func (f *fakeExchanger) Exchange(ctx context.Context, account string, _ models.Credentials, refreshToken string) (*models.AccessGrant, error) {
	if f.hook != nil {
		f.hook(ctx, account)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seen[account] = append(f.seen[account], refreshToken)
	if err := f.fail[account]; err != nil {
		return nil, err
	}
	f.counter++
	return &models.AccessGrant{
		AccessToken:  fmt.Sprintf("APP-%s-%d", account, f.counter),
		RefreshToken: fmt.Sprintf("TG-%s-%d", account, f.counter),
		ExpiresAt:    time.Now().Add(6 * time.Hour),
	}, nil
}

func (f *fakeExchanger) calls(account string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen[account]...)
}

// fakeSearcher serves pages from a function of seller and offset.
type fakeSearcher struct {
	mu      sync.Mutex
	offsets map[string][]int
	page    func(seller string, offset int) (*models.OrderPage, error)
}

func newFakeSearcher(page func(seller string, offset int) (*models.OrderPage, error)) *fakeSearcher {
	return &fakeSearcher{offsets: make(map[string][]int), page: page}
}

func (f *fakeSearcher) SearchOrders(_ context.Context, _ string, q marketplace.OrderQuery) (*models.OrderPage, error) {
	f.mu.Lock()
	f.offsets[q.SellerID] = append(f.offsets[q.SellerID], q.Offset)
	f.mu.Unlock()
	return f.page(q.SellerID, q.Offset)
}

func (f *fakeSearcher) requested(seller string) []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets[seller]...)
}

// countingLedger wraps a memory store and can be told to fail.
type countingLedger struct {
	*store.MemoryStore
	mu      sync.Mutex
	upserts int
	err     error
}

func newCountingLedger() *countingLedger {
	return &countingLedger{MemoryStore: store.NewMemoryStore()}
}

func (l *countingLedger) UpsertLedger(ctx context.Context, entry models.LedgerEntry) error {
	l.mu.Lock()
	l.upserts++
	err := l.err
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.MemoryStore.UpsertLedger(ctx, entry)
}

func (l *countingLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.upserts
}

// failingTokens fails every save.
type failingTokens struct {
	*store.MemoryStore
	err error
}

func (f *failingTokens) SaveToken(context.Context, models.PersistedToken) error {
	return f.err
}

func (f *failingTokens) LoadToken(ctx context.Context, name string) (*models.PersistedToken, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.MemoryStore.LoadToken(ctx, name)
}

// orders builds n orders worth value each, the first fraud of them fraud-tagged.
func orders(n, fraud int, value string) []models.Order {
	out := make([]models.Order, n)
	for i := range out {
		out[i] = models.Order{ID: int64(i + 1), Status: "paid", TotalAmount: decimal.RequireFromString(value)}
		if i < fraud {
			out[i].Tags = []string{"paid", models.FraudTag}
		}
	}
	return out
}

func page(total int, results []models.Order) *models.OrderPage {
	return &models.OrderPage{Paging: models.Paging{Total: total}, Results: results}
}

func testAccount(name string) *models.Account {
	return models.NewAccount(name, "Empresa "+name, "seller-"+name, "app-"+name, "secret-"+name, "TG-seed-"+name)
}

var testWindow = Window{Date: "2024-05-01", From: "2024-05-01T00:00:00.000-03:00", To: "2024-05-01T23:59:59.999-03:00"}
