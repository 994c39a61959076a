package syncer

import (
	"context"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/marketplace"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
	"github.com/shopspring/decimal"
)

// OrderSearcher fetches one page of paid orders.
type OrderSearcher interface {
	SearchOrders(ctx context.Context, accessToken string, q marketplace.OrderQuery) (*models.OrderPage, error)
}

// Window is the calendar day being synced.
type Window struct {
	Date string
	From string
	To   string
}

// Aggregate is the revenue summary of one account for one day.
type Aggregate struct {
	Total        decimal.Decimal
	OrderCount   int
	FraudSkipped int
	Pages        int
	// Truncated is set when the offset cap stopped pagination before the reported total.
	Truncated bool
}

// Aggregator paginates the order search and sums non-fraud order values.
type Aggregator struct {
	searcher  OrderSearcher
	pageSize  int
	maxOffset int
	metrics   *metrics.Metrics
}

// NewAggregator creates an aggregator. pageSize and maxOffset default to 50 and 500.
func NewAggregator(searcher OrderSearcher, pageSize, maxOffset int, m *metrics.Metrics) *Aggregator {
	if pageSize <= 0 {
		pageSize = 50
	}
	if maxOffset <= 0 {
		maxOffset = 500
	}
	return &Aggregator{searcher: searcher, pageSize: pageSize, maxOffset: maxOffset, metrics: m}
}

// Aggregate sums the day's paid orders for acc. Pagination stops once the
// next offset reaches the reported total or the offset cap; hitting the cap
// is not an error. Any page failure discards the partial sums.
func (a *Aggregator) Aggregate(ctx context.Context, acc *models.Account, accessToken string, w Window) (*Aggregate, error) {
	agg := &Aggregate{Total: decimal.Zero}

	offset := 0
	for {
		page, err := a.searcher.SearchOrders(ctx, accessToken, marketplace.OrderQuery{
			SellerID: acc.UserID,
			From:     w.From,
			To:       w.To,
			Offset:   offset,
			Limit:    a.pageSize,
		})
		if err != nil {
			a.recordPage("error")
			return nil, &errors.FetchError{Account: acc.Name, Offset: offset, Err: err}
		}
		a.recordPage("ok")
		agg.Pages++

		for _, order := range page.Results {
			if order.IsFraud() {
				agg.FraudSkipped++
				continue
			}
			agg.Total = agg.Total.Add(order.Value())
			agg.OrderCount++
		}

		offset += a.pageSize
		if offset >= page.Paging.Total {
			break
		}
		if offset >= a.maxOffset {
			agg.Truncated = true
			break
		}
	}

	agg.Total = agg.Total.Round(2)
	return agg, nil
}

func (a *Aggregator) recordPage(result string) {
	if a.metrics != nil {
		a.metrics.RecordOrderPage(result)
	}
}
