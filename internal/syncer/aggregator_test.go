package syncer

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/melisync/melisync/internal/errors"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_TwoPagesWithFraud(t *testing.T) {
	searcher := newFakeSearcher(func(_ string, offset int) (*models.OrderPage, error) {
		switch offset {
		case 0:
			return page(87, orders(50, 1, "10.00")), nil
		case 50:
			return page(87, orders(37, 0, "10.00")), nil
		}
		t.Fatalf("unexpected offset %d", offset)
		return nil, nil
	})
	agg := NewAggregator(searcher, 50, 500, nil)

	got, err := agg.Aggregate(context.Background(), testAccount("A"), "APP-1", testWindow)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 50}, searcher.requested("seller-A"))
	assert.Equal(t, 2, got.Pages)
	assert.Equal(t, 1, got.FraudSkipped)
	assert.Equal(t, 86, got.OrderCount)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("860.00")), got.Total.String())
	assert.False(t, got.Truncated)
}

func TestAggregator_StopsAtOffsetCap(t *testing.T) {
	searcher := newFakeSearcher(func(_ string, offset int) (*models.OrderPage, error) {
		return page(1200, orders(50, 0, "2.50")), nil
	})
	agg := NewAggregator(searcher, 50, 500, nil)

	got, err := agg.Aggregate(context.Background(), testAccount("A"), "APP-1", testWindow)
	require.NoError(t, err)

	offsets := searcher.requested("seller-A")
	require.Len(t, offsets, 10)
	for _, off := range offsets {
		assert.Less(t, off, 500)
	}
	assert.Equal(t, 450, offsets[len(offsets)-1])
	assert.True(t, got.Truncated)
	assert.Equal(t, 500, got.OrderCount)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("1250")), got.Total.String())
}

func TestAggregator_EmptyDay(t *testing.T) {
	searcher := newFakeSearcher(func(string, int) (*models.OrderPage, error) {
		return page(0, nil), nil
	})
	agg := NewAggregator(searcher, 50, 500, nil)

	got, err := agg.Aggregate(context.Background(), testAccount("A"), "APP-1", testWindow)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Pages)
	assert.True(t, got.Total.IsZero())
	assert.Zero(t, got.OrderCount)
}

func TestAggregator_AmountSelection(t *testing.T) {
	searcher := newFakeSearcher(func(string, int) (*models.OrderPage, error) {
		return page(3, []models.Order{
			{ID: 1, TotalAmount: decimal.RequireFromString("100"), PaidAmount: decimal.RequireFromString("90.10")},
			{ID: 2, TotalAmount: decimal.RequireFromString("40.25")},
			{ID: 3, TotalAmount: decimal.RequireFromString("500"), PaidAmount: decimal.RequireFromString("12"), Tags: []string{models.FraudTag}},
		}), nil
	})
	agg := NewAggregator(searcher, 50, 500, nil)

	got, err := agg.Aggregate(context.Background(), testAccount("A"), "APP-1", testWindow)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("130.35")), got.Total.String())
	assert.Equal(t, 2, got.OrderCount)
	assert.Equal(t, 1, got.FraudSkipped)
}

func TestAggregator_PageFailureDiscardsPartialSum(t *testing.T) {
	boom := stderrors.New("connection reset")
	searcher := newFakeSearcher(func(_ string, offset int) (*models.OrderPage, error) {
		if offset == 100 {
			return nil, boom
		}
		return page(300, orders(50, 0, "1")), nil
	})
	m := metrics.NewMetrics("agg_test")
	agg := NewAggregator(searcher, 50, 500, m)

	got, err := agg.Aggregate(context.Background(), testAccount("A"), "APP-1", testWindow)
	require.Error(t, err)
	assert.Nil(t, got)

	var fetchErr *errors.FetchError
	require.True(t, stderrors.As(err, &fetchErr))
	assert.Equal(t, 100, fetchErr.Offset)
	assert.Equal(t, "A", fetchErr.Account)
	assert.ErrorIs(t, err, boom)
}

func TestAggregator_Defaults(t *testing.T) {
	agg := NewAggregator(nil, 0, -1, nil)
	assert.Equal(t, 50, agg.pageSize)
	assert.Equal(t, 500, agg.maxOffset)
}
