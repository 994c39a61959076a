package models

import (
	"github.com/shopspring/decimal"
)

// FraudTag marks orders the marketplace flagged as fraudulent.
const FraudTag = "fraud_risk_detected"

// Order is the subset of a marketplace order used for revenue aggregation.
type Order struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	CurrencyID  string          `json:"currency_id,omitempty"`
	Tags        []string        `json:"tags"`
}

// IsFraud reports whether the order carries the fraud tag.
func (o Order) IsFraud() bool {
	for _, tag := range o.Tags {
		if tag == FraudTag {
			return true
		}
	}
	return false
}

// Value returns the paid amount when positive, otherwise the total amount.
func (o Order) Value() decimal.Decimal {
	if o.PaidAmount.IsPositive() {
		return o.PaidAmount
	}
	return o.TotalAmount
}

// Paging is the pagination block of a search response.
type Paging struct {
	Total  int `json:"total"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// OrderPage is one page of order search results.
type OrderPage struct {
	Paging  Paging  `json:"paging"`
	Results []Order `json:"results"`
}
