package syncer

import (
	"github.com/shopspring/decimal"

	"github.com/onyxos/onyxsync/internal/fanvue"
)

// EarningsTotals accumulates fetched earnings in integer cents.
type EarningsTotals struct {
	Count int   `json:"count"`
	Gross int64 `json:"gross_cents"`
	Net   int64 `json:"net_cents"`
}

func (t *EarningsTotals) Add(e fanvue.Earning) {
	t.Count++
	t.Gross += e.Gross
	t.Net += e.Net
}

// GrossDollars is for display only; arithmetic stays in cents.
func (t EarningsTotals) GrossDollars() decimal.Decimal {
	return Dollars(t.Gross)
}

func (t EarningsTotals) NetDollars() decimal.Decimal {
	return Dollars(t.Net)
}

// Dollars converts cents to a two-decimal amount.
func Dollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
