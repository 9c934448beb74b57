package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CanonicalPrice is the reconciled price of a metal at a point in time.
type CanonicalPrice struct {
	Metal    string          `json:"metal" db:"metal"`
	PriceTS  time.Time       `json:"price_ts" db:"price_ts"`
	Price    decimal.Decimal `json:"price" db:"price"`
	Currency string          `json:"currency" db:"currency"`
	Unit     string          `json:"unit" db:"unit"`
	Source   string          `json:"source" db:"source"`
}

// InventoryLot is a quantity of metal held in stock.
type InventoryLot struct {
	ID         int64           `json:"id" db:"id"`
	Metal      string          `json:"metal" db:"metal"`
	Quantity   decimal.Decimal `json:"quantity" db:"quantity"`
	Unit       string          `json:"unit" db:"unit"`
	AcquiredAt time.Time       `json:"acquired_at" db:"acquired_at"`
	Closed     bool            `json:"closed" db:"closed"`
}

// Valuation is open inventory marked at the latest price on or before AsOf.
type Valuation struct {
	Metal       string          `json:"metal"`
	AsOf        time.Time       `json:"as_of"`
	PriceTS     time.Time       `json:"price_ts"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	MarketValue decimal.Decimal `json:"market_value"`
}

// NewValuation marks quantity at price.
func NewValuation(metal string, asOf time.Time, p *CanonicalPrice, qty decimal.Decimal) *Valuation {
	return &Valuation{
		Metal:       metal,
		AsOf:        asOf,
		PriceTS:     p.PriceTS,
		Price:       p.Price,
		Currency:    p.Currency,
		Unit:        p.Unit,
		Quantity:    qty,
		MarketValue: qty.Mul(p.Price).Round(4),
	}
}
