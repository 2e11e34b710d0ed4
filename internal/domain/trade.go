package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide distinguishes the two directions of a two-leg transfer.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradeRecord is one executed trade in the append-only trade journal.
// It is stamped with the exact rate used and the time that rate was
// observed, so every balance movement stays auditable after the fact.
type TradeRecord struct {
	ID             string          `json:"id"`
	UserID         int64           `json:"user_id"`
	Side           TradeSide       `json:"side"`
	Currency       string          `json:"currency"`
	Base           string          `json:"base"`
	Quantity       decimal.Decimal `json:"quantity"`
	Rate           decimal.Decimal `json:"rate"`
	RateObservedAt time.Time       `json:"rate_observed_at"`
	// Amount is the cost (buy) or revenue (sell) in the base currency.
	Amount     decimal.Decimal `json:"amount"`
	ExecutedAt time.Time       `json:"executed_at"`
}
