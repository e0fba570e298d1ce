// Package model defines the core domain types shared across the portfolio
// engine. All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Transaction is an append-only record of a buy or sell. It is only ever
// changed through the explicit amend/delete endpoints, which re-run
// recomputation for the affected symbol.
type Transaction struct {
	ID          string          `json:"id" db:"id"`
	UserID      string          `json:"user_id" db:"user_id"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Name        string          `json:"name" db:"name"`
	Side        string          `json:"side" db:"side"` // "BUY" or "SELL"
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	Price       decimal.Decimal `json:"price" db:"price"`               // unit price
	TotalAmount decimal.Decimal `json:"total_amount" db:"total_amount"` // quantity * price
	Currency    string          `json:"currency" db:"currency"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Quote is the durable "last known price" row for one tracked symbol.
// One row per symbol, rewritten at most once per refresh cycle.
type Quote struct {
	Symbol    string          `json:"symbol" db:"symbol"`
	Name      string          `json:"name" db:"name"`
	Currency  string          `json:"currency" db:"currency"`
	LastPrice decimal.Decimal `json:"last_price" db:"last_price"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"` // zero = never fetched
}

// PositionSnapshot is the derived holding for one (user, symbol) pair.
// Fully owned by the ledger engine: a snapshot exists iff the user's net
// quantity for the symbol was positive at the last recompute.
type PositionSnapshot struct {
	UserID       string          `json:"user_id" db:"user_id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Quantity     decimal.Decimal `json:"quantity" db:"quantity"`           // net: buys - sells
	CostBasis    decimal.Decimal `json:"cost_basis" db:"cost_basis"`       // buy amounts - sell amounts
	AvgCost      decimal.Decimal `json:"avg_cost" db:"avg_cost"`           // cost basis / quantity
	CurrentValue decimal.Decimal `json:"current_value" db:"current_value"` // quantity * last price
	Profit       decimal.Decimal `json:"profit" db:"profit"`               // current value - cost basis
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}
