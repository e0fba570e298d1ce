// Package ledger derives position snapshots from the transaction log.
//
// Recomputation is a full pass over a symbol's transactions rather than an
// incremental delta, so amending or deleting historical transactions always
// converges on the correct result. O(n) in transaction count per call,
// which is fine at this scale.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foliotrack/portfolio-engine/internal/model"
	"github.com/foliotrack/portfolio-engine/internal/store"
)

// Engine recomputes per-user position snapshots for a symbol.
//
// Recompute is idempotent and safe to call concurrently for different
// symbols. Callers serialize calls for the same symbol; the refresh
// scheduler does this naturally by recomputing one symbol at a time.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// NewEngine creates a recomputation engine over the given store.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st, now: time.Now}
}

type userAgg struct {
	qty  decimal.Decimal // buys - sells
	cost decimal.Decimal // buy amounts - sell amounts
}

// Recompute rebuilds the snapshot set for one symbol from its full
// transaction log and commits it as a single unit of work. The resulting
// set is returned; users whose net quantity is no longer positive are
// removed, not zeroed.
func (e *Engine) Recompute(ctx context.Context, symbol string) ([]model.PositionSnapshot, error) {
	txs, err := e.store.ListTransactionsBySymbol(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", symbol, err)
	}

	// Net quantity and cost per user across the whole log.
	agg := make(map[string]*userAgg)
	for _, t := range txs {
		a, ok := agg[t.UserID]
		if !ok {
			a = &userAgg{}
			agg[t.UserID] = a
		}
		switch t.Side {
		case model.SideBuy:
			a.qty = a.qty.Add(t.Quantity)
			a.cost = a.cost.Add(t.TotalAmount)
		case model.SideSell:
			a.qty = a.qty.Sub(t.Quantity)
			a.cost = a.cost.Sub(t.TotalAmount)
		}
	}

	lastPrice := decimal.Zero
	if q, err := e.store.GetQuote(ctx, symbol); err == nil {
		lastPrice = q.LastPrice
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get quote for %s: %w", symbol, err)
	}

	now := e.now().UTC()
	snaps := make([]model.PositionSnapshot, 0, len(agg))
	for userID, a := range agg {
		// Flat and short positions are not tracked.
		if a.qty.LessThanOrEqual(decimal.Zero) {
			continue
		}

		currentValue := a.qty.Mul(lastPrice)
		snaps = append(snaps, model.PositionSnapshot{
			UserID:       userID,
			Symbol:       symbol,
			Quantity:     a.qty,
			CostBasis:    a.cost,
			AvgCost:      a.cost.Div(a.qty),
			CurrentValue: currentValue,
			Profit:       currentValue.Sub(a.cost),
			UpdatedAt:    now,
		})
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].UserID < snaps[j].UserID })

	// One atomic replace: holders absent from this pass are dropped.
	if err := e.store.ReplacePositions(ctx, symbol, snaps); err != nil {
		return nil, fmt.Errorf("replace positions for %s: %w", symbol, err)
	}

	return snaps, nil
}

// RecomputeAll runs Recompute for every tracked symbol. Used by the admin
// trigger. Failures are collected per symbol so one bad symbol does not
// stop the rest.
func (e *Engine) RecomputeAll(ctx context.Context) (map[string][]model.PositionSnapshot, error) {
	quotes, err := e.store.ListQuotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked symbols: %w", err)
	}

	results := make(map[string][]model.PositionSnapshot, len(quotes))
	var errs []error
	for _, q := range quotes {
		snaps, err := e.Recompute(ctx, q.Symbol)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[q.Symbol] = snaps
	}
	return results, errors.Join(errs...)
}
