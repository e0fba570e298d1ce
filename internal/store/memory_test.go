package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foliotrack/portfolio-engine/internal/model"
	"github.com/foliotrack/portfolio-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func snap(user, symbol string, qty float64) model.PositionSnapshot {
	return model.PositionSnapshot{
		UserID:    user,
		Symbol:    symbol,
		Quantity:  d(qty),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_QuoteLifecycle(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if _, err := ms.GetQuote(ctx, "AAPL"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	q := &model.Quote{Symbol: "AAPL", Name: "Apple Inc", Currency: "USD", LastPrice: d(190)}
	if err := ms.UpsertQuote(ctx, q); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := ms.GetQuote(ctx, "AAPL")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.LastPrice.Equal(d(190)) {
		t.Errorf("price = %s, want 190", got.LastPrice)
	}

	// Upsert rewrites in place; ListQuotes sees one row.
	q.LastPrice = d(195)
	ms.UpsertQuote(ctx, q)
	quotes, _ := ms.ListQuotes(ctx)
	if len(quotes) != 1 || !quotes[0].LastPrice.Equal(d(195)) {
		t.Errorf("unexpected quotes after rewrite: %v", quotes)
	}

	if err := ms.DeleteQuote(ctx, "AAPL"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ms.GetQuote(ctx, "AAPL"); !errors.Is(err, store.ErrNotFound) {
		t.Error("deleted quote should be gone")
	}
	// Deleting again is not an error.
	if err := ms.DeleteQuote(ctx, "AAPL"); err != nil {
		t.Errorf("double delete should be a no-op, got %v", err)
	}
}

func TestMemoryStore_ReplacePositionsIsExactSet(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	err := ms.ReplacePositions(ctx, "AAPL", []model.PositionSnapshot{
		snap("alice", "AAPL", 5),
		snap("bob", "AAPL", 3),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	// A later pass with a different holder set fully supersedes the old one.
	err = ms.ReplacePositions(ctx, "AAPL", []model.PositionSnapshot{
		snap("carol", "AAPL", 7),
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	snaps, _ := ms.ListPositionsBySymbol(ctx, "AAPL")
	if len(snaps) != 1 || snaps[0].UserID != "carol" {
		t.Errorf("expected exactly carol, got %v", snaps)
	}

	// Replacing with nil clears the symbol entirely.
	if err := ms.ReplacePositions(ctx, "AAPL", nil); err != nil {
		t.Fatalf("replace nil: %v", err)
	}
	if snaps, _ := ms.ListPositionsBySymbol(ctx, "AAPL"); len(snaps) != 0 {
		t.Errorf("expected no snapshots, got %v", snaps)
	}
}

func TestMemoryStore_PositionsByUserSpanSymbols(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.ReplacePositions(ctx, "AAPL", []model.PositionSnapshot{snap("alice", "AAPL", 5)})
	ms.ReplacePositions(ctx, "TSLA", []model.PositionSnapshot{snap("alice", "TSLA", 2)})
	ms.ReplacePositions(ctx, "MSFT", []model.PositionSnapshot{snap("bob", "MSFT", 1)})

	snaps, _ := ms.ListPositionsByUser(ctx, "alice")
	if len(snaps) != 2 {
		t.Fatalf("expected 2 positions for alice, got %d", len(snaps))
	}
	// Sorted by symbol.
	if snaps[0].Symbol != "AAPL" || snaps[1].Symbol != "TSLA" {
		t.Errorf("unexpected order: %v", snaps)
	}
}

func TestMemoryStore_TransactionOrdering(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	for i, id := range []string{"t1", "t2", "t3"} {
		err := ms.InsertTransaction(ctx, &model.Transaction{
			ID: id, UserID: "alice", Symbol: "AAPL", Side: model.SideBuy,
			Quantity: d(float64(i + 1)), Price: d(100), TotalAmount: d(float64(i+1) * 100),
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	// By symbol: creation order.
	bySym, _ := ms.ListTransactionsBySymbol(ctx, "AAPL")
	if len(bySym) != 3 || bySym[0].ID != "t1" || bySym[2].ID != "t3" {
		t.Errorf("symbol listing should be in creation order: %v", bySym)
	}

	// By user: newest first.
	byUser, _ := ms.ListTransactionsByUser(ctx, "alice")
	if len(byUser) != 3 || byUser[0].ID != "t3" || byUser[2].ID != "t1" {
		t.Errorf("user listing should be newest first: %v", byUser)
	}

	// Deletion removes from both views.
	if err := ms.DeleteTransaction(ctx, "t2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	bySym, _ = ms.ListTransactionsBySymbol(ctx, "AAPL")
	if len(bySym) != 2 {
		t.Errorf("expected 2 after delete, got %d", len(bySym))
	}
}

func TestMemoryStore_SearchQuotes(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	ms.UpsertQuote(ctx, &model.Quote{Symbol: "AAPL", Name: "Apple Inc", LastPrice: d(190)})
	ms.UpsertQuote(ctx, &model.Quote{Symbol: "APP", Name: "AppLovin", LastPrice: d(80)})
	ms.UpsertQuote(ctx, &model.Quote{Symbol: "MSFT", Name: "Microsoft", LastPrice: d(400)})

	hits, _ := ms.SearchQuotes(ctx, "app", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for 'app', got %d", len(hits))
	}
	if hits[0].Symbol != "AAPL" || hits[1].Symbol != "APP" {
		t.Errorf("hits should be sorted by symbol: %v", hits)
	}

	hits, _ = ms.SearchQuotes(ctx, "app", 1)
	if len(hits) != 1 {
		t.Errorf("limit should cap results, got %d", len(hits))
	}
}
