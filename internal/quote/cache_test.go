package quote

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

func testQuote(symbol string, price float64) model.Quote {
	return model.Quote{
		Symbol:    symbol,
		Name:      symbol + " Inc",
		Currency:  "USD",
		LastPrice: decimal.NewFromFloat(price),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache(30 * time.Second)
	c.Put(testQuote("AAPL", 190.5))

	got, ok := c.Get("AAPL")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.LastPrice.Equal(decimal.NewFromFloat(190.5)) {
		t.Errorf("price = %s, want 190.5", got.LastPrice)
	}
}

func TestCache_SymbolCaseInsensitive(t *testing.T) {
	c := NewCache(30 * time.Second)
	c.Put(testQuote("AAPL", 190.5))

	if _, ok := c.Get("aapl"); !ok {
		t.Error("lookup should be case-insensitive")
	}
}

func TestCache_MissingSymbol(t *testing.T) {
	c := NewCache(30 * time.Second)
	if _, ok := c.Get("TSLA"); ok {
		t.Error("expected miss for unknown symbol")
	}
}

func TestCache_TTLExpiry(t *testing.T) {
	base := time.Now()
	now := base
	c := NewCache(30 * time.Second)
	c.now = func() time.Time { return now }

	c.Put(testQuote("AAPL", 190.5))

	// Just before the TTL the entry is still present.
	now = base.Add(30*time.Second - time.Millisecond)
	if _, ok := c.Get("AAPL"); !ok {
		t.Error("entry should still be fresh just before TTL")
	}

	// At TTL and beyond the entry is absent and evicted.
	now = base.Add(30*time.Second + time.Millisecond)
	if _, ok := c.Get("AAPL"); ok {
		t.Error("entry should have expired past TTL")
	}

	c.mu.Lock()
	_, stillThere := c.entries["AAPL"]
	c.mu.Unlock()
	if stillThere {
		t.Error("expired entry should be evicted on access")
	}
}

func TestCache_PutRestartsTTL(t *testing.T) {
	base := time.Now()
	now := base
	c := NewCache(30 * time.Second)
	c.now = func() time.Time { return now }

	c.Put(testQuote("AAPL", 190.5))
	now = base.Add(20 * time.Second)
	c.Put(testQuote("AAPL", 191.0))

	// 40s after the first insert but only 20s after the second.
	now = base.Add(40 * time.Second)
	got, ok := c.Get("AAPL")
	if !ok {
		t.Fatal("re-put entry should still be fresh")
	}
	if !got.LastPrice.Equal(decimal.NewFromFloat(191.0)) {
		t.Errorf("price = %s, want 191", got.LastPrice)
	}
}

func TestCache_Remove(t *testing.T) {
	c := NewCache(30 * time.Second)
	c.Put(testQuote("AAPL", 190.5))
	c.Remove("aapl")

	if _, ok := c.Get("AAPL"); ok {
		t.Error("removed entry should be absent")
	}
}
