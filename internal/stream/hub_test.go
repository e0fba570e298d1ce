package stream

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

// fakeConn records delivered payloads; optionally fails every send.
type fakeConn struct {
	mu   sync.Mutex
	msgs [][]byte
	fail bool
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("peer gone")
	}
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	events := make([]Event, 0, len(f.msgs))
	for _, m := range f.msgs {
		var ev Event
		if err := json.Unmarshal(m, &ev); err == nil {
			events = append(events, ev)
		}
	}
	return events
}

func priceEvent(symbol string) Event {
	return PriceUpdated(model.Quote{
		Symbol:    symbol,
		Name:      symbol + " Inc",
		Currency:  "USD",
		LastPrice: decimal.NewFromInt(100),
	})
}

func positionEvent(user, symbol string) Event {
	return PositionUpdated(model.PositionSnapshot{
		UserID:   user,
		Symbol:   symbol,
		Quantity: decimal.NewFromInt(1),
	})
}

func TestDeliver_FiltersBySubscription(t *testing.T) {
	h := NewHub(0)
	all := &fakeConn{}
	apple := &fakeConn{}
	tesla := &fakeConn{}

	h.Register(all) // empty set: receives everything
	h.Register(apple)
	h.Subscribe(apple, []string{"AAPL"})
	h.Register(tesla)
	h.Subscribe(tesla, []string{"TSLA"})

	h.deliver(priceEvent("AAPL"))

	if len(all.received()) != 1 {
		t.Error("empty subscription set should receive all events")
	}
	if len(apple.received()) != 1 {
		t.Error("AAPL subscriber should receive AAPL events")
	}
	if len(tesla.received()) != 0 {
		t.Error("TSLA subscriber should not receive AAPL events")
	}
}

func TestSubscribe_ReplacesSet(t *testing.T) {
	h := NewHub(0)
	c := &fakeConn{}
	h.Register(c)
	h.Subscribe(c, []string{"AAPL"})
	h.Subscribe(c, []string{"TSLA"})

	h.deliver(priceEvent("AAPL"))
	h.deliver(priceEvent("TSLA"))

	got := c.received()
	if len(got) != 1 || got[0].Symbol != "TSLA" {
		t.Errorf("subscribe should replace the set, got %v", got)
	}
}

func TestSubscribe_UppercasesSymbols(t *testing.T) {
	h := NewHub(0)
	c := &fakeConn{}
	h.Register(c)
	h.Subscribe(c, []string{"aapl"})

	h.deliver(priceEvent("AAPL"))
	if len(c.received()) != 1 {
		t.Error("lowercase subscription should match uppercase symbol")
	}
}

func TestUnsubscribe_RemovesExactlyNamedSymbols(t *testing.T) {
	h := NewHub(0)
	c := &fakeConn{}
	h.Register(c)
	h.Subscribe(c, []string{"AAPL", "TSLA"})
	h.Unsubscribe(c, []string{"AAPL"})

	h.deliver(priceEvent("AAPL"))
	h.deliver(priceEvent("TSLA"))

	got := c.received()
	if len(got) != 1 || got[0].Symbol != "TSLA" {
		t.Errorf("only TSLA should remain subscribed, got %v", got)
	}
}

func TestDeliver_SendFailureRemovesOnlyThatClient(t *testing.T) {
	h := NewHub(0)
	broken := &fakeConn{fail: true}
	healthy := &fakeConn{}
	h.Register(broken)
	h.Register(healthy)

	h.deliver(priceEvent("AAPL"))

	if len(healthy.received()) != 1 {
		t.Error("healthy client should still receive the event")
	}
	if h.ClientCount() != 1 {
		t.Errorf("broken client should be removed, count = %d", h.ClientCount())
	}
}

func TestPublish_ShedsOldestPriceFirst(t *testing.T) {
	h := NewHub(2)
	h.Publish(priceEvent("AAPL"))
	h.Publish(priceEvent("TSLA"))
	h.Publish(positionEvent("alice", "AAPL")) // over bound: sheds AAPL price

	var types []string
	var symbols []string
	for {
		ev, ok := h.pop()
		if !ok {
			break
		}
		types = append(types, ev.Type)
		symbols = append(symbols, ev.Symbol)
	}

	if len(types) != 2 {
		t.Fatalf("queue should stay at bound, got %d events", len(types))
	}
	if types[0] != TypePriceUpdate || symbols[0] != "TSLA" {
		t.Errorf("oldest price event should be shed first, head = %s %s", types[0], symbols[0])
	}
	if types[1] != TypePositionUpdate {
		t.Errorf("position event should be retained, got %s", types[1])
	}
}

func TestPublish_IncomingPriceDroppedWhenQueueHoldsPositions(t *testing.T) {
	h := NewHub(2)
	h.Publish(positionEvent("alice", "AAPL"))
	h.Publish(positionEvent("bob", "TSLA"))
	h.Publish(priceEvent("MSFT")) // nothing sheddable: incoming is dropped

	count := 0
	for {
		ev, ok := h.pop()
		if !ok {
			break
		}
		if ev.Type != TypePositionUpdate {
			t.Errorf("queue should hold only position events, got %s", ev.Type)
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected both position events retained, got %d", count)
	}
}

func TestRun_DeliversInEnqueueOrder(t *testing.T) {
	h := NewHub(0)
	c := &fakeConn{}
	h.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	h.Publish(priceEvent("AAPL"))
	h.Publish(positionEvent("alice", "AAPL"))
	h.Publish(priceEvent("TSLA"))

	deadline := time.After(2 * time.Second)
	for len(c.received()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out, received %d of 3 events", len(c.received()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	got := c.received()
	want := []string{TypePriceUpdate, TypePositionUpdate, TypePriceUpdate}
	for i, ev := range got {
		if ev.Type != want[i] {
			t.Errorf("event %d type = %s, want %s", i, ev.Type, want[i])
		}
	}
}
