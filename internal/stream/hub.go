// Package stream fans price and position changes out to live connections.
//
// Producers (the refresh scheduler, transaction handlers) call Publish from
// their own goroutines; a single dispatcher goroutine drains the queue and
// delivers to subscribed connections. Publish never blocks on a slow or
// stuck consumer.
package stream

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/foliotrack/portfolio-engine/internal/metrics"
	"github.com/foliotrack/portfolio-engine/internal/model"
)

// Event types delivered to clients.
const (
	TypePriceUpdate    = "price_update"
	TypePositionUpdate = "position_update"
)

// Event is one change notification. Decimal fields are serialized as
// strings so clients never see float rounding.
type Event struct {
	Type     string `json:"type"`
	Symbol   string `json:"symbol"`
	UserID   string `json:"user_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Currency string `json:"currency,omitempty"`
	Price    string `json:"price,omitempty"`

	Quantity     string `json:"quantity,omitempty"`
	AvgCost      string `json:"avg_cost,omitempty"`
	CostBasis    string `json:"cost_basis,omitempty"`
	CurrentValue string `json:"current_value,omitempty"`
	Profit       string `json:"profit,omitempty"`
}

// PriceUpdated builds a price_update event from a quote.
func PriceUpdated(q model.Quote) Event {
	return Event{
		Type:     TypePriceUpdate,
		Symbol:   q.Symbol,
		Name:     q.Name,
		Currency: q.Currency,
		Price:    q.LastPrice.String(),
	}
}

// PositionUpdated builds a position_update event from a snapshot.
func PositionUpdated(p model.PositionSnapshot) Event {
	return Event{
		Type:         TypePositionUpdate,
		Symbol:       p.Symbol,
		UserID:       p.UserID,
		Quantity:     p.Quantity.String(),
		AvgCost:      p.AvgCost.String(),
		CostBasis:    p.CostBasis.String(),
		CurrentValue: p.CurrentValue.String(),
		Profit:       p.Profit.String(),
	}
}

// sender is one live connection's outbound half. Send must be safe to call
// from the dispatcher goroutine.
type sender interface {
	Send(data []byte) error
}

// DefaultQueueBound is the maximum number of undelivered events held by
// the hub before it starts shedding.
const DefaultQueueBound = 256

// Hub is the single fan-out point between the background pipeline and live
// connections. Connections subscribe to a set of symbols; an empty set
// means "all symbols".
type Hub struct {
	mu      sync.Mutex
	clients map[sender]map[string]struct{} // sender -> subscribed symbols
	queue   []Event
	bound   int
	notify  chan struct{}
}

// NewHub creates a hub with the given queue bound (<= 0 uses the default).
func NewHub(bound int) *Hub {
	if bound <= 0 {
		bound = DefaultQueueBound
	}
	return &Hub{
		clients: make(map[sender]map[string]struct{}),
		bound:   bound,
		notify:  make(chan struct{}, 1),
	}
}

// Register adds a connection with an empty subscription set (receives all).
func (h *Hub) Register(s sender) {
	h.mu.Lock()
	h.clients[s] = make(map[string]struct{})
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
	slog.Info("stream client connected", "total", n)
}

// Unregister removes a connection and destroys its subscription set.
func (h *Hub) Unregister(s sender) {
	h.mu.Lock()
	delete(h.clients, s)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
}

// Subscribe replaces the connection's subscription set. Symbols are
// upper-cased; an empty list subscribes to all symbols.
func (h *Hub) Subscribe(s sender, symbols []string) {
	subs := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		subs[strings.ToUpper(sym)] = struct{}{}
	}

	h.mu.Lock()
	if _, ok := h.clients[s]; ok {
		h.clients[s] = subs
	}
	h.mu.Unlock()
}

// Unsubscribe removes exactly the named symbols from the connection's set.
func (h *Hub) Unsubscribe(s sender, symbols []string) {
	h.mu.Lock()
	if subs, ok := h.clients[s]; ok {
		for _, sym := range symbols {
			delete(subs, strings.ToUpper(sym))
		}
	}
	h.mu.Unlock()
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish enqueues an event without blocking. If the queue is at its
// bound, the oldest price_update is shed first; position updates are
// retained in preference to price updates, which self-correct on the next
// refresh cycle.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	if len(h.queue) >= h.bound {
		dropped := h.shedLocked(ev.Type)
		if dropped == "" {
			// Queue holds only position updates and the incoming event is
			// a price update: shed the incoming one instead.
			h.mu.Unlock()
			metrics.StreamEventsDropped.WithLabelValues(ev.Type).Inc()
			slog.Warn("stream queue full, dropping event", "type", ev.Type, "symbol", ev.Symbol)
			return
		}
		metrics.StreamEventsDropped.WithLabelValues(dropped).Inc()
		slog.Warn("stream queue full, shed oldest event", "type", dropped)
	}
	h.queue = append(h.queue, ev)
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
}

// shedLocked removes the oldest sheddable event and returns its type, or
// "" when nothing may be shed for an incoming price update.
func (h *Hub) shedLocked(incoming string) string {
	for i, ev := range h.queue {
		if ev.Type == TypePriceUpdate {
			h.queue = append(h.queue[:i], h.queue[i+1:]...)
			return TypePriceUpdate
		}
	}
	if incoming == TypePriceUpdate {
		return ""
	}
	dropped := h.queue[0].Type
	h.queue = h.queue[1:]
	return dropped
}
