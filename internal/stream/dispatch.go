package stream

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Run drains the event queue and delivers to subscribers until ctx is
// cancelled. Must be called in its own goroutine; it is the only goroutine
// that writes to connections, so per-connection delivery order matches
// enqueue order.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.notify:
			for {
				ev, ok := h.pop()
				if !ok {
					break
				}
				h.deliver(ev)
			}
		}
	}
}

func (h *Hub) pop() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.queue) == 0 {
		return Event{}, false
	}
	ev := h.queue[0]
	h.queue = h.queue[1:]
	return ev, true
}

// deliver sends one event to every connection whose subscription set is
// empty or contains the event's symbol. A failed send removes only that
// connection.
func (h *Hub) deliver(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("stream event marshal failed", "err", err)
		return
	}

	// Snapshot eligible connections so slow sends never hold the registry
	// lock.
	h.mu.Lock()
	targets := make([]sender, 0, len(h.clients))
	for s, subs := range h.clients {
		if len(subs) == 0 {
			targets = append(targets, s)
			continue
		}
		if _, ok := subs[ev.Symbol]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := s.Send(data); err != nil {
			slog.Debug("stream send failed, removing client", "err", err)
			h.Unregister(s)
		}
	}
}
