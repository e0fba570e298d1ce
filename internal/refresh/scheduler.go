// Package refresh runs the background price refresh loop: it selects stale
// symbols, fetches quotes under bounded concurrency, commits the batch, and
// pushes the resulting price and position changes into the broadcast hub.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/foliotrack/portfolio-engine/internal/ledger"
	"github.com/foliotrack/portfolio-engine/internal/metrics"
	"github.com/foliotrack/portfolio-engine/internal/model"
	"github.com/foliotrack/portfolio-engine/internal/quote"
	"github.com/foliotrack/portfolio-engine/internal/store"
	"github.com/foliotrack/portfolio-engine/internal/stream"
)

// Defaults for the refresh loop.
const (
	DefaultInterval    = 300 * time.Second
	DefaultConcurrency = 5
	fetchTimeout       = 15 * time.Second
)

// Scheduler periodically refreshes prices for all tracked symbols and
// triggers ledger recomputation for each symbol whose price changed.
type Scheduler struct {
	store       store.Store
	source      quote.Source
	cache       *quote.Cache
	engine      *ledger.Engine
	hub         *stream.Hub
	interval    time.Duration
	concurrency int
	now         func() time.Time
}

// NewScheduler wires the refresh loop. A nil hub disables broadcasting;
// non-positive interval/concurrency fall back to the defaults.
func NewScheduler(st store.Store, src quote.Source, cache *quote.Cache, engine *ledger.Engine, hub *stream.Hub, interval time.Duration, concurrency int) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		store:       st,
		source:      src,
		cache:       cache,
		engine:      engine,
		hub:         hub,
		interval:    interval,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Run loops until ctx is cancelled. Cycle failures are logged and retried
// after the normal interval; they never terminate the loop. The idle wait
// observes cancellation immediately, so shutdown is responsive mid-interval.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("price refresh scheduler started",
		"interval", s.interval.String(), "concurrency", s.concurrency)

	for {
		if err := s.runCycle(ctx); err != nil {
			metrics.RefreshCycles.WithLabelValues("error").Inc()
			slog.Error("refresh cycle failed", "err", err)
		} else {
			metrics.RefreshCycles.WithLabelValues("ok").Inc()
		}

		select {
		case <-ctx.Done():
			slog.Info("price refresh scheduler stopped")
			return
		case <-time.After(s.interval):
		}
	}
}

// runCycle guards RunOnce so a panicking cycle cannot take the loop down.
func (s *Scheduler) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh cycle panic: %v", r)
		}
	}()
	return s.RunOnce(ctx)
}

type fetchResult struct {
	symbol string
	quote  model.Quote
	err    error
}

// RunOnce performs one full refresh cycle: select due symbols, fetch them
// under bounded concurrency, commit the successes as one batch, broadcast
// price updates, and recompute positions per updated symbol.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	tracked, err := s.store.ListQuotes(ctx)
	if err != nil {
		return fmt.Errorf("list tracked symbols: %w", err)
	}
	metrics.TrackedSymbols.Set(float64(len(tracked)))

	due := s.selectDue(tracked)
	if len(due) == 0 {
		slog.Debug("no symbols due for refresh")
		return nil
	}
	slog.Debug("refreshing prices", "due", len(due))

	results := s.fetchAll(ctx, due)

	// Partition results. Unknown symbols are removed outright; transient
	// failures are left for the next cycle.
	var updated []model.Quote
	for _, r := range results {
		switch {
		case r.err == nil:
			metrics.QuoteFetches.WithLabelValues("ok").Inc()
			updated = append(updated, r.quote)
		case errors.Is(r.err, quote.ErrSymbolNotFound):
			metrics.QuoteFetches.WithLabelValues("not_found").Inc()
			slog.Warn("symbol unknown upstream, dropping quote row", "symbol", r.symbol)
			if err := s.store.DeleteQuote(ctx, r.symbol); err != nil {
				slog.Error("failed to drop invalid symbol", "symbol", r.symbol, "err", err)
			}
			s.cache.Remove(r.symbol)
		default:
			metrics.QuoteFetches.WithLabelValues("error").Inc()
			slog.Warn("quote fetch failed, will retry next cycle", "symbol", r.symbol, "err", r.err)
		}
	}

	if len(updated) == 0 {
		return nil
	}

	// One unit of work for the whole batch: either every updated quote
	// lands or none do.
	if err := s.store.ApplyQuoteBatch(ctx, updated); err != nil {
		return fmt.Errorf("apply quote batch: %w", err)
	}

	for _, q := range updated {
		s.cache.Put(q)
		if s.hub != nil {
			s.hub.Publish(stream.PriceUpdated(q))
		}
	}

	// Recompute per symbol; each pass is its own unit of work and failures
	// are independent.
	for _, q := range updated {
		start := time.Now()
		snaps, err := s.engine.Recompute(ctx, q.Symbol)
		metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.Recomputes.WithLabelValues("error").Inc()
			slog.Error("recompute failed", "symbol", q.Symbol, "err", err)
			continue
		}
		metrics.Recomputes.WithLabelValues("ok").Inc()

		if s.hub != nil {
			for _, p := range snaps {
				s.hub.Publish(stream.PositionUpdated(p))
			}
		}
	}

	return nil
}

// selectDue returns the symbols that have never been fetched or whose
// quote is older than the refresh interval.
func (s *Scheduler) selectDue(tracked []model.Quote) []string {
	now := s.now().UTC()
	var due []string
	for _, q := range tracked {
		if q.UpdatedAt.IsZero() || now.Sub(q.UpdatedAt) >= s.interval {
			due = append(due, q.Symbol)
		}
	}
	return due
}

// fetchAll dispatches lookups for the given symbols under the concurrency
// bound and waits for all of them, in no particular order.
func (s *Scheduler) fetchAll(ctx context.Context, symbols []string) []fetchResult {
	sem := make(chan struct{}, s.concurrency)
	out := make(chan fetchResult, len(symbols))

	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
			defer cancel()

			q, err := s.source.Fetch(fctx, sym)
			out <- fetchResult{symbol: sym, quote: q, err: err}
		}(sym)
	}
	wg.Wait()
	close(out)

	results := make([]fetchResult, 0, len(symbols))
	for r := range out {
		results = append(results, r)
	}
	return results
}
