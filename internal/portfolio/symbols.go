package portfolio

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foliotrack/portfolio-engine/internal/quote"
)

// RegistryEntry is one row of the optional local symbol registry file.
type RegistryEntry struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// LoadRegistry reads the local symbol registry JSON file. A missing or
// unreadable file just disables the registry.
func (s *Service) LoadRegistry(path string) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("symbol registry not loaded", "path", path, "err", err)
		return
	}
	var entries []RegistryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("symbol registry unreadable", "path", path, "err", err)
		return
	}
	s.registry = entries
	slog.Info("symbol registry loaded", "path", path, "entries", len(entries))
}

// symbolResult is one search hit.
type symbolResult struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Price  string `json:"price,omitempty"` // empty for registry-only hits
}

// SearchSymbols handles GET /api/v1/symbols/search?q=…&limit=…
// Tracked quote rows are searched first, then the local registry fills the
// remainder (deduplicated by symbol).
func (s *Service) SearchSymbols(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, "q is required", http.StatusBadRequest)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 200 {
			limit = n
		}
	}

	rows, err := s.store.SearchQuotes(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search failed", http.StatusInternalServerError)
		return
	}

	results := make([]symbolResult, 0, limit)
	seen := make(map[string]struct{})
	for _, row := range rows {
		name := row.Name
		if name == "" {
			name = row.Symbol
		}
		results = append(results, symbolResult{Symbol: row.Symbol, Name: name, Price: row.LastPrice.String()})
		seen[row.Symbol] = struct{}{}
	}

	term := strings.ToLower(q)
	for _, e := range s.registry {
		if len(results) >= limit {
			break
		}
		if _, dup := seen[e.Symbol]; dup {
			continue
		}
		if strings.Contains(strings.ToLower(e.Symbol), term) ||
			strings.Contains(strings.ToLower(e.Name), term) {
			results = append(results, symbolResult{Symbol: e.Symbol, Name: e.Name})
			seen[e.Symbol] = struct{}{}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetQuote handles GET /api/v1/quotes/{symbol}
// Resolution order: process-local TTL cache, persisted quote row, live
// fetch. A live fetch also starts tracking the symbol.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	sym := strings.ToUpper(chi.URLParam(r, "symbol"))
	ctx := r.Context()

	if q, ok := s.cache.Get(sym); ok {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(q)
		return
	}

	if q, err := s.store.GetQuote(ctx, sym); err == nil && !q.UpdatedAt.IsZero() {
		s.cache.Put(*q)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(q)
		return
	}

	q, err := s.source.Fetch(ctx, sym)
	if errors.Is(err, quote.ErrSymbolNotFound) {
		writeError(w, "unknown symbol: "+sym, http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Warn("live quote fetch failed", "symbol", sym, "err", err)
		writeError(w, "quote source unavailable", http.StatusBadGateway)
		return
	}

	if err := s.store.UpsertQuote(ctx, &q); err != nil {
		slog.Error("failed to persist fetched quote", "symbol", sym, "err", err)
	}
	s.cache.Put(q)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(q)
}

// AdminRecompute handles POST /api/v1/admin/recompute?symbol=S
// Guarded by the x-admin-token header; with no symbol it recomputes every
// tracked symbol.
func (s *Service) AdminRecompute(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" {
		writeError(w, "admin token not configured", http.StatusForbidden)
		return
	}
	if r.Header.Get("x-admin-token") != s.adminToken {
		writeError(w, "invalid admin token", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()

	if sym := strings.ToUpper(r.URL.Query().Get("symbol")); sym != "" {
		if _, err := s.engine.Recompute(ctx, sym); err != nil {
			writeError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "symbol": sym})
		return
	}

	results, err := s.engine.RecomputeAll(ctx)
	if err != nil {
		slog.Error("admin recompute had failures", "err", err)
	}
	symbols := make([]string, 0, len(results))
	for sym := range results {
		symbols = append(symbols, sym)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": err == nil, "symbols": symbols})
}
