// Package portfolio provides the HTTP handlers for the transaction log and
// derived position queries. Every transaction mutation triggers a ledger
// recompute for the affected symbol and broadcasts the resulting position
// changes.
//
// All monetary values use shopspring/decimal — never float64 for money.
package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/foliotrack/portfolio-engine/internal/ledger"
	"github.com/foliotrack/portfolio-engine/internal/model"
	"github.com/foliotrack/portfolio-engine/internal/quote"
	"github.com/foliotrack/portfolio-engine/internal/store"
	"github.com/foliotrack/portfolio-engine/internal/stream"
)

// Service handles transaction and portfolio requests.
type Service struct {
	store      store.Store
	engine     *ledger.Engine
	cache      *quote.Cache
	source     quote.Source
	hub        *stream.Hub // optional; nil disables broadcasting
	adminToken string
	registry   []RegistryEntry
}

// NewService creates the HTTP service. Pass nil for hub if broadcasting is
// not needed.
func NewService(st store.Store, engine *ledger.Engine, cache *quote.Cache, src quote.Source, hub *stream.Hub) *Service {
	return &Service{
		store:  st,
		engine: engine,
		cache:  cache,
		source: src,
		hub:    hub,
	}
}

// SetAdminToken configures the token guarding the admin endpoints.
func (s *Service) SetAdminToken(token string) { s.adminToken = token }

// --- Request/Response types ---

// TransactionRequest is the JSON body for creating or amending a transaction.
type TransactionRequest struct {
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"` // "BUY" or "SELL"
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// PortfolioResponse is a user's snapshots plus aggregate totals.
type PortfolioResponse struct {
	UserID        string                   `json:"user_id"`
	Positions     []model.PositionSnapshot `json:"positions"`
	TotalInvested decimal.Decimal          `json:"total_invested"`
	TotalValue    decimal.Decimal          `json:"total_value"`
	TotalProfit   decimal.Decimal          `json:"total_profit"`
}

// --- HTTP Handlers ---

// CreateTransaction handles POST /api/v1/transactions
func (s *Service) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if msg := validate(&req); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sym := strings.ToUpper(req.Symbol)

	// Prefer locally known name/currency; no network calls on this path.
	name := sym
	currency := req.Currency
	if existing, err := s.store.GetQuote(ctx, sym); err == nil {
		if existing.Name != "" {
			name = existing.Name
		}
		if existing.Currency != "" {
			currency = existing.Currency
		}
	}

	tx := &model.Transaction{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Symbol:      sym,
		Name:        name,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TotalAmount: req.Quantity.Mul(req.Price),
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.store.InsertTransaction(ctx, tx); err != nil {
		writeError(w, "failed to record transaction", http.StatusInternalServerError)
		return
	}

	// Track unseen symbols with a zero-priced row; the refresh scheduler
	// fetches the real price on its next cycle.
	if _, err := s.store.GetQuote(ctx, sym); errors.Is(err, store.ErrNotFound) {
		q := &model.Quote{Symbol: sym, Name: name, Currency: currency, LastPrice: decimal.Zero}
		if err := s.store.UpsertQuote(ctx, q); err != nil {
			slog.Error("failed to track new symbol", "symbol", sym, "err", err)
		}
	}

	s.recomputeAndBroadcast(r.Context(), sym)

	slog.Info("transaction recorded",
		"id", tx.ID, "user", tx.UserID, "symbol", sym,
		"side", tx.Side, "qty", tx.Quantity.String(), "price", tx.Price.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

// ListTransactions handles GET /api/v1/transactions/{userID}
func (s *Service) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	txs, err := s.store.ListTransactionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(txs)
}

// UpdateTransaction handles PUT /api/v1/transactions/{id}
func (s *Service) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	if !req.Quantity.IsPositive() || !req.Price.IsPositive() {
		writeError(w, "quantity and price must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load transaction", http.StatusInternalServerError)
		return
	}
	if tx.UserID != req.UserID {
		writeError(w, "not allowed to modify this transaction", http.StatusForbidden)
		return
	}

	tx.Side = req.Side
	tx.Quantity = req.Quantity
	tx.Price = req.Price
	tx.TotalAmount = req.Quantity.Mul(req.Price)

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		writeError(w, "failed to update transaction", http.StatusInternalServerError)
		return
	}

	s.recomputeAndBroadcast(ctx, tx.Symbol)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tx)
}

// DeleteTransaction handles DELETE /api/v1/transactions/{id}?user_id=U
func (s *Service) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := s.store.GetTransaction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load transaction", http.StatusInternalServerError)
		return
	}
	if tx.UserID != userID {
		writeError(w, "not allowed to delete this transaction", http.StatusForbidden)
		return
	}

	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		writeError(w, "failed to delete transaction", http.StatusInternalServerError)
		return
	}

	s.recomputeAndBroadcast(ctx, tx.Symbol)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"detail": "deleted"})
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	positions, err := s.store.ListPositionsByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.PositionSnapshot{}
	}

	resp := PortfolioResponse{UserID: userID, Positions: positions}
	for _, p := range positions {
		resp.TotalInvested = resp.TotalInvested.Add(p.CostBasis)
		resp.TotalValue = resp.TotalValue.Add(p.CurrentValue)
		resp.TotalProfit = resp.TotalProfit.Add(p.Profit)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// --- Helpers ---

// recomputeAndBroadcast re-derives positions for a symbol after a
// transaction mutation. Failures are logged, not surfaced to the client;
// the next refresh cycle converges the state.
func (s *Service) recomputeAndBroadcast(ctx context.Context, symbol string) {
	snaps, err := s.engine.Recompute(ctx, symbol)
	if err != nil {
		slog.Error("recompute after mutation failed", "symbol", symbol, "err", err)
		return
	}
	if s.hub == nil {
		return
	}
	for _, p := range snaps {
		s.hub.Publish(stream.PositionUpdated(p))
	}
}

func validate(req *TransactionRequest) string {
	if req.UserID == "" {
		return "user_id is required"
	}
	if strings.TrimSpace(req.Symbol) == "" {
		return "symbol is required"
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return "side must be BUY or SELL"
	}
	if !req.Quantity.IsPositive() {
		return "quantity must be positive"
	}
	if !req.Price.IsPositive() {
		return "price must be positive"
	}
	return ""
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
