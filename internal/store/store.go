// Package store defines the persistence interface for the portfolio engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
//
// ApplyQuoteBatch and ReplacePositions are the two multi-row operations the
// background pipeline depends on; implementations must apply each as a
// single unit of work (all rows land or none do).
type Store interface {
	// --- Persisted quotes (one row per tracked symbol) ---

	// UpsertQuote inserts or rewrites the quote row for a symbol.
	UpsertQuote(ctx context.Context, q *model.Quote) error

	// GetQuote retrieves the quote row for a symbol, or ErrNotFound.
	GetQuote(ctx context.Context, symbol string) (*model.Quote, error)

	// ListQuotes returns all tracked symbols with their last known prices.
	ListQuotes(ctx context.Context) ([]model.Quote, error)

	// DeleteQuote removes a symbol's quote row. Deleting a missing row is
	// not an error; the refresh scheduler uses this to drop invalid tickers.
	DeleteQuote(ctx context.Context, symbol string) error

	// ApplyQuoteBatch upserts one refresh cycle's successful fetches
	// atomically.
	ApplyQuoteBatch(ctx context.Context, quotes []model.Quote) error

	// SearchQuotes matches symbols or display names against a substring.
	SearchQuotes(ctx context.Context, q string, limit int) ([]model.Quote, error)

	// --- Transaction log ---

	// InsertTransaction appends a transaction record.
	InsertTransaction(ctx context.Context, t *model.Transaction) error

	// GetTransaction retrieves one transaction by id, or ErrNotFound.
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)

	// UpdateTransaction rewrites an amended transaction.
	UpdateTransaction(ctx context.Context, t *model.Transaction) error

	// DeleteTransaction removes a transaction by id.
	DeleteTransaction(ctx context.Context, id string) error

	// ListTransactionsByUser returns a user's transactions, newest first.
	ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)

	// ListTransactionsBySymbol returns every transaction for a symbol in
	// creation order, across all users. Input to ledger recomputation.
	ListTransactionsBySymbol(ctx context.Context, symbol string) ([]model.Transaction, error)

	// --- Derived position snapshots ---

	// ListPositionsByUser returns a user's current snapshots.
	ListPositionsByUser(ctx context.Context, userID string) ([]model.PositionSnapshot, error)

	// ListPositionsBySymbol returns all snapshots for a symbol.
	ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.PositionSnapshot, error)

	// ReplacePositions atomically replaces the full snapshot set for a
	// symbol with the given rows. The resulting set for the symbol is
	// exactly snaps — holders absent from snaps are removed.
	ReplacePositions(ctx context.Context, symbol string, snaps []model.PositionSnapshot) error
}
