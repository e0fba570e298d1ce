package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertQuote(ctx context.Context, q *model.Quote) error {
	if err := s.primary.UpsertQuote(ctx, q); err != nil {
		return err
	}
	s.cacheQuote(ctx, q)
	return nil
}

func (s *CachedStore) DeleteQuote(ctx context.Context, symbol string) error {
	if err := s.primary.DeleteQuote(ctx, symbol); err != nil {
		return err
	}
	s.rdb.Del(ctx, quoteKey(symbol))
	return nil
}

func (s *CachedStore) ApplyQuoteBatch(ctx context.Context, quotes []model.Quote) error {
	if err := s.primary.ApplyQuoteBatch(ctx, quotes); err != nil {
		return err
	}
	for i := range quotes {
		s.cacheQuote(ctx, &quotes[i])
	}
	return nil
}

func (s *CachedStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	if err := s.primary.InsertTransaction(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(t.UserID))
	return nil
}

func (s *CachedStore) UpdateTransaction(ctx context.Context, t *model.Transaction) error {
	if err := s.primary.UpdateTransaction(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionsKey(t.UserID))
	return nil
}

func (s *CachedStore) DeleteTransaction(ctx context.Context, id string) error {
	// Look up the owner first so their cached positions can be dropped.
	if t, err := s.primary.GetTransaction(ctx, id); err == nil {
		s.rdb.Del(ctx, positionsKey(t.UserID))
	}
	return s.primary.DeleteTransaction(ctx, id)
}

func (s *CachedStore) ReplacePositions(ctx context.Context, symbol string, snaps []model.PositionSnapshot) error {
	// Note former holders before the replace so their cached portfolios
	// can be dropped too.
	prev, _ := s.primary.ListPositionsBySymbol(ctx, symbol)

	if err := s.primary.ReplacePositions(ctx, symbol, snaps); err != nil {
		return err
	}
	for _, p := range prev {
		s.rdb.Del(ctx, positionsKey(p.UserID))
	}
	for _, p := range snaps {
		s.rdb.Del(ctx, positionsKey(p.UserID))
	}
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	data, err := s.rdb.Get(ctx, quoteKey(symbol)).Bytes()
	if err == nil {
		var q model.Quote
		if json.Unmarshal(data, &q) == nil {
			return &q, nil
		}
	}

	// Cache miss: read from primary.
	q, err := s.primary.GetQuote(ctx, symbol)
	if err != nil {
		return nil, err
	}

	s.cacheQuote(ctx, q)
	return q, nil
}

func (s *CachedStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.PositionSnapshot, error) {
	data, err := s.rdb.Get(ctx, positionsKey(userID)).Bytes()
	if err == nil {
		var snaps []model.PositionSnapshot
		if json.Unmarshal(data, &snaps) == nil {
			return snaps, nil
		}
	}

	// Cache miss.
	snaps, err := s.primary.ListPositionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(snaps); err == nil {
		s.rdb.Set(ctx, positionsKey(userID), data, s.ttl)
	}
	return snaps, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListQuotes(ctx context.Context) ([]model.Quote, error) {
	return s.primary.ListQuotes(ctx)
}

func (s *CachedStore) SearchQuotes(ctx context.Context, q string, limit int) ([]model.Quote, error) {
	return s.primary.SearchQuotes(ctx, q, limit)
}

func (s *CachedStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return s.primary.GetTransaction(ctx, id)
}

func (s *CachedStore) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	return s.primary.ListTransactionsByUser(ctx, userID)
}

func (s *CachedStore) ListTransactionsBySymbol(ctx context.Context, symbol string) ([]model.Transaction, error) {
	return s.primary.ListTransactionsBySymbol(ctx, symbol)
}

func (s *CachedStore) ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.PositionSnapshot, error) {
	return s.primary.ListPositionsBySymbol(ctx, symbol)
}

// --- Cache helpers ---

func (s *CachedStore) cacheQuote(ctx context.Context, q *model.Quote) {
	if data, err := json.Marshal(q); err == nil {
		s.rdb.Set(ctx, quoteKey(q.Symbol), data, s.ttl)
	}
}

func quoteKey(symbol string) string  { return fmt.Sprintf("quote:%s", symbol) }
func positionsKey(uid string) string { return fmt.Sprintf("positions:%s", uid) }
