package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	quotes    map[string]*model.Quote
	txs       map[string]*model.Transaction
	txOrder   []string // insertion order of transaction ids
	positions map[string]map[string]*model.PositionSnapshot // symbol -> user -> snapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes:    make(map[string]*model.Quote),
		txs:       make(map[string]*model.Transaction),
		positions: make(map[string]map[string]*model.PositionSnapshot),
	}
}

// --- Persisted quotes ---

func (s *MemoryStore) UpsertQuote(_ context.Context, q *model.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *q
	s.quotes[q.Symbol] = &copy
	return nil
}

func (s *MemoryStore) GetQuote(_ context.Context, symbol string) (*model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *q
	return &copy, nil
}

func (s *MemoryStore) ListQuotes(_ context.Context) ([]model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quotes := make([]model.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		quotes = append(quotes, *q)
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Symbol < quotes[j].Symbol })
	return quotes, nil
}

func (s *MemoryStore) DeleteQuote(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.quotes, symbol)
	return nil
}

func (s *MemoryStore) ApplyQuoteBatch(_ context.Context, quotes []model.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range quotes {
		copy := q
		s.quotes[q.Symbol] = &copy
	}
	return nil
}

func (s *MemoryStore) SearchQuotes(_ context.Context, q string, limit int) ([]model.Quote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	term := strings.ToLower(q)
	var matches []model.Quote
	for _, row := range s.quotes {
		if strings.Contains(strings.ToLower(row.Symbol), term) ||
			strings.Contains(strings.ToLower(row.Name), term) {
			matches = append(matches, *row)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Symbol < matches[j].Symbol })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- Transaction log ---

func (s *MemoryStore) InsertTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *t
	s.txs[t.ID] = &copy
	s.txOrder = append(s.txOrder, t.ID)
	return nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *t
	return &copy, nil
}

func (s *MemoryStore) UpdateTransaction(_ context.Context, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.txs[t.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Side = t.Side
	existing.Quantity = t.Quantity
	existing.Price = t.Price
	existing.TotalAmount = t.TotalAmount
	return nil
}

func (s *MemoryStore) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[id]; !ok {
		return ErrNotFound
	}
	delete(s.txs, id)
	for i, tid := range s.txOrder {
		if tid == id {
			s.txOrder = append(s.txOrder[:i], s.txOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) ListTransactionsByUser(_ context.Context, userID string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for i := len(s.txOrder) - 1; i >= 0; i-- { // newest first
		t := s.txs[s.txOrder[i]]
		if t.UserID == userID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTransactionsBySymbol(_ context.Context, symbol string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	for _, id := range s.txOrder {
		t := s.txs[id]
		if t.Symbol == symbol {
			result = append(result, *t)
		}
	}
	return result, nil
}

// --- Derived position snapshots ---

func (s *MemoryStore) ListPositionsByUser(_ context.Context, userID string) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PositionSnapshot
	for _, byUser := range s.positions {
		if p, ok := byUser[userID]; ok {
			result = append(result, *p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (s *MemoryStore) ListPositionsBySymbol(_ context.Context, symbol string) ([]model.PositionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PositionSnapshot
	for _, p := range s.positions[symbol] {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (s *MemoryStore) ReplacePositions(_ context.Context, symbol string, snaps []model.PositionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(snaps) == 0 {
		delete(s.positions, symbol)
		return nil
	}

	byUser := make(map[string]*model.PositionSnapshot, len(snaps))
	for _, p := range snaps {
		copy := p
		byUser[p.UserID] = &copy
	}
	s.positions[symbol] = byUser
	return nil
}
