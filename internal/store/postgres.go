package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foliotrack/portfolio-engine/internal/model"
	"github.com/shopspring/decimal"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// --- Persisted quotes ---

func (s *PostgresStore) UpsertQuote(ctx context.Context, q *model.Quote) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quotes (symbol, name, currency, last_price, updated_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5)
		 ON CONFLICT (symbol) DO UPDATE
		 SET name = EXCLUDED.name, currency = EXCLUDED.currency,
		     last_price = EXCLUDED.last_price, updated_at = EXCLUDED.updated_at`,
		q.Symbol, q.Name, q.Currency, q.LastPrice.String(), q.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetQuote(ctx context.Context, symbol string) (*model.Quote, error) {
	var q model.Quote
	var price string

	err := s.pool.QueryRow(ctx,
		`SELECT symbol, name, currency, last_price::TEXT, updated_at
		 FROM quotes WHERE symbol = $1`, symbol).
		Scan(&q.Symbol, &q.Name, &q.Currency, &price, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get quote %s: %w", symbol, err)
	}

	q.LastPrice, _ = decimal.NewFromString(price)
	return &q, nil
}

func (s *PostgresStore) ListQuotes(ctx context.Context) ([]model.Quote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, currency, last_price::TEXT, updated_at
		 FROM quotes ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuotes(rows)
}

func (s *PostgresStore) DeleteQuote(ctx context.Context, symbol string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM quotes WHERE symbol = $1`, symbol)
	return err
}

func (s *PostgresStore) ApplyQuoteBatch(ctx context.Context, quotes []model.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin quote batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, q := range quotes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO quotes (symbol, name, currency, last_price, updated_at)
			 VALUES ($1, $2, $3, $4::NUMERIC, $5)
			 ON CONFLICT (symbol) DO UPDATE
			 SET name = EXCLUDED.name, currency = EXCLUDED.currency,
			     last_price = EXCLUDED.last_price, updated_at = EXCLUDED.updated_at`,
			q.Symbol, q.Name, q.Currency, q.LastPrice.String(), q.UpdatedAt,
		); err != nil {
			return fmt.Errorf("apply quote %s: %w", q.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) SearchQuotes(ctx context.Context, q string, limit int) ([]model.Quote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, name, currency, last_price::TEXT, updated_at
		 FROM quotes
		 WHERE symbol ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%'
		 ORDER BY symbol LIMIT $2`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanQuotes(rows)
}

// --- Transaction log ---

func (s *PostgresStore) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transactions (id, user_id, symbol, name, side, quantity, price, total_amount, currency, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		t.ID, t.UserID, t.Symbol, t.Name, t.Side,
		t.Quantity.String(), t.Price.String(), t.TotalAmount.String(),
		t.Currency, t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	var t model.Transaction
	var qty, price, total string

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, symbol, name, side,
		        quantity::TEXT, price::TEXT, total_amount::TEXT, currency, created_at
		 FROM transactions WHERE id = $1`, id).
		Scan(&t.ID, &t.UserID, &t.Symbol, &t.Name, &t.Side,
			&qty, &price, &total, &t.Currency, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, err)
	}

	t.Quantity, _ = decimal.NewFromString(qty)
	t.Price, _ = decimal.NewFromString(price)
	t.TotalAmount, _ = decimal.NewFromString(total)

	return &t, nil
}

func (s *PostgresStore) UpdateTransaction(ctx context.Context, t *model.Transaction) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE transactions
		 SET side = $2, quantity = $3::NUMERIC, price = $4::NUMERIC, total_amount = $5::NUMERIC
		 WHERE id = $1`,
		t.ID, t.Side, t.Quantity.String(), t.Price.String(), t.TotalAmount.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteTransaction(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, name, side,
		        quantity::TEXT, price::TEXT, total_amount::TEXT, currency, created_at
		 FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (s *PostgresStore) ListTransactionsBySymbol(ctx context.Context, symbol string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, name, side,
		        quantity::TEXT, price::TEXT, total_amount::TEXT, currency, created_at
		 FROM transactions WHERE symbol = $1 ORDER BY created_at`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// --- Derived position snapshots ---

func (s *PostgresStore) ListPositionsByUser(ctx context.Context, userID string) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, cost_basis::TEXT, avg_cost::TEXT,
		        current_value::TEXT, profit::TEXT, updated_at
		 FROM position_snapshots WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

func (s *PostgresStore) ListPositionsBySymbol(ctx context.Context, symbol string) ([]model.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, cost_basis::TEXT, avg_cost::TEXT,
		        current_value::TEXT, profit::TEXT, updated_at
		 FROM position_snapshots WHERE symbol = $1 ORDER BY user_id`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPositions(rows)
}

// ReplacePositions deletes the symbol's snapshot rows and inserts the new
// set inside a single transaction, so readers never observe a partial pass.
func (s *PostgresStore) ReplacePositions(ctx context.Context, symbol string, snaps []model.PositionSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin position replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM position_snapshots WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("clear positions %s: %w", symbol, err)
	}

	for _, p := range snaps {
		if _, err := tx.Exec(ctx,
			`INSERT INTO position_snapshots (user_id, symbol, quantity, cost_basis, avg_cost, current_value, profit, updated_at)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
			p.UserID, p.Symbol,
			p.Quantity.String(), p.CostBasis.String(), p.AvgCost.String(),
			p.CurrentValue.String(), p.Profit.String(), p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert position %s/%s: %w", p.UserID, p.Symbol, err)
		}
	}

	return tx.Commit(ctx)
}

// --- Row scanning helpers ---

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanQuotes(rows pgxRows) ([]model.Quote, error) {
	var quotes []model.Quote
	for rows.Next() {
		var q model.Quote
		var price string
		if err := rows.Scan(&q.Symbol, &q.Name, &q.Currency, &price, &q.UpdatedAt); err != nil {
			return nil, err
		}
		q.LastPrice, _ = decimal.NewFromString(price)
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

func scanTransactions(rows pgxRows) ([]model.Transaction, error) {
	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var qty, price, total string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Name, &t.Side,
			&qty, &price, &total, &t.Currency, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Quantity, _ = decimal.NewFromString(qty)
		t.Price, _ = decimal.NewFromString(price)
		t.TotalAmount, _ = decimal.NewFromString(total)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func scanPositions(rows pgxRows) ([]model.PositionSnapshot, error) {
	var snaps []model.PositionSnapshot
	for rows.Next() {
		var p model.PositionSnapshot
		var qty, cost, avg, value, profit string
		if err := rows.Scan(&p.UserID, &p.Symbol,
			&qty, &cost, &avg, &value, &profit, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Quantity, _ = decimal.NewFromString(qty)
		p.CostBasis, _ = decimal.NewFromString(cost)
		p.AvgCost, _ = decimal.NewFromString(avg)
		p.CurrentValue, _ = decimal.NewFromString(value)
		p.Profit, _ = decimal.NewFromString(profit)
		snaps = append(snaps, p)
	}
	return snaps, rows.Err()
}
