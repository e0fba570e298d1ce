package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foliotrack/portfolio-engine/internal/model"
)

// ErrSymbolNotFound is returned when the upstream source does not know the
// symbol. The refresh scheduler reacts by deleting the symbol's quote row;
// any other fetch error is transient and retried on the next cycle.
var ErrSymbolNotFound = errors.New("quote: symbol not found")

// Source performs one network lookup per symbol.
type Source interface {
	Fetch(ctx context.Context, symbol string) (model.Quote, error)
}

// HTTPSource fetches quotes from a JSON quote API. The expected response
// shape is {"symbol","name","price","currency"}; a 404 status marks the
// symbol as unknown.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSource creates a source against the given API base URL.
func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type quoteResponse struct {
	Symbol   string      `json:"symbol"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Currency string      `json:"currency"`
}

// Fetch looks up one symbol. The request honors both the client timeout
// and the caller's context deadline.
func (s *HTTPSource) Fetch(ctx context.Context, symbol string) (model.Quote, error) {
	sym := strings.ToUpper(symbol)

	u := fmt.Sprintf("%s/v1/quote?symbol=%s", s.baseURL, url.QueryEscape(sym))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build quote request for %s: %w", sym, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("fetch quote %s: %w", sym, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return model.Quote{}, fmt.Errorf("fetch quote %s: %w", sym, ErrSymbolNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Quote{}, fmt.Errorf("fetch quote %s: status %d: %s", sym, resp.StatusCode, body)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return model.Quote{}, fmt.Errorf("decode quote %s: %w", sym, err)
	}

	price, err := decimal.NewFromString(qr.Price.String())
	if err != nil {
		return model.Quote{}, fmt.Errorf("parse quote price for %s: %w", sym, err)
	}

	name := qr.Name
	if name == "" {
		name = sym
	}

	return model.Quote{
		Symbol:    sym,
		Name:      name,
		Currency:  qr.Currency,
		LastPrice: price,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
