package weex

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MockClient is an in-memory Exchange used for dry-run mode and tests.
// Prices are fed by the caller; orders always succeed with synthetic IDs.
type MockClient struct {
	mu      sync.RWMutex
	tickers map[string]Ticker
	candles map[string][]Candle
	balance AccountBalance
	orders  []OrderRequest
	open    map[string]OrderRequest // orderID -> request, for cancel tracking
	fail    bool
}

// NewMockClient creates a mock exchange with the given starting equity.
func NewMockClient(equity float64) *MockClient {
	return &MockClient{
		tickers: make(map[string]Ticker),
		candles: make(map[string][]Candle),
		balance: AccountBalance{Equity: equity, Available: equity},
		open:    make(map[string]OrderRequest),
	}
}

// SetTicker sets the current ticker for a symbol.
func (m *MockClient) SetTicker(t Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[t.Symbol] = t
}

// SetCandles sets the candle series returned for a symbol.
func (m *MockClient) SetCandles(symbol string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles[symbol] = candles
}

// SetOrderFailure makes subsequent PlaceOrder calls fail when on is true.
func (m *MockClient) SetOrderFailure(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = on
}

// Orders returns every order placed so far.
func (m *MockClient) Orders() []OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

// OpenOrderCount returns the number of orders placed but not cancelled.
func (m *MockClient) OpenOrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.open)
}

func (m *MockClient) GetCandles(symbol, granularity string, limit int) ([]Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.candles[symbol]
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]Candle, len(series))
	copy(out, series)
	return out, nil
}

func (m *MockClient) GetTicker(symbol string) (*Ticker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickers[symbol]
	if !ok {
		return &Ticker{Symbol: symbol}, nil
	}
	return &t, nil
}

func (m *MockClient) PlaceOrder(req OrderRequest) (*OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, fmt.Errorf("order rejected")
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("invalid quantity %f", req.Quantity)
	}
	id := uuid.NewString()
	m.orders = append(m.orders, req)
	m.open[id] = req
	return &OrderResult{OrderID: id, ClientID: req.ClientID}, nil
}

func (m *MockClient) CancelOrder(symbol, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[orderID]; !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	delete(m.open, orderID)
	return nil
}

func (m *MockClient) SetLeverage(symbol string, leverage int) error {
	return nil
}

func (m *MockClient) GetAccountBalance() (*AccountBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b := m.balance
	return &b, nil
}
