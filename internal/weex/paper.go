package weex

import (
	"sync"

	"github.com/google/uuid"
)

// PaperExchange delegates market-data reads to a live client but keeps
// orders and balance entirely local. Dry-run mode trades against real
// prices with synthetic order IDs and no network placement.
type PaperExchange struct {
	market Exchange

	mu      sync.RWMutex
	balance AccountBalance
	orders  map[string]OrderRequest
}

// NewPaperExchange wraps a market-data source with a simulated account.
func NewPaperExchange(market Exchange, equity float64) *PaperExchange {
	return &PaperExchange{
		market:  market,
		balance: AccountBalance{Equity: equity, Available: equity},
		orders:  make(map[string]OrderRequest),
	}
}

func (p *PaperExchange) GetCandles(symbol, granularity string, limit int) ([]Candle, error) {
	return p.market.GetCandles(symbol, granularity, limit)
}

func (p *PaperExchange) GetTicker(symbol string) (*Ticker, error) {
	return p.market.GetTicker(symbol)
}

func (p *PaperExchange) PlaceOrder(req OrderRequest) (*OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "paper_" + uuid.NewString()
	p.orders[id] = req
	return &OrderResult{OrderID: id, ClientID: req.ClientID}, nil
}

func (p *PaperExchange) CancelOrder(symbol, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.orders, orderID)
	return nil
}

func (p *PaperExchange) SetLeverage(symbol string, leverage int) error {
	return nil
}

func (p *PaperExchange) GetAccountBalance() (*AccountBalance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b := p.balance
	return &b, nil
}

// BookPnL adjusts the simulated balance after a close.
func (p *PaperExchange) BookPnL(pnlUSD float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balance.Equity += pnlUSD
	p.balance.Available += pnlUSD
}

// OpenOrders returns the simulated open order count.
func (p *PaperExchange) OpenOrders() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orders)
}
