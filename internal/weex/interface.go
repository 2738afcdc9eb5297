package weex

// Exchange is the collaborator surface the trading engines depend on.
// The REST client implements it; tests substitute fakes.
type Exchange interface {
	GetCandles(symbol, granularity string, limit int) ([]Candle, error)
	GetTicker(symbol string) (*Ticker, error)
	PlaceOrder(req OrderRequest) (*OrderResult, error)
	CancelOrder(symbol, orderID string) error
	SetLeverage(symbol string, leverage int) error
	GetAccountBalance() (*AccountBalance, error)
}
