package weex

import "sort"

// Candle represents a single OHLCV candlestick.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// SortCandles orders candles by ascending timestamp. Upstream ordering is
// not guaranteed, so callers sort defensively before computing indicators.
func SortCandles(candles []Candle) {
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp < candles[j].Timestamp
	})
}

// Closes extracts the close series from a candle slice.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Ticker holds the latest market snapshot for a symbol. Zero values mean
// the data was unavailable and the symbol should be skipped this tick.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	High24h   float64 `json:"high_24h"`
	Low24h    float64 `json:"low_24h"`
	Volume24h float64 `json:"volume_24h"`
}

// OrderSide is the order direction sent to the exchange.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType distinguishes market from limit orders.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Type     OrderType
	Quantity float64
	Price    float64 // limit orders only
	Reduce   bool    // true when closing an existing position
	ClientID string  // optional client order ID
}

// OrderResult is the exchange's answer to an order placement.
type OrderResult struct {
	OrderID  string `json:"orderId"`
	ClientID string `json:"client_oid"`
}

// AccountBalance summarizes the USDT futures account.
type AccountBalance struct {
	Equity        float64 `json:"equity"`
	Available     float64 `json:"available"`
	Frozen        float64 `json:"frozen"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}
