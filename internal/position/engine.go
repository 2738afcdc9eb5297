// Package position manages the lifecycle of open positions: entry with
// risk approval, per-tick exit checks, trailing stops, and close-out with
// realized P&L booking.
package position

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/weex"
)

// Exit reasons reported on close.
const (
	ReasonStopLoss     = "Stop Loss"
	ReasonTakeProfit   = "Take Profit"
	ReasonTrailingStop = "Trailing Stop"
	ReasonManualClose  = "Manual Close"
)

// Config holds the lifecycle tunables.
type Config struct {
	MaxPositions       int     `json:"max_positions"`
	TrailingActivation float64 `json:"trailing_activation"` // arm at this unrealized %, default 2.0
	TrailingStopPct    float64 `json:"trailing_stop_pct"`   // distance off best price, default 1.0
	CooldownMinutes    int     `json:"cooldown_minutes"`    // per symbol, started on close
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPositions:       5,
		TrailingActivation: 2.0,
		TrailingStopPct:    1.0,
		CooldownMinutes:    3,
	}
}

// Position is one tracked open position.
type Position struct {
	Symbol        string           `json:"symbol"`
	OrderID       string           `json:"order_id"`
	Direction     fusion.Direction `json:"direction"`
	EntryPrice    float64          `json:"entry_price"`
	Quantity      float64          `json:"quantity"`
	SizeUSD       float64          `json:"size_usd"` // margin
	Leverage      int              `json:"leverage"`
	StopLoss      float64          `json:"stop_loss"`
	TakeProfit    float64          `json:"take_profit"`
	HighestPrice  float64          `json:"highest_price"`
	LowestPrice   float64          `json:"lowest_price"`
	TrailingArmed bool             `json:"trailing_armed"`
	OpenTime      time.Time        `json:"open_time"`
	Reasons       []string         `json:"reasons"`

	// Updated each tick for status reads.
	LastPrice float64 `json:"last_price"`
	PnLPct    float64 `json:"pnl_pct"`
	PnLUSD    float64 `json:"pnl_usd"`
}

// Notifier receives position lifecycle events. All methods may be called
// from strategy goroutines.
type Notifier interface {
	NotifyOpen(symbol string, direction string, entry, sizeUSD float64, leverage int)
	NotifyClose(symbol string, reason string, pnlUSD float64)
}

// Engine tracks positions for one strategy.
type Engine struct {
	cfg      Config
	exchange weex.Exchange
	risk     *risk.Manager
	notifier Notifier // may be nil
	log      zerolog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	positions map[string]*Position
	closing   map[string]bool
	cooldowns map[string]time.Time
	wins      int
	losses    int
}

// NewEngine creates a lifecycle engine.
func NewEngine(cfg Config, exchange weex.Exchange, riskMgr *risk.Manager, notifier Notifier, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		exchange:  exchange,
		risk:      riskMgr,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
		positions: make(map[string]*Position),
		closing:   make(map[string]bool),
		cooldowns: make(map[string]time.Time),
	}
}

// stepSizes is the contract quantity granularity per symbol.
var stepSizes = map[string]float64{
	"cmt_btcusdt":  0.001,
	"cmt_ethusdt":  0.01,
	"cmt_solusdt":  0.1,
	"cmt_bnbusdt":  0.1,
	"cmt_adausdt":  10,
	"cmt_dogeusdt": 100,
	"cmt_ltcusdt":  0.1,
	"cmt_xrpusdt":  10,
	"cmt_avaxusdt": 0.1,
	"cmt_dotusdt":  0.1,
	"cmt_linkusdt": 0.1,
	"cmt_nearusdt": 1,
	"cmt_uniusdt":  0.1,
	"cmt_arbusdt":  1,
	"cmt_suiusdt":  1,
	"cmt_aptusdt":  0.1,
	"cmt_pepeusdt": 1000000,
	"cmt_shibusdt": 100000,
}

// StepSize returns the quantity step for a symbol, defaulting to 0.01.
func StepSize(symbol string) float64 {
	if step, ok := stepSizes[symbol]; ok {
		return step
	}
	return 0.01
}

// Quantity converts margin and leverage into an order quantity rounded to
// the symbol's step size.
func Quantity(symbol string, price, sizeUSD float64, leverage int) float64 {
	if price <= 0 {
		return 0
	}
	notional := sizeUSD * float64(leverage)
	raw := notional / price
	step := StepSize(symbol)
	return math.Round(raw/step) * step
}

// HasPosition reports whether symbol has a tracked position.
func (e *Engine) HasPosition(symbol string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.positions[symbol]
	return ok
}

// OnCooldown reports whether symbol is still in its post-close cooldown.
func (e *Engine) OnCooldown(symbol string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.onCooldownLocked(symbol)
}

func (e *Engine) onCooldownLocked(symbol string) bool {
	closedAt, ok := e.cooldowns[symbol]
	if !ok {
		return false
	}
	return e.now().Sub(closedAt) < time.Duration(e.cfg.CooldownMinutes)*time.Minute
}

// Open enters a position for the given signal. Any failure leaves the
// engine without a tracked position and without booked exposure.
func (e *Engine) Open(signal *fusion.TradeSignal) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.positions) >= e.cfg.MaxPositions {
		return fmt.Errorf("max positions reached (%d)", e.cfg.MaxPositions)
	}
	if _, ok := e.positions[signal.Symbol]; ok {
		return fmt.Errorf("position already open on %s", signal.Symbol)
	}
	if e.onCooldownLocked(signal.Symbol) {
		return fmt.Errorf("%s is on cooldown", signal.Symbol)
	}

	if ok, reason := e.risk.CanOpen(signal.SizeUSD, signal.Symbol); !ok {
		return fmt.Errorf("risk check failed: %s", reason)
	}

	if err := e.exchange.SetLeverage(signal.Symbol, signal.Leverage); err != nil {
		return fmt.Errorf("set leverage: %w", err)
	}

	qty := Quantity(signal.Symbol, signal.EntryPrice, signal.SizeUSD, signal.Leverage)
	if qty <= 0 {
		return fmt.Errorf("quantity rounds to zero for %s at %.4f", signal.Symbol, signal.EntryPrice)
	}

	side := weex.SideBuy
	if signal.Direction == fusion.Short {
		side = weex.SideSell
	}
	result, err := e.exchange.PlaceOrder(weex.OrderRequest{
		Symbol:   signal.Symbol,
		Side:     side,
		Type:     weex.OrderMarket,
		Quantity: qty,
	})
	if err != nil {
		return fmt.Errorf("place order: %w", err)
	}

	pos := &Position{
		Symbol:       signal.Symbol,
		OrderID:      result.OrderID,
		Direction:    signal.Direction,
		EntryPrice:   signal.EntryPrice,
		Quantity:     qty,
		SizeUSD:      signal.SizeUSD,
		Leverage:     signal.Leverage,
		StopLoss:     signal.StopLoss,
		TakeProfit:   signal.TakeProfit,
		HighestPrice: signal.EntryPrice,
		LowestPrice:  signal.EntryPrice,
		OpenTime:     e.now(),
		Reasons:      signal.Reasons,
		LastPrice:    signal.EntryPrice,
	}
	e.positions[signal.Symbol] = pos
	e.risk.RecordOpen(result.OrderID, signal.Symbol, string(signal.Direction), signal.SizeUSD, signal.EntryPrice)

	e.log.Info().
		Str("symbol", signal.Symbol).
		Str("direction", string(signal.Direction)).
		Float64("entry", signal.EntryPrice).
		Float64("qty", qty).
		Int("leverage", signal.Leverage).
		Float64("confidence", signal.Confidence).
		Msg("position opened")

	if e.notifier != nil {
		e.notifier.NotifyOpen(signal.Symbol, string(signal.Direction), signal.EntryPrice, signal.SizeUSD, signal.Leverage)
	}
	return nil
}

// Tick processes a price update for symbol. Exit checks run in strict
// priority: stop loss, then take profit, then trailing stop. Returns the
// exit reason when the position was closed on this tick.
func (e *Engine) Tick(symbol string, price float64) (closed bool, reason string) {
	if price <= 0 {
		return false, ""
	}

	e.mu.Lock()
	pos, ok := e.positions[symbol]
	if !ok {
		e.mu.Unlock()
		return false, ""
	}

	var pnlPct float64
	if pos.Direction == fusion.Long {
		pnlPct = (price - pos.EntryPrice) / pos.EntryPrice * 100
		pos.HighestPrice = math.Max(pos.HighestPrice, price)
	} else {
		pnlPct = (pos.EntryPrice - price) / pos.EntryPrice * 100
		pos.LowestPrice = math.Min(pos.LowestPrice, price)
	}
	pnlUSD := pnlPct * pos.SizeUSD * float64(pos.Leverage) / 100

	pos.LastPrice = price
	pos.PnLPct = pnlPct
	pos.PnLUSD = pnlUSD

	// Exits are evaluated against the armed state from previous ticks;
	// arming for this tick happens below. Once armed, the trailing stop
	// replaces the fixed take-profit so a runner is not capped at the
	// original target. The stop loss always applies.
	exit := ""
	switch {
	case pos.Direction == fusion.Long && price <= pos.StopLoss,
		pos.Direction == fusion.Short && price >= pos.StopLoss:
		exit = ReasonStopLoss
	case !pos.TrailingArmed &&
		(pos.Direction == fusion.Long && price >= pos.TakeProfit ||
			pos.Direction == fusion.Short && price <= pos.TakeProfit):
		exit = ReasonTakeProfit
	case pos.TrailingArmed:
		if pos.Direction == fusion.Long {
			trail := pos.HighestPrice * (1 - e.cfg.TrailingStopPct/100)
			if price <= trail {
				exit = ReasonTrailingStop
			}
		} else {
			trail := pos.LowestPrice * (1 + e.cfg.TrailingStopPct/100)
			if price >= trail {
				exit = ReasonTrailingStop
			}
		}
	}

	// Arming is sticky: once the activation profit was seen the trailing
	// stop stays live even if the price falls back.
	if pnlPct >= e.cfg.TrailingActivation {
		pos.TrailingArmed = true
	}
	e.mu.Unlock()

	if exit == "" {
		return false, ""
	}
	if err := e.Close(symbol, exit, pnlUSD); err != nil {
		e.log.Error().Err(err).Str("symbol", symbol).Str("reason", exit).Msg("close failed, position stays tracked")
		return false, ""
	}
	return true, exit
}

// TrailingStopPrice returns the current trailing stop level, or false if
// the trailing stop is not armed.
func (e *Engine) TrailingStopPrice(symbol string) (float64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pos, ok := e.positions[symbol]
	if !ok || !pos.TrailingArmed {
		return 0, false
	}
	if pos.Direction == fusion.Long {
		return pos.HighestPrice * (1 - e.cfg.TrailingStopPct/100), true
	}
	return pos.LowestPrice * (1 + e.cfg.TrailingStopPct/100), true
}

// Close exits a position with a market reduce order. On order failure the
// position stays tracked so a later tick can retry. While a close is in
// flight on a symbol, further Close calls for it are rejected so a manual
// close racing a tick exit cannot place a second reduce order.
func (e *Engine) Close(symbol, reason string, pnlUSD float64) error {
	e.mu.Lock()
	pos, ok := e.positions[symbol]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("no position on %s", symbol)
	}
	if e.closing[symbol] {
		e.mu.Unlock()
		return fmt.Errorf("close already in flight on %s", symbol)
	}
	e.closing[symbol] = true
	e.mu.Unlock()

	side := weex.SideSell
	if pos.Direction == fusion.Short {
		side = weex.SideBuy
	}
	if _, err := e.exchange.PlaceOrder(weex.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     weex.OrderMarket,
		Quantity: pos.Quantity,
		Reduce:   true,
	}); err != nil {
		e.mu.Lock()
		delete(e.closing, symbol)
		e.mu.Unlock()
		return fmt.Errorf("close order: %w", err)
	}

	e.mu.Lock()
	delete(e.positions, symbol)
	delete(e.closing, symbol)
	e.cooldowns[symbol] = e.now()
	if pnlUSD > 0 {
		e.wins++
	} else {
		e.losses++
	}
	e.mu.Unlock()

	e.risk.RecordClose(pos.OrderID, pnlUSD)

	e.log.Info().
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("pnl_usd", pnlUSD).
		Msg("position closed")

	if e.notifier != nil {
		e.notifier.NotifyClose(symbol, reason, pnlUSD)
	}
	return nil
}

// CloseAll force-closes every tracked position at its last seen price.
func (e *Engine) CloseAll() {
	e.mu.RLock()
	symbols := make([]string, 0, len(e.positions))
	pnls := make([]float64, 0, len(e.positions))
	for symbol, pos := range e.positions {
		symbols = append(symbols, symbol)
		pnls = append(pnls, pos.PnLUSD)
	}
	e.mu.RUnlock()

	for i, symbol := range symbols {
		if err := e.Close(symbol, ReasonManualClose, pnls[i]); err != nil {
			e.log.Error().Err(err).Str("symbol", symbol).Msg("force close failed")
		}
	}
}

// Positions returns a snapshot copy of all tracked positions.
func (e *Engine) Positions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	return out
}

// Count returns the number of tracked positions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.positions)
}

// Stats returns the win/loss counters.
func (e *Engine) Stats() (wins, losses int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.wins, e.losses
}
