// Package grid implements the range-bound ladder strategy: symmetric limit
// orders around a center price, re-centered when the market drifts away.
package grid

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/weex"
)

// State is the grid state machine position.
type State string

const (
	StateNoGrid      State = "NO_GRID"
	StateActive      State = "ACTIVE"
	StateRebalancing State = "REBALANCING"
)

// Config holds the ladder parameters.
type Config struct {
	Levels             int     `json:"levels"`              // per side
	SpacingPct         float64 `json:"spacing_pct"`         // % between levels
	OrderSizeUSD       float64 `json:"order_size_usd"`      // margin per rung
	Leverage           int     `json:"leverage"`
	RebalanceThreshold float64 `json:"rebalance_threshold"` // % deviation
}

// DefaultConfig returns a conservative three-rung ladder.
func DefaultConfig() Config {
	return Config{
		Levels:             3,
		SpacingPct:         0.5,
		OrderSizeUSD:       20,
		Leverage:           3,
		RebalanceThreshold: 2.0,
	}
}

// Ladder is the set of computed grid prices around a center.
type Ladder struct {
	Center float64   `json:"center"`
	Buys   []float64 `json:"buys"`  // below center, nearest first
	Sells  []float64 `json:"sells"` // above center, nearest first
}

// ComputeLadder builds the symmetric price ladder around center.
func ComputeLadder(center float64, levels int, spacingPct float64) Ladder {
	ladder := Ladder{Center: center}
	spacing := spacingPct / 100
	for i := 1; i <= levels; i++ {
		ladder.Buys = append(ladder.Buys, center*(1-spacing*float64(i)))
		ladder.Sells = append(ladder.Sells, center*(1+spacing*float64(i)))
	}
	return ladder
}

// Deviation returns the percentage distance of price from center.
func Deviation(price, center float64) float64 {
	if center == 0 {
		return 0
	}
	return math.Abs(price-center) / center * 100
}

type gridOrder struct {
	side  weex.OrderSide
	price float64
	level int
}

// Engine runs the grid state machine for one symbol.
type Engine struct {
	cfg      Config
	symbol   string
	exchange weex.Exchange
	risk     *risk.Manager
	log      zerolog.Logger

	mu     sync.RWMutex
	state  State
	center float64
	orders map[string]gridOrder // orderID -> rung
}

// NewEngine creates a grid engine in the NO_GRID state.
func NewEngine(cfg Config, symbol string, exchange weex.Exchange, riskMgr *risk.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		symbol:   symbol,
		exchange: exchange,
		risk:     riskMgr,
		log:      log,
		state:    StateNoGrid,
		orders:   make(map[string]gridOrder),
	}
}

// State returns the current state machine position.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Center returns the current ladder center, 0 when no grid is active.
func (e *Engine) Center() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.center
}

// OpenOrderCount returns the number of resting grid orders.
func (e *Engine) OpenOrderCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.orders)
}

// Tick advances the state machine for a new price. From NO_GRID it places
// the initial ladder; from ACTIVE it rebalances when the price has drifted
// beyond the threshold.
func (e *Engine) Tick(price float64) error {
	if price <= 0 {
		return fmt.Errorf("invalid price %f", price)
	}

	switch e.State() {
	case StateNoGrid:
		return e.place(price)
	case StateActive:
		e.mu.RLock()
		deviation := Deviation(price, e.center)
		e.mu.RUnlock()
		if deviation > e.cfg.RebalanceThreshold {
			return e.rebalance(price, deviation)
		}
		return nil
	default:
		// REBALANCING is transient inside rebalance; seeing it here means
		// a previous rebalance failed partway, so retry the placement.
		return e.place(price)
	}
}

// place sets up a fresh ladder around center and moves to ACTIVE.
func (e *Engine) place(center float64) error {
	totalSize := e.cfg.OrderSizeUSD * float64(e.cfg.Levels*2)
	if ok, reason := e.risk.CanOpen(totalSize, e.symbol); !ok {
		return fmt.Errorf("risk check failed: %s", reason)
	}

	ladder := ComputeLadder(center, e.cfg.Levels, e.cfg.SpacingPct)

	placed := make(map[string]gridOrder)
	placeRung := func(side weex.OrderSide, price float64, level int) {
		qty := e.cfg.OrderSizeUSD * float64(e.cfg.Leverage) / price
		result, err := e.exchange.PlaceOrder(weex.OrderRequest{
			Symbol:   e.symbol,
			Side:     side,
			Type:     weex.OrderLimit,
			Quantity: qty,
			Price:    price,
			ClientID: fmt.Sprintf("grid_%s_%d_%s", side, level, uuid.NewString()[:8]),
		})
		if err != nil {
			e.log.Error().Err(err).Float64("price", price).Str("side", string(side)).Msg("grid rung failed")
			return
		}
		placed[result.OrderID] = gridOrder{side: side, price: price, level: level}
	}

	for i, price := range ladder.Buys {
		placeRung(weex.SideBuy, price, i)
	}
	for i, price := range ladder.Sells {
		placeRung(weex.SideSell, price, i)
	}

	if len(placed) == 0 {
		return fmt.Errorf("no grid orders could be placed")
	}

	e.mu.Lock()
	e.orders = placed
	e.center = center
	e.state = StateActive
	e.mu.Unlock()

	e.log.Info().
		Str("symbol", e.symbol).
		Float64("center", center).
		Int("rungs", len(placed)).
		Msg("grid active")
	return nil
}

// rebalance cancels the resting ladder and re-centers it at price.
func (e *Engine) rebalance(price, deviation float64) error {
	e.mu.Lock()
	e.state = StateRebalancing
	stale := e.orders
	e.orders = make(map[string]gridOrder)
	e.mu.Unlock()

	e.log.Info().
		Str("symbol", e.symbol).
		Float64("deviation_pct", deviation).
		Float64("new_center", price).
		Msg("rebalancing grid")

	for orderID := range stale {
		if err := e.exchange.CancelOrder(e.symbol, orderID); err != nil {
			e.log.Warn().Err(err).Str("order_id", orderID).Msg("grid cancel failed")
		}
	}
	return e.place(price)
}

// Shutdown cancels every resting order and returns to NO_GRID.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	stale := e.orders
	e.orders = make(map[string]gridOrder)
	e.state = StateNoGrid
	e.center = 0
	e.mu.Unlock()

	for orderID := range stale {
		if err := e.exchange.CancelOrder(e.symbol, orderID); err != nil {
			e.log.Warn().Err(err).Str("order_id", orderID).Msg("shutdown cancel failed")
		}
	}
}
