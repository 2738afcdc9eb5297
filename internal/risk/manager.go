// Package risk enforces capital limits shared by every strategy: daily
// loss cap, daily trade count, per-trade size, and total exposure.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Limits is the risk limit configuration.
type Limits struct {
	MaxPositionSizeUSD  float64 `json:"max_position_size_usd"`
	MaxTotalExposureUSD float64 `json:"max_total_exposure_usd"`
	MaxLeverage         int     `json:"max_leverage"`
	MaxDailyLossUSD     float64 `json:"max_daily_loss_usd"`
	MaxDailyTrades      int     `json:"max_daily_trades"`
	MinBalanceUSD       float64 `json:"min_balance_usd"`
}

// DefaultLimits returns a conservative production default.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSizeUSD:  100,
		MaxTotalExposureUSD: 500,
		MaxLeverage:         15,
		MaxDailyLossUSD:     50,
		MaxDailyTrades:      50,
		MinBalanceUSD:       50,
	}
}

type openPosition struct {
	symbol    string
	side      string
	sizeUSD   float64
	entryTime time.Time
}

// Manager tracks exposure and daily counters. Safe for concurrent use;
// the API server reads status while strategy loops trade.
type Manager struct {
	limits Limits
	log    zerolog.Logger
	now    func() time.Time

	mu            sync.Mutex
	dailyPnL      float64
	dailyTrades   int
	resetDay      time.Time
	positions     map[string]openPosition // keyed by order ID
	totalExposure float64
}

// NewManager creates a Manager with the given limits.
func NewManager(limits Limits, log zerolog.Logger) *Manager {
	now := time.Now
	return &Manager{
		limits:    limits,
		log:       log,
		now:       now,
		resetDay:  truncateDay(now()),
		positions: make(map[string]openPosition),
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// checkDailyReset zeroes the daily counters on the first call after local
// midnight. Callers must hold mu.
func (m *Manager) checkDailyReset() {
	now := m.now()
	if truncateDay(now).After(m.resetDay) {
		m.log.Info().Msg("new trading day, resetting daily limits")
		m.dailyPnL = 0
		m.dailyTrades = 0
		m.resetDay = truncateDay(now)
	}
}

// CanOpen checks whether a new position of sizeUSD may be opened.
// Checks run in order: daily loss, daily trades, per-trade size, exposure.
func (m *Manager) CanOpen(sizeUSD float64, symbol string) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()

	if m.dailyPnL <= -m.limits.MaxDailyLossUSD {
		return false, fmt.Sprintf("Daily loss limit reached: $%.2f", m.dailyPnL)
	}
	if m.dailyTrades >= m.limits.MaxDailyTrades {
		return false, fmt.Sprintf("Daily trade limit reached: %d", m.dailyTrades)
	}
	if sizeUSD > m.limits.MaxPositionSizeUSD {
		return false, fmt.Sprintf("Position too large: $%.2f > $%.2f", sizeUSD, m.limits.MaxPositionSizeUSD)
	}
	if newExposure := m.totalExposure + sizeUSD; newExposure > m.limits.MaxTotalExposureUSD {
		return false, fmt.Sprintf("Total exposure limit: $%.2f > $%.2f", newExposure, m.limits.MaxTotalExposureUSD)
	}
	return true, "OK"
}

// RecordOpen registers a filled open order and adds its size to exposure.
func (m *Manager) RecordOpen(orderID, symbol, side string, sizeUSD, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()

	m.dailyTrades++
	m.positions[orderID] = openPosition{
		symbol:    symbol,
		side:      side,
		sizeUSD:   sizeUSD,
		entryTime: m.now(),
	}
	m.totalExposure += sizeUSD

	m.log.Info().
		Str("symbol", symbol).
		Str("side", side).
		Float64("size_usd", sizeUSD).
		Float64("price", price).
		Msg("trade recorded")
}

// RecordClose books realized P&L and releases the order's exposure.
// Closing an unknown or already-closed order ID books the P&L but leaves
// exposure untouched, so a double close cannot release exposure twice.
func (m *Manager) RecordClose(orderID string, pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()

	if pos, ok := m.positions[orderID]; ok {
		delete(m.positions, orderID)
		m.totalExposure -= pos.sizeUSD
	}
	m.dailyPnL += pnl

	m.log.Info().
		Float64("pnl", pnl).
		Float64("daily_pnl", m.dailyPnL).
		Msg("position closed")
}

// Status is a point-in-time snapshot of the risk state.
type Status struct {
	DailyPnL      float64 `json:"daily_pnl"`
	DailyTrades   int     `json:"daily_trades"`
	OpenPositions int     `json:"open_positions"`
	TotalExposure float64 `json:"total_exposure"`
	CanTrade      bool    `json:"can_trade"`
	Limits        Limits  `json:"limits"`
}

// GetStatus returns the current risk snapshot.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()

	return Status{
		DailyPnL:      m.dailyPnL,
		DailyTrades:   m.dailyTrades,
		OpenPositions: len(m.positions),
		TotalExposure: m.totalExposure,
		CanTrade:      m.dailyPnL > -m.limits.MaxDailyLossUSD,
		Limits:        m.limits,
	}
}

// TotalExposure returns the current exposure across all positions.
func (m *Manager) TotalExposure() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalExposure
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits {
	return m.limits
}
