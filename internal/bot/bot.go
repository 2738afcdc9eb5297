package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/notification"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/weex"
)

// Config tunes the polling loops and the operator kill switches.
type Config struct {
	Variant          Variant       `json:"variant"`
	ScanInterval     time.Duration `json:"-"`
	PositionInterval time.Duration `json:"-"`
	MinBalance       float64       `json:"min_balance"`
	DailyLossCapPct  float64       `json:"daily_loss_cap_pct"` // of equity
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{
		Variant:          VariantScalper,
		ScanInterval:     20 * time.Second,
		PositionInterval: 5 * time.Second,
		MinBalance:       50,
		DailyLossCapPct:  10,
	}
}

// Bot runs one strategy with two ticker loops: a slow scan loop for entry
// decisions and a fast loop for position management. Both loops observe a
// shared stop channel and a pause flag, and the kill switches trip the
// pause flag rather than exiting the process.
type Bot struct {
	cfg       Config
	strategy  Strategy
	exchange  weex.Exchange
	riskMgr   *risk.Manager
	positions *position.Engine
	journal   *journal.Journal
	notifier  *notification.Manager
	log       zerolog.Logger

	mu        sync.RWMutex
	paused    bool
	killed    bool
	startedAt time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wires a bot around a strategy. The notifier may be nil.
func New(
	cfg Config,
	strategy Strategy,
	exchange weex.Exchange,
	riskMgr *risk.Manager,
	positions *position.Engine,
	jrnl *journal.Journal,
	notifier *notification.Manager,
	log zerolog.Logger,
) *Bot {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 20 * time.Second
	}
	if cfg.PositionInterval <= 0 {
		cfg.PositionInterval = 5 * time.Second
	}
	return &Bot{
		cfg:       cfg,
		strategy:  strategy,
		exchange:  exchange,
		riskMgr:   riskMgr,
		positions: positions,
		journal:   jrnl,
		notifier:  notifier,
		log:       log.With().Str("component", "bot").Str("strategy", strategy.Name()).Logger(),
		stopChan:  make(chan struct{}),
	}
}

// Start launches both loops.
func (b *Bot) Start() {
	b.mu.Lock()
	b.startedAt = time.Now()
	b.mu.Unlock()

	b.wg.Add(2)
	go b.scanLoop()
	go b.positionLoop()
	b.log.Info().
		Dur("scan_interval", b.cfg.ScanInterval).
		Dur("position_interval", b.cfg.PositionInterval).
		Msg("bot started")
}

// Stop terminates both loops, waits for in-flight ticks to finish and
// shuts the strategy down.
func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	b.wg.Wait()
	b.strategy.Shutdown()
	b.log.Info().Msg("bot stopped")
}

func (b *Bot) scanLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()

	b.tickScan()
	for {
		select {
		case <-ticker.C:
			b.tickScan()
		case <-b.stopChan:
			return
		}
	}
}

func (b *Bot) positionLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PositionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if b.Running() {
				b.strategy.PositionTick(context.Background())
			}
		case <-b.stopChan:
			return
		}
	}
}

func (b *Bot) tickScan() {
	if b.checkKillSwitches() {
		return
	}
	if !b.Running() {
		return
	}
	b.strategy.ScanTick(context.Background())
}

// checkKillSwitches pauses the bot when equity falls below the configured
// minimum or the daily loss exceeds the equity-relative cap. Tripping is
// an operator condition, not an error: loops stay alive and an explicit
// Resume re-arms trading.
func (b *Bot) checkKillSwitches() (tripped bool) {
	b.mu.RLock()
	alreadyKilled := b.killed
	b.mu.RUnlock()
	if alreadyKilled {
		return true
	}

	balance, err := b.exchange.GetAccountBalance()
	if err != nil {
		b.log.Warn().Err(err).Msg("balance fetch failed in kill-switch check")
		return false
	}

	var reason string
	status := b.riskMgr.GetStatus()
	switch {
	case b.cfg.MinBalance > 0 && balance.Equity < b.cfg.MinBalance:
		reason = "equity below minimum balance"
	case b.cfg.DailyLossCapPct > 0 && status.DailyPnL < 0 &&
		-status.DailyPnL > balance.Equity*b.cfg.DailyLossCapPct/100:
		reason = "daily loss beyond cap"
	default:
		return false
	}

	b.mu.Lock()
	b.killed = true
	b.paused = true
	b.mu.Unlock()

	b.log.Error().
		Str("reason", reason).
		Float64("equity", balance.Equity).
		Float64("daily_pnl", status.DailyPnL).
		Msg("kill switch tripped, trading paused")
	b.journal.Record("kill switch tripped", map[string]interface{}{
		"reason":    reason,
		"equity":    balance.Equity,
		"daily_pnl": status.DailyPnL,
	})
	if b.notifier != nil {
		b.notifier.NotifyWarning("Kill switch tripped: " + reason + ". Trading paused.")
	}
	return true
}

// Pause suspends both loops without stopping them.
func (b *Bot) Pause() {
	b.mu.Lock()
	b.paused = true
	b.mu.Unlock()
	b.journal.Record("bot paused", nil)
}

// Resume re-arms trading and clears a tripped kill switch.
func (b *Bot) Resume() {
	b.mu.Lock()
	b.paused = false
	b.killed = false
	b.mu.Unlock()
	b.journal.Record("bot resumed", nil)
}

// Running reports whether ticks are currently being executed.
func (b *Bot) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.paused
}

// Status returns a dashboard snapshot.
func (b *Bot) Status() map[string]interface{} {
	b.mu.RLock()
	paused, killed, startedAt := b.paused, b.killed, b.startedAt
	b.mu.RUnlock()

	wins, losses := b.positions.Stats()
	return map[string]interface{}{
		"strategy":          b.strategy.Name(),
		"running":           !paused,
		"kill_switch":       killed,
		"started_at":        startedAt,
		"open_positions":    b.positions.Count(),
		"wins":              wins,
		"losses":            losses,
		"scan_interval":     b.cfg.ScanInterval.String(),
		"position_interval": b.cfg.PositionInterval.String(),
	}
}

// LastSignals returns the most recent scan output when the strategy
// produces signals; the grid variant returns none.
func (b *Bot) LastSignals() []fusion.TradeSignal {
	if provider, ok := b.strategy.(interface{ LastSignals() []fusion.TradeSignal }); ok {
		return provider.LastSignals()
	}
	return nil
}
