package bot

import (
	"context"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/grid"
	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/weex"
)

// GridStrategy drives one grid engine on a single symbol. The ladder is
// managed on the fast cadence; the slow cadence only journals state.
type GridStrategy struct {
	symbol   string
	engine   *grid.Engine
	exchange weex.Exchange
	stream   *weex.TickerStream
	journal  *journal.Journal
	log      zerolog.Logger

	lastState grid.State
}

// NewGridStrategy wires the grid strategy. The stream may be nil.
func NewGridStrategy(
	symbol string,
	engine *grid.Engine,
	exchange weex.Exchange,
	stream *weex.TickerStream,
	jrnl *journal.Journal,
	log zerolog.Logger,
) *GridStrategy {
	return &GridStrategy{
		symbol:   symbol,
		engine:   engine,
		exchange: exchange,
		stream:   stream,
		journal:  jrnl,
		log:      log.With().Str("component", "grid").Str("symbol", symbol).Logger(),
	}
}

func (g *GridStrategy) Name() string { return string(VariantGrid) }

func (g *GridStrategy) price() float64 {
	if g.stream != nil {
		if t, ok := g.stream.Latest(g.symbol); ok && t.Last > 0 {
			return t.Last
		}
	}
	t, err := g.exchange.GetTicker(g.symbol)
	if err != nil {
		g.log.Warn().Err(err).Msg("ticker fetch failed")
		return 0
	}
	return t.Last
}

// ScanTick journals ladder state transitions.
func (g *GridStrategy) ScanTick(ctx context.Context) {
	state := g.engine.State()
	if state == g.lastState {
		return
	}
	g.journal.Record("grid state changed", map[string]interface{}{
		"symbol": g.symbol,
		"state":  string(state),
		"center": g.engine.Center(),
		"orders": g.engine.OpenOrderCount(),
	})
	g.lastState = state
}

// PositionTick advances the grid state machine against the current price.
func (g *GridStrategy) PositionTick(ctx context.Context) {
	price := g.price()
	if price <= 0 {
		return
	}
	if err := g.engine.Tick(price); err != nil {
		g.log.Warn().Err(err).Float64("price", price).Msg("grid tick failed")
	}
}

// Shutdown cancels the resting ladder.
func (g *GridStrategy) Shutdown() {
	g.engine.Shutdown()
}
