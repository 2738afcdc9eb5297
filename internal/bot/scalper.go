package bot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/intel"
	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/weex"
)

// ScalperConfig tunes the signal-driven strategy.
type ScalperConfig struct {
	Symbols      []string      `json:"symbols"`
	Granularity  string        `json:"granularity"`
	CandleLimit  int           `json:"candle_limit"`
	IntelRefresh time.Duration `json:"-"`
}

// DefaultScalperConfig returns the production cadence: 5m candles and a
// two-minute market-intelligence refresh.
func DefaultScalperConfig() ScalperConfig {
	return ScalperConfig{
		Granularity:  "5m",
		CandleLimit:  100,
		IntelRefresh: 2 * time.Minute,
	}
}

// Scalper fuses technical, opportunity, fear/greed and sentiment inputs
// into ranked entries and drives the position lifecycle on every tick.
type Scalper struct {
	cfg       ScalperConfig
	exchange  weex.Exchange
	stream    *weex.TickerStream
	fusionEng *fusion.Engine
	scanner   *intel.Scanner
	fearGreed *intel.FearGreedClient
	positions *position.Engine
	journal   *journal.Journal
	log       zerolog.Logger

	mu          sync.RWMutex
	opps        []intel.Opportunity
	oppsAt      time.Time
	fg          intel.FearGreed
	fgAt        time.Time
	lastSignals []fusion.TradeSignal
}

// NewScalper wires the scalper strategy. The stream may be nil; prices
// then come from REST only.
func NewScalper(
	cfg ScalperConfig,
	exchange weex.Exchange,
	stream *weex.TickerStream,
	fusionEng *fusion.Engine,
	scanner *intel.Scanner,
	fearGreed *intel.FearGreedClient,
	positions *position.Engine,
	jrnl *journal.Journal,
	log zerolog.Logger,
) *Scalper {
	if cfg.Granularity == "" {
		cfg.Granularity = "5m"
	}
	if cfg.CandleLimit <= 0 {
		cfg.CandleLimit = 100
	}
	if cfg.IntelRefresh <= 0 {
		cfg.IntelRefresh = 2 * time.Minute
	}
	return &Scalper{
		cfg:       cfg,
		exchange:  exchange,
		stream:    stream,
		fusionEng: fusionEng,
		scanner:   scanner,
		fearGreed: fearGreed,
		positions: positions,
		journal:   jrnl,
		log:       log.With().Str("component", "scalper").Logger(),
		fg:        intel.FearGreed{Value: 50, Classification: "Neutral", Signal: "neutral"},
	}
}

func (s *Scalper) Name() string { return string(VariantScalper) }

// price returns the freshest last price for a symbol, stream first with
// REST fallback. Zero means unavailable and the symbol is skipped.
func (s *Scalper) price(symbol string) float64 {
	if s.stream != nil {
		if t, ok := s.stream.Latest(symbol); ok && t.Last > 0 {
			return t.Last
		}
	}
	t, err := s.exchange.GetTicker(symbol)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", symbol).Msg("ticker fetch failed")
		return 0
	}
	return t.Last
}

// refreshIntel re-pulls opportunities and fear/greed when stale.
func (s *Scalper) refreshIntel(ctx context.Context) {
	s.mu.RLock()
	oppsStale := time.Since(s.oppsAt) >= s.cfg.IntelRefresh
	fgStale := time.Since(s.fgAt) >= s.cfg.IntelRefresh
	s.mu.RUnlock()

	if oppsStale && s.scanner != nil {
		opps := s.scanner.FindOpportunities(ctx)
		s.mu.Lock()
		s.opps = opps
		s.oppsAt = time.Now()
		s.mu.Unlock()
	}
	if fgStale && s.fearGreed != nil {
		fg := s.fearGreed.Get(ctx)
		s.mu.Lock()
		s.fg = fg
		s.fgAt = time.Now()
		s.mu.Unlock()
	}
}

// candidates merges the configured watchlist with symbols surfaced by the
// opportunity scan, deduplicated, positions and cooldowns excluded.
func (s *Scalper) candidates() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(symbol string) {
		if symbol == "" || seen[symbol] {
			return
		}
		seen[symbol] = true
		if s.positions.HasPosition(symbol) || s.positions.OnCooldown(symbol) {
			return
		}
		out = append(out, symbol)
	}

	for _, symbol := range s.cfg.Symbols {
		add(symbol)
	}
	s.mu.RLock()
	for _, opp := range s.opps {
		add(opp.WeexSymbol)
	}
	s.mu.RUnlock()
	return out
}

// ScanTick evaluates all candidates and opens the strongest approved
// signals. Every accept and reject is journaled.
func (s *Scalper) ScanTick(ctx context.Context) {
	s.refreshIntel(ctx)

	balance, err := s.exchange.GetAccountBalance()
	if err != nil {
		s.log.Warn().Err(err).Msg("balance fetch failed, skipping scan")
		return
	}

	s.mu.RLock()
	opps := s.opps
	fg := s.fg
	s.mu.RUnlock()

	var signals []*fusion.TradeSignal
	for _, symbol := range s.candidates() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		candles, err := s.exchange.GetCandles(symbol, s.cfg.Granularity, s.cfg.CandleLimit)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("candle fetch failed")
			continue
		}

		technical := s.fusionEng.AnalyzeTechnical(symbol, candles)
		if technical == nil {
			continue
		}

		signal := s.fusionEng.Evaluate(fusion.Input{
			Symbol:        symbol,
			Technical:     technical,
			Opportunities: opps,
			FearGreed:     fg,
			Available:     balance.Available,
		})
		if signal == nil {
			continue
		}
		signals = append(signals, signal)
	}

	ranked := fusion.Rank(signals)

	s.mu.Lock()
	s.lastSignals = s.lastSignals[:0]
	for _, sig := range ranked {
		s.lastSignals = append(s.lastSignals, *sig)
	}
	s.mu.Unlock()

	for _, sig := range ranked {
		if err := s.positions.Open(sig); err != nil {
			s.journal.Record("entry rejected", map[string]interface{}{
				"symbol":     sig.Symbol,
				"confidence": sig.Confidence,
				"reason":     err.Error(),
			})
			continue
		}
		s.journal.Record("position opened", map[string]interface{}{
			"symbol":     sig.Symbol,
			"direction":  string(sig.Direction),
			"confidence": sig.Confidence,
			"entry":      sig.EntryPrice,
			"size_usd":   sig.SizeUSD,
			"leverage":   sig.Leverage,
			"reasons":    sig.Reasons,
		})
	}
}

// PositionTick re-evaluates every open position against the current price.
func (s *Scalper) PositionTick(ctx context.Context) {
	for _, pos := range s.positions.Positions() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		price := s.price(pos.Symbol)
		if price <= 0 {
			continue
		}
		if closed, reason := s.positions.Tick(pos.Symbol, price); closed {
			s.journal.Record("position closed", map[string]interface{}{
				"symbol": pos.Symbol,
				"reason": reason,
				"price":  price,
			})
		}
	}
}

// LastSignals returns the signals from the most recent scan, strongest first.
func (s *Scalper) LastSignals() []fusion.TradeSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fusion.TradeSignal, len(s.lastSignals))
	copy(out, s.lastSignals)
	return out
}

// Shutdown force-closes all open positions.
func (s *Scalper) Shutdown() {
	s.positions.CloseAll()
}
