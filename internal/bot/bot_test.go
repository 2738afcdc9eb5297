package bot

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/grid"
	"weex-trading-bot/internal/intel"
	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/weex"
)

// A 21-bar selloff: 14 straight losing deltas floor the RSI while keeping
// enough bars for a technical snapshot.
var selloffCloses = []float64{
	100, 101, 102, 103, 104, 105, 106,
	105, 104, 103, 102, 101, 100, 99, 98, 97, 96, 95, 94, 93, 92,
}

func candlesFromCloses(closes []float64) []weex.Candle {
	candles := make([]weex.Candle, len(closes))
	for i, c := range closes {
		candles[i] = weex.Candle{
			Timestamp: int64(i+1) * 60000,
			Open:      c,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    1000,
		}
	}
	return candles
}

type scalperFixture struct {
	exchange  *weex.MockClient
	positions *position.Engine
	journal   *journal.Journal
	scalper   *Scalper
}

func newScalperFixture(t *testing.T, symbols []string) *scalperFixture {
	t.Helper()
	log := zerolog.Nop()
	// Equity 100 keeps the fused position size inside the default
	// per-trade risk limit.
	exchange := weex.NewMockClient(100)
	riskMgr := risk.NewManager(risk.DefaultLimits(), log)
	positions := position.NewEngine(position.DefaultConfig(), exchange, riskMgr, nil, log)
	jrnl := journal.New(100, nil, log)

	sentimentFn := func(coin string) sentiment.Result {
		return sentiment.Result{Sentiment: "bullish", Confidence: 80}
	}
	fusionEng := fusion.NewEngine(fusion.DefaultConfig(), sentimentFn, log)

	cfg := DefaultScalperConfig()
	cfg.Symbols = symbols
	scalper := NewScalper(cfg, exchange, nil, fusionEng, nil, nil, positions, jrnl, log)

	return &scalperFixture{
		exchange:  exchange,
		positions: positions,
		journal:   jrnl,
		scalper:   scalper,
	}
}

func TestScalperScanOpensFusedSignal(t *testing.T) {
	f := newScalperFixture(t, []string{"cmt_btcusdt"})
	f.exchange.SetCandles("cmt_btcusdt", candlesFromCloses(selloffCloses))

	// Oversold technicals alone miss the gate; a reversal opportunity and
	// extreme fear push the fused confidence past it.
	f.scalper.opps = []intel.Opportunity{{
		WeexSymbol: "cmt_btcusdt",
		Type:       intel.SignalReversal,
		Change24h:  -12,
	}}
	f.scalper.oppsAt = time.Now()
	f.scalper.fg = intel.FearGreed{Value: 20, Classification: "Extreme Fear"}
	f.scalper.fgAt = time.Now()

	f.scalper.ScanTick(context.Background())

	if f.positions.Count() != 1 {
		t.Fatalf("open positions = %d, want 1", f.positions.Count())
	}
	signals := f.scalper.LastSignals()
	if len(signals) != 1 {
		t.Fatalf("last signals = %d, want 1", len(signals))
	}
	if signals[0].Direction != fusion.Long {
		t.Errorf("direction = %s, want long", signals[0].Direction)
	}

	var opened bool
	for _, e := range f.journal.Recent(10) {
		if e.Message == "position opened" {
			opened = true
		}
	}
	if !opened {
		t.Error("open decision must be journaled")
	}
}

func TestScalperScanSkipsWeakTechnicals(t *testing.T) {
	f := newScalperFixture(t, []string{"cmt_btcusdt"})
	f.exchange.SetCandles("cmt_btcusdt", candlesFromCloses(selloffCloses))
	f.scalper.oppsAt = time.Now()
	f.scalper.fgAt = time.Now()

	f.scalper.ScanTick(context.Background())

	if f.positions.Count() != 0 {
		t.Errorf("strength 30 with no boosts must not open, got %d positions", f.positions.Count())
	}
}

func TestScalperCandidatesExcludeOpenPositions(t *testing.T) {
	f := newScalperFixture(t, []string{"cmt_btcusdt", "cmt_ethusdt"})
	err := f.positions.Open(&fusion.TradeSignal{
		Symbol:     "cmt_btcusdt",
		Direction:  fusion.Long,
		Confidence: 70,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 104,
		SizeUSD:    20,
		Leverage:   5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, symbol := range f.scalper.candidates() {
		if symbol == "cmt_btcusdt" {
			t.Error("symbol with an open position must not be a candidate")
		}
	}
}

func TestScalperPositionTickClosesOnStop(t *testing.T) {
	f := newScalperFixture(t, nil)
	err := f.positions.Open(&fusion.TradeSignal{
		Symbol:     "cmt_btcusdt",
		Direction:  fusion.Long,
		Confidence: 70,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 104,
		SizeUSD:    20,
		Leverage:   5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	f.exchange.SetTicker(weex.Ticker{Symbol: "cmt_btcusdt", Last: 97.5})
	f.scalper.PositionTick(context.Background())

	if f.positions.Count() != 0 {
		t.Fatal("price through the stop must close the position")
	}
	var journaled bool
	for _, e := range f.journal.Recent(10) {
		if e.Message == "position closed" {
			journaled = true
		}
	}
	if !journaled {
		t.Error("close decision must be journaled")
	}
}

func TestScalperSkipsZeroPrice(t *testing.T) {
	f := newScalperFixture(t, nil)
	err := f.positions.Open(&fusion.TradeSignal{
		Symbol:     "cmt_btcusdt",
		Direction:  fusion.Long,
		Confidence: 70,
		EntryPrice: 100,
		StopLoss:   98,
		TakeProfit: 104,
		SizeUSD:    20,
		Leverage:   5,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// No ticker set: the mock returns a zero price and the tick must skip.
	f.scalper.PositionTick(context.Background())
	if f.positions.Count() != 1 {
		t.Error("zero price must be treated as unavailable, not as a stop hit")
	}
}

func newBot(t *testing.T, equity float64, cfg Config) (*Bot, *weex.MockClient, *journal.Journal) {
	t.Helper()
	log := zerolog.Nop()
	exchange := weex.NewMockClient(equity)
	riskMgr := risk.NewManager(risk.DefaultLimits(), log)
	positions := position.NewEngine(position.DefaultConfig(), exchange, riskMgr, nil, log)
	jrnl := journal.New(100, nil, log)

	scalper := NewScalper(DefaultScalperConfig(), exchange, nil, fusion.NewEngine(fusion.DefaultConfig(), nil, log), nil, nil, positions, jrnl, log)
	return New(cfg, scalper, exchange, riskMgr, positions, jrnl, nil, log), exchange, jrnl
}

func TestKillSwitchTripsBelowMinBalance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBalance = 50
	b, _, jrnl := newBot(t, 10, cfg)

	if !b.checkKillSwitches() {
		t.Fatal("equity 10 with minimum 50 must trip")
	}
	if b.Running() {
		t.Error("tripped kill switch must pause the bot")
	}

	var journaled bool
	for _, e := range jrnl.Recent(10) {
		if e.Message == "kill switch tripped" {
			journaled = true
		}
	}
	if !journaled {
		t.Error("kill switch must be journaled")
	}

	// Resume re-arms trading and clears the trip.
	b.Resume()
	if !b.Running() {
		t.Error("resume must re-arm trading")
	}
}

func TestKillSwitchStaysArmedAboveMinimum(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBalance = 50
	b, _, _ := newBot(t, 1000, cfg)

	if b.checkKillSwitches() {
		t.Error("healthy equity must not trip")
	}
	if !b.Running() {
		t.Error("bot must be running by default")
	}
}

func TestPauseResume(t *testing.T) {
	b, _, _ := newBot(t, 1000, DefaultConfig())
	b.Pause()
	if b.Running() {
		t.Error("pause must stop ticks")
	}
	b.Resume()
	if !b.Running() {
		t.Error("resume must restart ticks")
	}
}

func TestStatusSnapshot(t *testing.T) {
	b, _, _ := newBot(t, 1000, DefaultConfig())
	status := b.Status()
	if status["strategy"] != string(VariantScalper) {
		t.Errorf("strategy = %v", status["strategy"])
	}
	if status["running"] != true {
		t.Errorf("running = %v", status["running"])
	}
	if status["open_positions"] != 0 {
		t.Errorf("open_positions = %v", status["open_positions"])
	}
}

func TestGridStrategyPlacesLadder(t *testing.T) {
	log := zerolog.Nop()
	exchange := weex.NewMockClient(10000)
	limits := risk.DefaultLimits()
	limits.MaxPositionSizeUSD = 200 // full ladder is 6 rungs at $20
	riskMgr := risk.NewManager(limits, log)
	engine := grid.NewEngine(grid.DefaultConfig(), "cmt_btcusdt", exchange, riskMgr, log)
	jrnl := journal.New(100, nil, log)

	strat := NewGridStrategy("cmt_btcusdt", engine, exchange, nil, jrnl, log)
	exchange.SetTicker(weex.Ticker{Symbol: "cmt_btcusdt", Last: 100})

	strat.PositionTick(context.Background())
	if engine.State() != grid.StateActive {
		t.Fatalf("state = %s, want ACTIVE", engine.State())
	}

	strat.ScanTick(context.Background())
	var journaled bool
	for _, e := range jrnl.Recent(10) {
		if e.Message == "grid state changed" {
			journaled = true
		}
	}
	if !journaled {
		t.Error("state transition must be journaled")
	}

	strat.Shutdown()
	if engine.State() != grid.StateNoGrid {
		t.Errorf("shutdown must cancel the ladder, state = %s", engine.State())
	}
}

func TestBotStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanInterval = 10 * time.Millisecond
	cfg.PositionInterval = 10 * time.Millisecond
	b, _, _ := newBot(t, 1000, cfg)

	b.Start()
	time.Sleep(30 * time.Millisecond)
	b.Stop()

	// Stop is idempotent.
	b.Stop()
}
