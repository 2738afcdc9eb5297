package fusion

import (
	"testing"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/intel"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/weex"
)

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

func newEngine(sentimentFn SentimentFunc) *Engine {
	return NewEngine(DefaultConfig(), sentimentFn, zerolog.Nop())
}

// selloffCloses is a 21-bar series whose last 14 deltas are all losses,
// driving RSI to the floor while staying above the snapshot minimum.
var selloffCloses = []float64{
	100, 101, 102, 103, 104, 105, 106,
	105, 104, 103, 102, 101, 100, 99, 98, 97, 96, 95, 94, 93, 92,
}

func TestAnalyzeTechnicalOversold(t *testing.T) {
	tech := newEngine(nil).AnalyzeTechnical("cmt_btcusdt", candlesFromCloses(selloffCloses))
	if tech == nil {
		t.Fatal("expected technical snapshot")
	}
	if tech.RSI > 30 {
		t.Errorf("persistent selloff should be oversold, RSI=%.1f", tech.RSI)
	}
	if tech.Direction != Long {
		t.Errorf("oversold should propose long, got %s", tech.Direction)
	}
	if tech.Strength != 30 {
		t.Errorf("RSI-only score should be 30, got %.0f", tech.Strength)
	}
	if tech.MACD.Valid {
		t.Error("21 closes should gate MACD")
	}
}

// mildSelloffCloses ends with the same 14 deltas as a choppy rise followed
// by a steady drift down: gains 8 against losses 17 put RSI at exactly 32,
// above the oversold threshold but inside the low band.
var mildSelloffCloses = []float64{
	100, 100, 100, 100, 100, 100,
	100, 102, 101, 105, 107, 103, 99, 98, 97, 96, 95, 94, 93, 92, 91,
}

func TestAnalyzeTechnicalLowRSIProposesLong(t *testing.T) {
	tech := newEngine(nil).AnalyzeTechnical("cmt_btcusdt", candlesFromCloses(mildSelloffCloses))
	if tech == nil {
		t.Fatal("expected technical snapshot")
	}
	if tech.RSI < 30 || tech.RSI >= 40 {
		t.Fatalf("RSI = %.1f, want the 30..40 low band", tech.RSI)
	}
	if tech.Direction != Long {
		t.Errorf("low RSI should propose long, got %s", tech.Direction)
	}
	if tech.Strength != 15 {
		t.Errorf("low-band RSI score should be 15, got %.0f", tech.Strength)
	}
}

func TestAnalyzeTechnicalTooFewCandles(t *testing.T) {
	closes := make([]float64, 10)
	for i := range closes {
		closes[i] = 100
	}
	if tech := newEngine(nil).AnalyzeTechnical("cmt_btcusdt", candlesFromCloses(closes)); tech != nil {
		t.Error("under 20 candles should yield no snapshot")
	}
}

func TestEvaluateRejectsWeakSignal(t *testing.T) {
	tech := &Technical{Price: 100, Strength: 30, Direction: Long, Volatility: 1}
	sig := newEngine(nil).Evaluate(Input{
		Symbol:    "cmt_btcusdt",
		Technical: tech,
		FearGreed: intel.FearGreed{Value: 50},
		Available: 1000,
	})
	if sig != nil {
		t.Errorf("strength 30 should miss the 65 gate, got %+v", sig)
	}
}

func TestEvaluateRejectsNeutralDirection(t *testing.T) {
	tech := &Technical{Price: 100, Strength: 70, Direction: Neutral, Volatility: 1}
	if sig := newEngine(nil).Evaluate(Input{Symbol: "cmt_btcusdt", Technical: tech, Available: 1000}); sig != nil {
		t.Errorf("neutral direction should never trade, got %+v", sig)
	}
}

func TestReversalNeverOverturnsTechnicalStance(t *testing.T) {
	tech := &Technical{Price: 100, Strength: 60, Direction: Long, Volatility: 1}
	opp := intel.Opportunity{
		WeexSymbol: "cmt_btcusdt",
		Type:       intel.SignalReversal,
		Change24h:  15, // reversal says short
	}
	sig := newEngine(nil).Evaluate(Input{
		Symbol:        "cmt_btcusdt",
		Technical:     tech,
		Opportunities: []intel.Opportunity{opp},
		FearGreed:     intel.FearGreed{Value: 50},
		Available:     1000,
	})
	if sig == nil {
		t.Fatal("60+20 should pass the gate")
	}
	if sig.Direction != Long {
		t.Errorf("reversal hint overturned a long technical stance to %s", sig.Direction)
	}
}

func TestLeverageBands(t *testing.T) {
	cases := []struct {
		strength float64
		leverage int
	}{
		{85, 15},
		{70, 10},
		{66, 10},
	}
	for _, tc := range cases {
		tech := &Technical{Price: 100, Strength: tc.strength, Direction: Long, Volatility: 1}
		sig := newEngine(nil).Evaluate(Input{
			Symbol:    "cmt_btcusdt",
			Technical: tech,
			FearGreed: intel.FearGreed{Value: 50},
			Available: 1000,
		})
		if sig == nil {
			t.Fatalf("strength %.0f should pass", tc.strength)
		}
		if sig.Leverage != tc.leverage {
			t.Errorf("strength %.0f: leverage %d, want %d", tc.strength, sig.Leverage, tc.leverage)
		}
	}
}

func TestVolatilityScaledStops(t *testing.T) {
	tech := &Technical{Price: 100, Strength: 70, Direction: Long, Volatility: 2}
	sig := newEngine(nil).Evaluate(Input{
		Symbol:    "cmt_btcusdt",
		Technical: tech,
		FearGreed: intel.FearGreed{Value: 50},
		Available: 1000,
	})
	if sig == nil {
		t.Fatal("expected signal")
	}
	// sl% = 1.5 * (1 + 2*0.1) = 1.8, tp% = 4.0 * 1.2 = 4.8
	wantSL := 100 * (1 - 1.8/100)
	wantTP := 100 * (1 + 4.8/100)
	if diff := sig.StopLoss - wantSL; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("stop loss %.4f, want %.4f", sig.StopLoss, wantSL)
	}
	if diff := sig.TakeProfit - wantTP; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("take profit %.4f, want %.4f", sig.TakeProfit, wantTP)
	}
	if sig.StopLoss >= sig.EntryPrice || sig.TakeProfit <= sig.EntryPrice {
		t.Error("long stops must bracket the entry")
	}
}

func TestShortStopsMirrored(t *testing.T) {
	tech := &Technical{Price: 100, Strength: 70, Direction: Short, Volatility: 0.1}
	sig := newEngine(nil).Evaluate(Input{
		Symbol:    "cmt_btcusdt",
		Technical: tech,
		FearGreed: intel.FearGreed{Value: 50},
		Available: 1000,
	})
	if sig == nil {
		t.Fatal("expected signal")
	}
	if sig.StopLoss <= sig.EntryPrice || sig.TakeProfit >= sig.EntryPrice {
		t.Error("short stops must bracket the entry from the other side")
	}
}

// Full pipeline: oversold technicals, a bounce opportunity, extreme fear,
// and bullish sentiment combine into an accepted long proposal.
func TestFusedLongProposal(t *testing.T) {
	sentimentFn := func(coin string) sentiment.Result {
		return sentiment.Result{Sentiment: "bullish", Confidence: 80}
	}
	engine := newEngine(sentimentFn)

	tech := engine.AnalyzeTechnical("cmt_btcusdt", candlesFromCloses(selloffCloses))
	if tech == nil {
		t.Fatal("expected technical snapshot")
	}

	sig := engine.Evaluate(Input{
		Symbol:    "cmt_btcusdt",
		Technical: tech,
		Opportunities: []intel.Opportunity{{
			WeexSymbol: "cmt_btcusdt",
			Type:       intel.SignalReversal,
			Change24h:  -12,
		}},
		FearGreed: intel.FearGreed{Value: 20},
		Available: 1000,
	})
	if sig == nil {
		t.Fatal("combined sources should clear the entry gate")
	}
	if sig.Direction != Long {
		t.Errorf("direction = %s, want long", sig.Direction)
	}
	// 30 (RSI) + 20 (reversal) + 10 (fear) + 15 (sentiment) = 75
	if sig.Confidence != 75 {
		t.Errorf("confidence = %.0f, want 75", sig.Confidence)
	}
	if sig.Leverage != 10 {
		t.Errorf("confidence 75 should map to 10x, got %d", sig.Leverage)
	}
	if sig.SizeUSD <= 0 {
		t.Error("size must be positive")
	}
}

func TestRank(t *testing.T) {
	signals := []*TradeSignal{
		{Symbol: "a", Confidence: 70},
		{Symbol: "b", Confidence: 90},
		{Symbol: "c", Confidence: 80},
	}
	ranked := Rank(signals)
	if ranked[0].Symbol != "b" || ranked[1].Symbol != "c" || ranked[2].Symbol != "a" {
		t.Errorf("unexpected order: %s %s %s", ranked[0].Symbol, ranked[1].Symbol, ranked[2].Symbol)
	}
}

func TestCoinName(t *testing.T) {
	if got := coinName("cmt_btcusdt"); got != "BTC" {
		t.Errorf("coinName = %s, want BTC", got)
	}
}
