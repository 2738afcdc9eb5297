// Package fusion combines technical indicators, market intelligence,
// fear/greed, and AI sentiment into ranked trade signals.
package fusion

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/indicator"
	"weex-trading-bot/internal/intel"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/weex"
)

// Direction is the proposed side of a trade signal.
type Direction string

const (
	Long    Direction = "long"
	Short   Direction = "short"
	Neutral Direction = "neutral"
)

// TradeSignal is a fully parameterized trade proposal.
type TradeSignal struct {
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // 0-100
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	SizeUSD    float64   `json:"size_usd"` // margin in USDT
	Leverage   int       `json:"leverage"`
	Reasons    []string  `json:"reasons"`
}

// Technical is the indicator snapshot for one symbol with its partial score.
type Technical struct {
	Price       float64
	RSI         float64
	MACD        indicator.MACDResult
	Volatility  float64
	VolumeRatio float64
	Momentum    float64
	Trend       indicator.Trend
	Strength    float64
	Direction   Direction
	Reasons     []string
}

// Config holds the tunable fusion parameters.
type Config struct {
	MinConfidence  float64 `json:"min_confidence"`   // entry gate, default 65
	RiskPerTrade   float64 `json:"risk_per_trade"`   // fraction of available, default 0.02
	MaxTradeShare  float64 `json:"max_trade_share"`  // cap as fraction of available, default 0.2
	StopLossPct    float64 `json:"stop_loss_pct"`    // base, default 1.5
	TakeProfitPct  float64 `json:"take_profit_pct"`  // base, default 4.0
	LeverageHigh   int     `json:"leverage_high"`    // confidence >= 80
	LeverageMedium int     `json:"leverage_medium"`  // confidence >= 60
	LeverageLow    int     `json:"leverage_low"`     // otherwise
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:  65,
		RiskPerTrade:   0.02,
		MaxTradeShare:  0.2,
		StopLossPct:    1.5,
		TakeProfitPct:  4.0,
		LeverageHigh:   15,
		LeverageMedium: 10,
		LeverageLow:    5,
	}
}

// SentimentFunc supplies an AI sentiment reading for a coin name.
// nil disables sentiment confirmation.
type SentimentFunc func(coin string) sentiment.Result

// Engine scores symbols and emits trade signals.
type Engine struct {
	cfg       Config
	sentiment SentimentFunc
	log       zerolog.Logger
}

func NewEngine(cfg Config, sentimentFn SentimentFunc, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, sentiment: sentimentFn, log: log}
}

// AnalyzeTechnical computes the indicator snapshot and technical score for
// one symbol from its candles. Returns nil below 20 candles.
func (e *Engine) AnalyzeTechnical(symbol string, candles []weex.Candle) *Technical {
	if len(candles) < 20 {
		return nil
	}
	weex.SortCandles(candles)

	closes := weex.Closes(candles)
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		volumes[i] = c.Volume
	}

	t := &Technical{
		Price:       closes[len(closes)-1],
		RSI:         indicator.RSI(closes, 14).Value,
		MACD:        indicator.MACD(closes, 12, 26, 9),
		Volatility:  indicator.Volatility(closes, 14),
		VolumeRatio: indicator.VolumeRatio(volumes, 10),
		Momentum:    indicator.Momentum(closes, 4),
		Trend:       indicator.ClassifyTrend(closes),
		Direction:   Neutral,
	}

	switch {
	case t.RSI < 30:
		t.Strength += 30
		t.Direction = Long
		t.Reasons = append(t.Reasons, fmt.Sprintf("RSI oversold (%.1f)", t.RSI))
	case t.RSI > 70:
		t.Strength += 30
		t.Direction = Short
		t.Reasons = append(t.Reasons, fmt.Sprintf("RSI overbought (%.1f)", t.RSI))
	case t.RSI < 40:
		t.Strength += 15
		t.Direction = Long
		t.Reasons = append(t.Reasons, fmt.Sprintf("RSI low (%.1f)", t.RSI))
	case t.RSI > 60:
		t.Strength += 15
		t.Direction = Short
		t.Reasons = append(t.Reasons, fmt.Sprintf("RSI high (%.1f)", t.RSI))
	}

	// MACD only confirms or breaks a tie, never flips an RSI stance.
	if t.MACD.Valid {
		if t.MACD.Histogram > 0 && t.Direction != Short {
			t.Strength += 15
			t.Direction = Long
			t.Reasons = append(t.Reasons, "MACD bullish")
		} else if t.MACD.Histogram < 0 && t.Direction != Long {
			t.Strength += 15
			t.Direction = Short
			t.Reasons = append(t.Reasons, "MACD bearish")
		}
	}

	if t.VolumeRatio > 1.5 {
		t.Strength += 10
		t.Reasons = append(t.Reasons, fmt.Sprintf("high volume (%.1fx)", t.VolumeRatio))
	}

	if t.Momentum > 2 && t.Direction == Long {
		t.Strength += 10
		t.Reasons = append(t.Reasons, fmt.Sprintf("strong momentum (+%.1f%%)", t.Momentum))
	} else if t.Momentum < -2 && t.Direction == Short {
		t.Strength += 10
		t.Reasons = append(t.Reasons, fmt.Sprintf("strong momentum (%.1f%%)", t.Momentum))
	}

	if (t.Trend == indicator.TrendUp && t.Direction == Long) ||
		(t.Trend == indicator.TrendDown && t.Direction == Short) {
		t.Strength += 20
		t.Reasons = append(t.Reasons, fmt.Sprintf("trend aligned (%s)", t.Trend))
	}

	return t
}

// Input carries everything Evaluate needs for one symbol.
type Input struct {
	Symbol        string
	Technical     *Technical
	Opportunities []intel.Opportunity
	FearGreed     intel.FearGreed
	Available     float64 // available balance in USDT
}

// Evaluate fuses all sources for one symbol. Returns nil when the combined
// confidence misses the entry gate or the direction stays neutral.
func (e *Engine) Evaluate(in Input) *TradeSignal {
	t := in.Technical
	if t == nil {
		return nil
	}

	strength := t.Strength
	direction := t.Direction
	reasons := append([]string(nil), t.Reasons...)

	// One opportunity boost per symbol, strongest first.
	for _, opp := range in.Opportunities {
		if opp.WeexSymbol != in.Symbol {
			continue
		}
		switch opp.Type {
		case intel.SignalTrending:
			strength += 15
			reasons = append(reasons, "trending coin")
			if direction == Neutral {
				direction = Long
			}
		case intel.SignalReversal:
			strength += 20
			// A reversal hint never overturns an opposite technical stance.
			if opp.Change24h > 10 && direction != Long {
				direction = Short
				reasons = append(reasons, fmt.Sprintf("reversal short (+%.1f%% in 24h)", opp.Change24h))
			} else if opp.Change24h < -10 && direction != Short {
				direction = Long
				reasons = append(reasons, fmt.Sprintf("bounce long (%.1f%% in 24h)", opp.Change24h))
			}
		case intel.SignalVolumeSpike:
			strength += 10
			reasons = append(reasons, "whale activity detected")
		}
		break
	}

	if in.FearGreed.Value < 25 && direction == Long {
		strength += 10
		reasons = append(reasons, "extreme fear (contrarian buy)")
	} else if in.FearGreed.Value > 75 && direction == Short {
		strength += 10
		reasons = append(reasons, "extreme greed (contrarian sell)")
	}

	// Sentiment is expensive, so it only confirms already-strong setups.
	if strength >= 50 && e.sentiment != nil {
		coin := coinName(in.Symbol)
		sent := e.sentiment(coin)
		if sent.Sentiment == "bullish" && direction == Long {
			strength += 15
			reasons = append(reasons, fmt.Sprintf("AI bullish (%.0f%%)", sent.Confidence))
		} else if sent.Sentiment == "bearish" && direction == Short {
			strength += 15
			reasons = append(reasons, fmt.Sprintf("AI bearish (%.0f%%)", sent.Confidence))
		}
	}

	confidence := math.Min(100, strength)
	if confidence < e.cfg.MinConfidence || direction == Neutral {
		return nil
	}

	leverage := e.cfg.LeverageLow
	if confidence >= 80 {
		leverage = e.cfg.LeverageHigh
	} else if confidence >= 60 {
		leverage = e.cfg.LeverageMedium
	}

	riskAmount := in.Available * e.cfg.RiskPerTrade
	sizeUSD := math.Min(riskAmount*float64(leverage), in.Available*e.cfg.MaxTradeShare)

	vol := math.Max(t.Volatility, 0.5)
	slPct := e.cfg.StopLossPct * (1 + vol*0.1)
	tpPct := e.cfg.TakeProfitPct * (1 + vol*0.1)

	var stopLoss, takeProfit float64
	if direction == Long {
		stopLoss = t.Price * (1 - slPct/100)
		takeProfit = t.Price * (1 + tpPct/100)
	} else {
		stopLoss = t.Price * (1 + slPct/100)
		takeProfit = t.Price * (1 - tpPct/100)
	}

	return &TradeSignal{
		Symbol:     in.Symbol,
		Direction:  direction,
		Confidence: confidence,
		EntryPrice: t.Price,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		SizeUSD:    sizeUSD,
		Leverage:   leverage,
		Reasons:    reasons,
	}
}

// Rank sorts signals by confidence descending, in place, and returns them.
func Rank(signals []*TradeSignal) []*TradeSignal {
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})
	return signals
}

// coinName extracts the base asset from a contract symbol,
// cmt_btcusdt becomes BTC.
func coinName(symbol string) string {
	s := strings.TrimPrefix(symbol, "cmt_")
	s = strings.TrimSuffix(s, "usdt")
	return strings.ToUpper(s)
}
