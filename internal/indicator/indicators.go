// Package indicator implements the technical indicator math used by signal
// fusion. Every function is pure: it takes a price series and returns a
// value, so the package is testable without any exchange access.
package indicator

import (
	"fmt"
	"math"
)

// Signal is the directional reading of an indicator.
type Signal string

const (
	SignalBuy     Signal = "buy"
	SignalSell    Signal = "sell"
	SignalNeutral Signal = "neutral"
)

// Trend classifies the moving-average structure of a series.
type Trend string

const (
	TrendUp       Trend = "uptrend"
	TrendDown     Trend = "downtrend"
	TrendSideways Trend = "sideways"
	TrendUnknown  Trend = "unknown"
)

// Result is a standardized indicator reading.
type Result struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Signal   Signal  `json:"signal"`
	Strength float64 `json:"strength"` // 0-100
	Message  string  `json:"message"`
}

// RSI computes the Relative Strength Index over the last `period` deltas
// using a simple average of gains and losses.
//
// Saturation: zero average loss yields 100 (or 50 when the series is flat).
// With fewer than period+1 closes the result is the neutral default 50 with
// an insufficient-data message; short series never fail loudly.
func RSI(closes []float64, period int) Result {
	if len(closes) < period+1 {
		return Result{
			Name:     "RSI",
			Value:    50,
			Signal:   SignalNeutral,
			Strength: 0,
			Message:  fmt.Sprintf("insufficient data (%d < %d)", len(closes), period+1),
		}
	}

	gains := 0.0
	losses := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	var rsi float64
	switch {
	case avgLoss == 0 && avgGain == 0:
		rsi = 50
	case avgLoss == 0:
		rsi = 100
	default:
		rs := avgGain / avgLoss
		rsi = 100 - (100 / (1 + rs))
	}

	return classifyRSI(rsi)
}

func classifyRSI(rsi float64) Result {
	res := Result{Name: "RSI", Value: rsi}
	switch {
	case rsi >= 70:
		res.Signal = SignalSell
		res.Strength = math.Min((rsi-70)*3.33, 100)
		res.Message = fmt.Sprintf("overbought (%.1f)", rsi)
	case rsi <= 30:
		res.Signal = SignalBuy
		res.Strength = math.Min((30-rsi)*3.33, 100)
		res.Message = fmt.Sprintf("oversold (%.1f)", rsi)
	default:
		res.Signal = SignalNeutral
		res.Strength = 50 - math.Abs(50-rsi)
		res.Message = fmt.Sprintf("neutral (%.1f)", rsi)
	}
	return res
}

// MACDResult holds the MACD line, signal line, and histogram.
type MACDResult struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Valid     bool    `json:"valid"` // false when history was too short
}

// MACD computes MACD(fast,slow) with a signal line that is a true EMA of
// the MACD series. When the series is shorter than slow+signalPeriod the
// result is zero-valued and marked invalid: signal generation is gated
// rather than approximated.
func MACD(closes []float64, fast, slow, signalPeriod int) MACDResult {
	if len(closes) < slow+signalPeriod {
		return MACDResult{}
	}

	fastSeries := emaSeries(closes, fast)
	slowSeries := emaSeries(closes, slow)

	// The slow series starts later; align the fast series to it.
	offset := slow - fast
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries := emaSeries(macdLine, signalPeriod)

	macd := macdLine[len(macdLine)-1]
	signal := signalSeries[len(signalSeries)-1]
	return MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
		Valid:     true,
	}
}

// Direction maps the histogram sign onto a trade signal.
func (m MACDResult) Direction() Signal {
	if !m.Valid || m.Histogram == 0 {
		return SignalNeutral
	}
	if m.Histogram > 0 {
		return SignalBuy
	}
	return SignalSell
}

// SMA computes the simple moving average of the last `period` values.
// Returns the last value for short series, 0 for empty ones.
func SMA(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if len(closes) < period {
		return closes[len(closes)-1]
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}

// EMA computes the exponential moving average, seeded with the SMA of the
// first `period` values.
func EMA(closes []float64, period int) float64 {
	series := emaSeries(closes, period)
	if len(series) == 0 {
		if len(closes) == 0 {
			return 0
		}
		return closes[len(closes)-1]
	}
	return series[len(series)-1]
}

// emaSeries returns the full EMA series (first value is the seed SMA).
// Empty when len(data) < period.
func emaSeries(data []float64, period int) []float64 {
	if len(data) < period || period <= 0 {
		return nil
	}
	seed := 0.0
	for _, v := range data[:period] {
		seed += v
	}
	seed /= float64(period)

	multiplier := 2.0 / float64(period+1)
	out := make([]float64, 0, len(data)-period+1)
	out = append(out, seed)
	ema := seed
	for _, price := range data[period:] {
		ema = (price-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// Volatility is the mean absolute percentage change over the last `period`
// deltas, expressed as a percentage. Used to scale stop distances.
func Volatility(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 0.01
	}
	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		changes = append(changes, math.Abs(closes[i]-closes[i-1])/closes[i-1])
	}
	if len(changes) == 0 {
		return 0.01
	}
	if len(changes) > period {
		changes = changes[len(changes)-period:]
	}
	sum := 0.0
	for _, c := range changes {
		sum += c
	}
	return sum / float64(len(changes)) * 100
}

// ClassifyTrend compares the current price against SMA(20) and SMA(50).
// Strictly nested ordering price > sma20 > sma50 means uptrend, the
// reverse nesting downtrend, anything else sideways. Needs 50 closes.
func ClassifyTrend(closes []float64) Trend {
	if len(closes) < 50 {
		return TrendUnknown
	}
	price := closes[len(closes)-1]
	sma20 := SMA(closes, 20)
	sma50 := SMA(closes, 50)

	switch {
	case price > sma20 && sma20 > sma50:
		return TrendUp
	case price < sma20 && sma20 < sma50:
		return TrendDown
	default:
		return TrendSideways
	}
}

// Momentum is the percentage change over the last `period` closes.
func Momentum(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 0
	}
	past := closes[len(closes)-period-1]
	if past == 0 {
		return 0
	}
	return (closes[len(closes)-1] - past) / past * 100
}

// VolumeRatio is the last volume relative to the average of the preceding
// `period` volumes. Returns 1 when there is not enough history.
func VolumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < period+1 {
		return 1
	}
	sum := 0.0
	for i := len(volumes) - period - 1; i < len(volumes)-1; i++ {
		sum += volumes[i]
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 1
	}
	return volumes[len(volumes)-1] / avg
}
