package intel

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// SignalType classifies how an opportunity was detected.
type SignalType string

const (
	SignalTrending    SignalType = "trending"
	SignalVolumeSpike SignalType = "volume_spike"
	SignalReversal    SignalType = "reversal"
	SignalSentiment   SignalType = "sentiment"
)

// Direction is the side an opportunity suggests, if any.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// Opportunity is a normalized market opportunity with a 0-100 strength.
type Opportunity struct {
	CoinID        string     `json:"coin_id"`
	Symbol        string     `json:"symbol"`
	WeexSymbol    string     `json:"weex_symbol"`
	Name          string     `json:"name"`
	Type          SignalType `json:"type"`
	Direction     Direction  `json:"direction"`
	Strength      float64    `json:"strength"`
	Price         float64    `json:"price"`
	Change24h     float64    `json:"change_24h"`
	Volume24h     float64    `json:"volume_24h"`
	MarketCapRank int        `json:"market_cap_rank"`
	Reason        string     `json:"reason"`
}

// Scanner combines the intel feeds into a ranked opportunity list.
type Scanner struct {
	gecko *CoinGeckoClient
	log   zerolog.Logger
}

func NewScanner(gecko *CoinGeckoClient, log zerolog.Logger) *Scanner {
	return &Scanner{gecko: gecko, log: log}
}

// TrendingStrength maps a 0-based trending rank onto a 0-100 strength.
func TrendingStrength(rank int) float64 {
	return math.Min(100, 70+float64(10-rank)*3)
}

// ReversalStrength maps an extreme 24h move onto a 0-100 strength.
func ReversalStrength(change24h float64) float64 {
	return math.Min(95, 50+math.Abs(change24h)*2)
}

// VolumeSpikeStrength maps a volume-to-market-cap ratio onto a strength.
func VolumeSpikeStrength(ratio float64) float64 {
	return math.Min(90, 60+ratio*100)
}

// FindOpportunities scans trending coins, extreme movers, and volume
// spikes, returning opportunities sorted by strength descending. Feed
// failures are logged and skipped; a partial scan is still useful.
func (s *Scanner) FindOpportunities(ctx context.Context) []Opportunity {
	var out []Opportunity

	trending, err := s.gecko.GetTrending(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("trending scan failed")
	}
	for _, coin := range trending {
		weexSymbol, ok := weexSymbols[coin.ID]
		if !ok {
			continue
		}
		out = append(out, Opportunity{
			CoinID:        coin.ID,
			Symbol:        coin.Symbol,
			WeexSymbol:    weexSymbol,
			Name:          coin.Name,
			Type:          SignalTrending,
			Direction:     DirectionNeutral,
			Strength:      TrendingStrength(coin.Score),
			MarketCapRank: coin.MarketCapRank,
			Reason:        fmt.Sprintf("trending #%d by search volume", coin.Score+1),
		})
	}

	gainers, losers, err := s.gecko.TopMovers(ctx, 10)
	if err != nil {
		s.log.Warn().Err(err).Msg("movers scan failed")
	}
	for i, coin := range gainers {
		if i >= 5 || coin.Change24h <= 10 {
			continue
		}
		out = append(out, Opportunity{
			CoinID:        coin.ID,
			Symbol:        coin.Symbol,
			WeexSymbol:    weexSymbols[coin.ID],
			Name:          coin.Name,
			Type:          SignalReversal,
			Direction:     DirectionShort,
			Strength:      ReversalStrength(coin.Change24h),
			Price:         coin.CurrentPrice,
			Change24h:     coin.Change24h,
			Volume24h:     coin.TotalVolume,
			MarketCapRank: coin.MarketCapRank,
			Reason:        fmt.Sprintf("+%.1f%% in 24h, reversal short candidate", coin.Change24h),
		})
	}
	for i, coin := range losers {
		if i >= 5 || coin.Change24h >= -10 {
			continue
		}
		out = append(out, Opportunity{
			CoinID:        coin.ID,
			Symbol:        coin.Symbol,
			WeexSymbol:    weexSymbols[coin.ID],
			Name:          coin.Name,
			Type:          SignalReversal,
			Direction:     DirectionLong,
			Strength:      ReversalStrength(coin.Change24h),
			Price:         coin.CurrentPrice,
			Change24h:     coin.Change24h,
			Volume24h:     coin.TotalVolume,
			MarketCapRank: coin.MarketCapRank,
			Reason:        fmt.Sprintf("%.1f%% in 24h, bounce long candidate", coin.Change24h),
		})
	}

	spikes, err := s.gecko.VolumeSpikes(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("volume spike scan failed")
	}
	for i, spike := range spikes {
		if i >= 5 {
			break
		}
		out = append(out, Opportunity{
			CoinID:      spike.Coin.ID,
			Symbol:      spike.Coin.Symbol,
			WeexSymbol:  spike.WeexSymbol,
			Name:        spike.Coin.Name,
			Type:        SignalVolumeSpike,
			Direction:   DirectionNeutral,
			Strength:    VolumeSpikeStrength(spike.VolumeRatio),
			Price:       spike.Coin.CurrentPrice,
			Change24h:   spike.Coin.Change24h,
			Volume24h:   spike.Coin.TotalVolume,
			Reason:      fmt.Sprintf("volume is %.1f%% of market cap", spike.VolumeRatio*100),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Strength > out[j].Strength
	})
	return out
}
