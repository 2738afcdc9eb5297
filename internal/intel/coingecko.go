// Package intel gathers external market intelligence: CoinGecko trending
// and market data, the alternative.me Fear & Greed index, and the
// opportunity scanner that feeds signal fusion.
package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"weex-trading-bot/internal/cache"
	"weex-trading-bot/internal/weex"
)

const (
	coinGeckoFreeURL = "https://api.coingecko.com/api/v3"
	coinGeckoProURL  = "https://pro-api.coingecko.com/api/v3"

	cacheTTL = 60 * time.Second
)

// weexSymbols maps CoinGecko coin IDs to tradeable contract symbols.
// Coins outside this map are ignored by the scanner.
var weexSymbols = map[string]string{
	"bitcoin":     "cmt_btcusdt",
	"ethereum":    "cmt_ethusdt",
	"solana":      "cmt_solusdt",
	"binancecoin": "cmt_bnbusdt",
	"dogecoin":    "cmt_dogeusdt",
	"cardano":     "cmt_adausdt",
	"ripple":      "cmt_xrpusdt",
	"litecoin":    "cmt_ltcusdt",
	"avalanche-2": "cmt_avaxusdt",
	"polkadot":    "cmt_dotusdt",
	"chainlink":   "cmt_linkusdt",
	"near":        "cmt_nearusdt",
	"uniswap":     "cmt_uniusdt",
	"pepe":        "cmt_pepeusdt",
	"shiba-inu":   "cmt_shibusdt",
	"sui":         "cmt_suiusdt",
	"aptos":       "cmt_aptusdt",
	"arbitrum":    "cmt_arbusdt",
}

// TrendingCoin is one entry from the CoinGecko trending search list.
type TrendingCoin struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	MarketCapRank int     `json:"market_cap_rank"`
	PriceBTC      float64 `json:"price_btc"`
	Score         int     `json:"score"` // 0-based trending rank
}

// MarketCoin is a row from /coins/markets.
type MarketCoin struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	CurrentPrice  float64 `json:"current_price"`
	MarketCap     float64 `json:"market_cap"`
	MarketCapRank int     `json:"market_cap_rank"`
	TotalVolume   float64 `json:"total_volume"`
	Change1h      float64 `json:"price_change_percentage_1h_in_currency"`
	Change24h     float64 `json:"price_change_percentage_24h"`
	Change7d      float64 `json:"price_change_percentage_7d_in_currency"`
}

// GlobalMarket is the aggregate market snapshot.
type GlobalMarket struct {
	TotalMarketCapUSD float64 `json:"total_market_cap_usd"`
	TotalVolume24h    float64 `json:"total_volume_24h"`
	BTCDominance      float64 `json:"btc_dominance"`
	ETHDominance      float64 `json:"eth_dominance"`
	MarketCapChange   float64 `json:"market_cap_change_24h"`
}

// CoinGeckoClient fetches market intelligence with caching and rate limiting.
type CoinGeckoClient struct {
	httpClient *http.Client
	cache      *cache.Cache
	throttle   *weex.Throttle
	baseURL    string
	apiKey     string
	log        zerolog.Logger
}

// NewCoinGeckoClient creates a client. A non-empty API key switches to the
// Pro endpoint and a tighter request interval.
func NewCoinGeckoClient(apiKey string, c *cache.Cache, log zerolog.Logger) *CoinGeckoClient {
	baseURL := coinGeckoFreeURL
	minInterval := 1500 * time.Millisecond
	if apiKey != "" {
		baseURL = coinGeckoProURL
		minInterval = 500 * time.Millisecond
		log.Info().Msg("coingecko pro tier enabled")
	} else {
		log.Info().Msg("coingecko free tier, requests are rate limited")
	}

	return &CoinGeckoClient{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		cache:      c,
		throttle:   weex.NewThrottle(minInterval),
		baseURL:    baseURL,
		apiKey:     apiKey,
		log:        log,
	}
}

// request performs a cached GET against the CoinGecko API. Responses are
// cached for a minute to stay inside free tier limits.
func (c *CoinGeckoClient) request(ctx context.Context, endpoint string, params url.Values, dest interface{}) error {
	cacheKey := "coingecko:" + endpoint
	if params != nil {
		cacheKey += "?" + params.Encode()
	}
	if c.cache.GetJSON(ctx, cacheKey, dest) {
		return nil
	}

	c.throttle.Wait()

	reqURL := c.baseURL + endpoint
	if params != nil {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coingecko request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("coingecko rate limit hit")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coingecko status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("coingecko decode failed: %w", err)
	}

	if err := c.cache.SetJSON(ctx, cacheKey, dest, cacheTTL); err != nil {
		c.log.Debug().Err(err).Msg("cache write failed")
	}
	return nil
}

// GetTrending returns the currently trending coins by search volume.
func (c *CoinGeckoClient) GetTrending(ctx context.Context) ([]TrendingCoin, error) {
	var raw struct {
		Coins []struct {
			Item struct {
				ID            string  `json:"id"`
				Symbol        string  `json:"symbol"`
				Name          string  `json:"name"`
				MarketCapRank int     `json:"market_cap_rank"`
				PriceBTC      float64 `json:"price_btc"`
				Score         int     `json:"score"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := c.request(ctx, "/search/trending", nil, &raw); err != nil {
		return nil, err
	}

	out := make([]TrendingCoin, 0, len(raw.Coins))
	for i, entry := range raw.Coins {
		if i >= 10 {
			break
		}
		out = append(out, TrendingCoin{
			ID:            entry.Item.ID,
			Symbol:        entry.Item.Symbol,
			Name:          entry.Item.Name,
			MarketCapRank: entry.Item.MarketCapRank,
			PriceBTC:      entry.Item.PriceBTC,
			Score:         entry.Item.Score,
		})
	}
	return out, nil
}

// GetGlobalMarket returns aggregate market statistics.
func (c *CoinGeckoClient) GetGlobalMarket(ctx context.Context) (*GlobalMarket, error) {
	var raw struct {
		Data struct {
			TotalMarketCap      map[string]float64 `json:"total_market_cap"`
			TotalVolume         map[string]float64 `json:"total_volume"`
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
			MarketCapChange24h  float64            `json:"market_cap_change_percentage_24h_usd"`
		} `json:"data"`
	}
	if err := c.request(ctx, "/global", nil, &raw); err != nil {
		return nil, err
	}

	return &GlobalMarket{
		TotalMarketCapUSD: raw.Data.TotalMarketCap["usd"],
		TotalVolume24h:    raw.Data.TotalVolume["usd"],
		BTCDominance:      raw.Data.MarketCapPercentage["btc"],
		ETHDominance:      raw.Data.MarketCapPercentage["eth"],
		MarketCapChange:   raw.Data.MarketCapChange24h,
	}, nil
}

// GetTopCoins returns the top coins by market cap with price change data.
func (c *CoinGeckoClient) GetTopCoins(ctx context.Context, limit int) ([]MarketCoin, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("per_page", fmt.Sprintf("%d", limit))
	params.Set("page", "1")
	params.Set("sparkline", "false")
	params.Set("price_change_percentage", "1h,24h,7d")

	var coins []MarketCoin
	if err := c.request(ctx, "/coins/markets", params, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// TopMovers returns the biggest 24h gainers and losers among coins that
// map onto tradeable contracts.
func (c *CoinGeckoClient) TopMovers(ctx context.Context, limit int) (gainers, losers []MarketCoin, err error) {
	coins, err := c.GetTopCoins(ctx, 100)
	if err != nil {
		return nil, nil, err
	}

	tradeable := coins[:0]
	for _, coin := range coins {
		if _, ok := weexSymbols[coin.ID]; ok {
			tradeable = append(tradeable, coin)
		}
	}
	sort.Slice(tradeable, func(i, j int) bool {
		return tradeable[i].Change24h > tradeable[j].Change24h
	})

	if limit > len(tradeable) {
		limit = len(tradeable)
	}
	gainers = tradeable[:limit]

	losers = make([]MarketCoin, 0, limit)
	for i := len(tradeable) - 1; i >= len(tradeable)-limit; i-- {
		losers = append(losers, tradeable[i])
	}
	return gainers, losers, nil
}

// VolumeSpikes returns coins whose 24h volume exceeds 8% of market cap,
// sorted by ratio. High turnover relative to cap marks unusual activity.
func (c *CoinGeckoClient) VolumeSpikes(ctx context.Context) ([]VolumeSpike, error) {
	coins, err := c.GetTopCoins(ctx, 100)
	if err != nil {
		return nil, err
	}

	var spikes []VolumeSpike
	for _, coin := range coins {
		weexSymbol, ok := weexSymbols[coin.ID]
		if !ok || coin.MarketCap <= 0 {
			continue
		}
		ratio := coin.TotalVolume / coin.MarketCap
		if ratio > 0.08 {
			spikes = append(spikes, VolumeSpike{
				Coin:        coin,
				WeexSymbol:  weexSymbol,
				VolumeRatio: ratio,
			})
		}
	}
	sort.Slice(spikes, func(i, j int) bool {
		return spikes[i].VolumeRatio > spikes[j].VolumeRatio
	})
	return spikes, nil
}

// VolumeSpike is a coin with abnormal volume relative to market cap.
type VolumeSpike struct {
	Coin        MarketCoin `json:"coin"`
	WeexSymbol  string     `json:"weex_symbol"`
	VolumeRatio float64    `json:"volume_ratio"`
}

// WeexSymbol maps a CoinGecko coin ID to its contract symbol.
func WeexSymbol(coinID string) (string, bool) {
	s, ok := weexSymbols[coinID]
	return s, ok
}
