package intel

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const fearGreedURL = "https://api.alternative.me/fng/"

// FearGreed is the market-wide Fear & Greed reading.
//
// 0-24 extreme fear, 25-49 fear, 50-74 greed, 75-100 extreme greed.
type FearGreed struct {
	Value          int    `json:"value"`
	Classification string `json:"classification"`
	Signal         string `json:"signal"` // buy below 30, sell above 70
}

// FearGreedClient fetches the index from alternative.me.
type FearGreedClient struct {
	httpClient *http.Client
	log        zerolog.Logger
}

func NewFearGreedClient(log zerolog.Logger) *FearGreedClient {
	return &FearGreedClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Get returns the current index. Any failure degrades to the neutral
// default of 50 so callers never block on this feed.
func (c *FearGreedClient) Get(ctx context.Context) FearGreed {
	neutral := FearGreed{Value: 50, Classification: "Neutral", Signal: "neutral"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fearGreedURL, nil)
	if err != nil {
		return neutral
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("fear/greed fetch failed")
		return neutral
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return neutral
	}

	var raw struct {
		Data []struct {
			Value          string `json:"value"`
			Classification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil || len(raw.Data) == 0 {
		return neutral
	}

	value, err := strconv.Atoi(raw.Data[0].Value)
	if err != nil {
		return neutral
	}

	signal := "neutral"
	if value < 30 {
		signal = "buy"
	} else if value > 70 {
		signal = "sell"
	}
	return FearGreed{
		Value:          value,
		Classification: raw.Data[0].Classification,
		Signal:         signal,
	}
}
