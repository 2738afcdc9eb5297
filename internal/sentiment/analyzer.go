// Package sentiment provides AI-assisted market sentiment analysis via the
// DeepSeek chat API. The analyzer is optional: without an API key it stays
// disabled and every call returns a neutral result.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	apiURL = "https://api.deepseek.com/v1/chat/completions"
	model  = "deepseek-chat"

	cacheTTL    = 5 * time.Minute
	minInterval = 2 * time.Second
)

// Result is a sentiment reading for one symbol.
type Result struct {
	Sentiment  string    `json:"sentiment"` // bullish, bearish, neutral
	Score      float64   `json:"score"`     // -100 to 100
	Confidence float64   `json:"confidence"`
	Summary    string    `json:"summary"`
	Factors    []string  `json:"factors"`
	Timestamp  time.Time `json:"timestamp"`
}

// Signal converts a sentiment reading into a directional signal.
// Confidence below 60 always reads neutral.
func (r Result) Signal() string {
	if r.Confidence < 60 {
		return "neutral"
	}
	switch r.Sentiment {
	case "bullish":
		return "buy"
	case "bearish":
		return "sell"
	default:
		return "neutral"
	}
}

type cacheEntry struct {
	result    Result
	expiresAt time.Time
}

// Analyzer calls DeepSeek with rate limiting and a short response cache.
type Analyzer struct {
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	cache    map[string]cacheEntry
	lastCall time.Time
}

// New creates an Analyzer. An empty key disables it with a single warning.
func New(apiKey string, log zerolog.Logger) *Analyzer {
	a := &Analyzer{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		cache:      make(map[string]cacheEntry),
	}
	if apiKey == "" {
		log.Warn().Msg("sentiment analysis disabled, no api key configured")
	} else {
		log.Info().Msg("sentiment analyzer initialized")
	}
	return a
}

// Enabled reports whether an API key is configured.
func (a *Analyzer) Enabled() bool {
	return a.apiKey != ""
}

func neutralResult(summary string) Result {
	return Result{
		Sentiment:  "neutral",
		Score:      0,
		Confidence: 0,
		Summary:    summary,
		Timestamp:  time.Now(),
	}
}

// AnalyzeMarket returns the sentiment reading for symbol. Results are
// cached for five minutes; failures degrade to a neutral reading.
func (a *Analyzer) AnalyzeMarket(ctx context.Context, symbol, extra string) Result {
	if !a.Enabled() {
		return neutralResult("sentiment analysis disabled")
	}

	a.mu.Lock()
	if entry, ok := a.cache[symbol]; ok && time.Now().Before(entry.expiresAt) {
		a.mu.Unlock()
		return entry.result
	}
	a.mu.Unlock()

	systemPrompt := `You are a crypto market analyst AI. Analyze market sentiment and provide trading signals.

Your response MUST be valid JSON with this exact format:
{
    "sentiment": "bullish" | "bearish" | "neutral",
    "score": -100 to 100,
    "confidence": 0 to 100,
    "summary": "Brief 1-2 sentence summary",
    "factors": ["factor1", "factor2", "factor3"]
}

Be concise and data-driven. Consider technical and fundamental factors.`

	prompt := fmt.Sprintf(`Analyze the current market sentiment for %s/USDT.

Current context:
- Date: %s
- Market: Crypto futures trading`, symbol, time.Now().UTC().Format("2006-01-02 15:04 UTC"))
	if extra != "" {
		prompt += "\n- Additional info: " + extra
	}
	prompt += "\n\nProvide your sentiment analysis in JSON format."

	raw, err := a.call(ctx, systemPrompt, prompt)
	if err != nil {
		a.log.Warn().Err(err).Str("symbol", symbol).Msg("sentiment query failed")
		return neutralResult("unable to analyze sentiment")
	}

	var parsed struct {
		Sentiment  string   `json:"sentiment"`
		Score      float64  `json:"score"`
		Confidence float64  `json:"confidence"`
		Summary    string   `json:"summary"`
		Factors    []string `json:"factors"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &parsed); err != nil {
		a.log.Warn().Err(err).Msg("sentiment response was not valid json")
		return neutralResult("unable to parse sentiment response")
	}

	result := Result{
		Sentiment:  parsed.Sentiment,
		Score:      parsed.Score,
		Confidence: parsed.Confidence,
		Summary:    parsed.Summary,
		Factors:    parsed.Factors,
		Timestamp:  time.Now(),
	}
	if result.Sentiment == "" {
		result.Sentiment = "neutral"
	}

	a.mu.Lock()
	a.cache[symbol] = cacheEntry{result: result, expiresAt: time.Now().Add(cacheTTL)}
	a.mu.Unlock()
	return result
}

// call sends one chat completion request, spacing calls by minInterval.
func (a *Analyzer) call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	a.mu.Lock()
	if wait := minInterval - time.Since(a.lastCall); wait > 0 {
		a.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		a.mu.Lock()
	}
	a.lastCall = time.Now()
	a.mu.Unlock()

	payload := map[string]interface{}{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature": 0.3,
		"max_tokens":  500,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepseek request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepseek status %d", resp.StatusCode)
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("deepseek returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// stripCodeFence unwraps a markdown ```json block if the model added one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
	} else {
		return s
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
