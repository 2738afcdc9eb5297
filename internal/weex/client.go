// Package weex implements the WEEX contract API collaborator: a signed REST
// client, a websocket ticker stream, and the Exchange interface the trading
// engines consume.
package weex

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api-contract.weex.com"

// Client is a signed WEEX contract REST client.
type Client struct {
	apiKey     string
	secretKey  string
	passphrase string
	baseURL    string
	httpClient *http.Client
	throttle   *Throttle
}

// NewClient creates a WEEX client. An empty baseURL selects production.
func NewClient(apiKey, secretKey, passphrase, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		throttle:   NewThrottle(200 * time.Millisecond),
	}
}

// sign builds the ACCESS-SIGN header value: base64(HMAC-SHA256(ts+method+path+body)).
func (c *Client) sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(timestamp + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) setAuthHeaders(req *http.Request, method, path, body string) {
	ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", c.sign(ts, method, path, body))
	req.Header.Set("ACCESS-TIMESTAMP", ts)
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) get(path, query string, signed bool) ([]byte, error) {
	c.throttle.Wait()

	full := c.baseURL + path
	if query != "" {
		full += "?" + query
	}
	req, err := http.NewRequest(http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		signPath := path
		if query != "" {
			signPath += "?" + query
		}
		c.setAuthHeaders(req, http.MethodGet, signPath, "")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func (c *Client) post(path string, payload interface{}) ([]byte, error) {
	c.throttle.Wait()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setAuthHeaders(req, http.MethodPost, path, string(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, truncate(respBody, 200))
	}
	return respBody, nil
}

// GetCandles fetches candlestick data. The exchange returns rows of
// [timestamp, open, high, low, close, volume]; short or malformed rows are
// skipped. An empty result is not an error.
func (c *Client) GetCandles(symbol, granularity string, limit int) ([]Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("granularity", granularity)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get("/capi/v2/market/candles", q.Encode(), false)
	if err != nil {
		return nil, err
	}

	var rows [][]interface{}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parsing candles: %w", err)
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		candles = append(candles, Candle{
			Timestamp: int64(toFloat(row[0])),
			Open:      toFloat(row[1]),
			High:      toFloat(row[2]),
			Low:       toFloat(row[3]),
			Close:     toFloat(row[4]),
			Volume:    toFloat(row[5]),
		})
	}
	SortCandles(candles)
	return candles, nil
}

// GetTicker fetches the latest ticker for a symbol.
func (c *Client) GetTicker(symbol string) (*Ticker, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	body, err := c.get("/capi/v2/market/ticker", q.Encode(), false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data tickerPayload `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing ticker: %w", err)
	}
	payload := resp.Data
	if payload.Last == "" {
		// Some endpoints return the payload without the data wrapper.
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("parsing ticker: %w", err)
		}
	}

	return &Ticker{
		Symbol:    symbol,
		Last:      parseFloat(payload.Last),
		High24h:   parseFloat(payload.High24h),
		Low24h:    parseFloat(payload.Low24h),
		Volume24h: parseFloat(payload.Volume24h),
	}, nil
}

type tickerPayload struct {
	Last      string `json:"last"`
	High24h   string `json:"high_24h"`
	Low24h    string `json:"low_24h"`
	Volume24h string `json:"volume_24h"`
}

// orderTypeCode maps side/reduce onto WEEX order type codes:
// 1=open_long 2=open_short 3=close_long 4=close_short.
func orderTypeCode(side OrderSide, reduce bool) string {
	switch {
	case side == SideBuy && !reduce:
		return "1"
	case side == SideSell && !reduce:
		return "2"
	case side == SideSell && reduce:
		return "3"
	default:
		return "4"
	}
}

// PlaceOrder submits a market or limit order and returns the order ID.
func (c *Client) PlaceOrder(req OrderRequest) (*OrderResult, error) {
	matchPrice := "1" // market
	price := ""
	if req.Type == OrderLimit {
		matchPrice = "0"
		price = strconv.FormatFloat(req.Price, 'f', -1, 64)
	}

	clientID := req.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("bot_%d", time.Now().UnixNano())
	}

	payload := map[string]string{
		"symbol":      req.Symbol,
		"client_oid":  clientID,
		"size":        strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"type":        orderTypeCode(req.Side, req.Reduce),
		"order_type":  "0",
		"match_price": matchPrice,
	}
	if price != "" {
		payload["price"] = price
	}

	body, err := c.post("/capi/v2/order/placeOrder", payload)
	if err != nil {
		return nil, err
	}

	var result struct {
		OrderID   string `json:"orderId"`
		ClientOID string `json:"client_oid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parsing order response: %w", err)
	}
	if result.OrderID == "" {
		return nil, fmt.Errorf("order rejected: %s", truncate(body, 200))
	}
	return &OrderResult{OrderID: result.OrderID, ClientID: result.ClientOID}, nil
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(symbol, orderID string) error {
	_, err := c.post("/capi/v2/order/cancelOrder", map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	})
	return err
}

// SetLeverage sets the leverage for a symbol. Idempotent on the exchange side.
func (c *Client) SetLeverage(symbol string, leverage int) error {
	_, err := c.post("/capi/v2/account/leverage", map[string]string{
		"symbol":        symbol,
		"leverage":      strconv.Itoa(leverage),
		"side":          "1",
		"marginMode":    "1",
		"positionModel": "1",
	})
	return err
}

// GetAccountBalance returns the USDT futures account snapshot.
func (c *Client) GetAccountBalance() (*AccountBalance, error) {
	body, err := c.get("/capi/v2/account/assets", "", true)
	if err != nil {
		return nil, err
	}

	var assets []struct {
		CoinName      string `json:"coinName"`
		Equity        string `json:"equity"`
		Available     string `json:"available"`
		Frozen        string `json:"frozen"`
		UnrealizedPnL string `json:"unrealizePnl"`
	}
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, fmt.Errorf("parsing assets: %w", err)
	}

	for _, a := range assets {
		if a.CoinName == "USDT" {
			return &AccountBalance{
				Equity:        parseFloat(a.Equity),
				Available:     parseFloat(a.Available),
				Frozen:        parseFloat(a.Frozen),
				UnrealizedPnL: parseFloat(a.UnrealizedPnL),
			}, nil
		}
	}
	return nil, fmt.Errorf("no USDT asset in account response")
}

func toFloat(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseFloat(x)
	default:
		return 0
	}
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
