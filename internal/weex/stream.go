package weex

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultStreamURL = "wss://ws-contract.weex.com/v2/ws"

// TickerStream subscribes to real-time ticker updates over websocket and
// keeps the latest ticker per symbol. The polling loops read from it first
// and fall back to REST when a symbol has no fresh stream data.
type TickerStream struct {
	mu sync.RWMutex

	url       string
	symbols   []string
	conn      *websocket.Conn
	latest    map[string]Ticker
	updatedAt map[string]time.Time
	stopChan  chan struct{}
	running   bool
	log       zerolog.Logger
}

// NewTickerStream creates a stream for the given symbols. An empty URL
// selects the production endpoint.
func NewTickerStream(url string, symbols []string, log zerolog.Logger) *TickerStream {
	if url == "" {
		url = defaultStreamURL
	}
	return &TickerStream{
		url:       url,
		symbols:   symbols,
		latest:    make(map[string]Ticker),
		updatedAt: make(map[string]time.Time),
		stopChan:  make(chan struct{}),
		log:       log,
	}
}

// Start connects and begins the read loop with automatic reconnection.
func (s *TickerStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.runLoop()
}

// Stop terminates the stream.
func (s *TickerStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
}

// Latest returns the most recent ticker for a symbol and whether it is
// fresh enough to use (under 10s old).
func (s *TickerStream) Latest(symbol string) (Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.latest[symbol]
	if !ok {
		return Ticker{}, false
	}
	if time.Since(s.updatedAt[symbol]) > 10*time.Second {
		return Ticker{}, false
	}
	return t, true
}

func (s *TickerStream) runLoop() {
	backoff := time.Second
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		if err := s.connect(); err != nil {
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("ticker stream connect failed")
			select {
			case <-time.After(backoff):
			case <-s.stopChan:
				return
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		s.readLoop()
	}
}

func (s *TickerStream) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", s.url, err)
	}

	for _, symbol := range s.symbols {
		sub := map[string]interface{}{
			"op":   "subscribe",
			"args": []string{"ticker:" + symbol},
		}
		if err := conn.WriteJSON(sub); err != nil {
			conn.Close()
			return fmt.Errorf("subscribing %s: %w", symbol, err)
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.log.Info().Int("symbols", len(s.symbols)).Msg("ticker stream connected")
	return nil
}

type streamMessage struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		Last      string `json:"last"`
		High24h   string `json:"high_24h"`
		Low24h    string `json:"low_24h"`
		Volume24h string `json:"volume_24h"`
	} `json:"data"`
}

func (s *TickerStream) readLoop() {
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})
	pingTicker := time.NewTicker(20 * time.Second)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := s.conn.ReadMessage()
			if err != nil {
				s.log.Warn().Err(err).Msg("ticker stream read error, reconnecting")
				return
			}
			var msg streamMessage
			if err := json.Unmarshal(raw, &msg); err != nil || msg.Data.Symbol == "" {
				continue
			}
			s.mu.Lock()
			s.latest[msg.Data.Symbol] = Ticker{
				Symbol:    msg.Data.Symbol,
				Last:      parseFloat(msg.Data.Last),
				High24h:   parseFloat(msg.Data.High24h),
				Low24h:    parseFloat(msg.Data.Low24h),
				Volume24h: parseFloat(msg.Data.Volume24h),
			}
			s.updatedAt[msg.Data.Symbol] = time.Now()
			s.mu.Unlock()
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-s.stopChan:
			s.conn.Close()
			return
		case <-pingTicker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.mu.Unlock()
			if err != nil {
				s.conn.Close()
				<-done
				return
			}
		}
	}
}
