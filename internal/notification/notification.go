// Package notification delivers trading alerts to operators. Telegram is
// the only provider; the Manager fans out so more can be added.
package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Type classifies a notification.
type Type string

const (
	NotifyTradeOpen  Type = "trade_open"
	NotifyTradeClose Type = "trade_close"
	NotifyGrid       Type = "grid"
	NotifyWarning    Type = "warning"
	NotifySummary    Type = "summary"
)

// Notification is one alert to deliver.
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Symbol    string
	PnL       float64
	Timestamp time.Time
}

// Notifier is a delivery provider.
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled provider. It satisfies
// the position engine's notifier contract.
type Manager struct {
	notifiers []Notifier
	log       zerolog.Logger
}

// NewManager creates an empty manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log}
}

// AddNotifier registers a provider.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to every enabled provider. Delivery failures are logged,
// never returned to trading code.
func (m *Manager) Send(n *Notification) {
	for _, notifier := range m.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(n); err != nil {
			m.log.Warn().Err(err).Str("provider", notifier.Name()).Msg("notification delivery failed")
		}
	}
}

// NotifyOpen reports a newly opened position.
func (m *Manager) NotifyOpen(symbol, direction string, entry, sizeUSD float64, leverage int) {
	m.Send(&Notification{
		Type:   NotifyTradeOpen,
		Title:  fmt.Sprintf("OPENED %s %s", direction, symbol),
		Symbol: symbol,
		Message: fmt.Sprintf("Entry: $%.4f\nMargin: $%.2f at %dx",
			entry, sizeUSD, leverage),
		Timestamp: time.Now(),
	})
}

// NotifyClose reports a closed position with its realized P&L.
func (m *Manager) NotifyClose(symbol, reason string, pnlUSD float64) {
	m.Send(&Notification{
		Type:      NotifyTradeClose,
		Title:     fmt.Sprintf("CLOSED %s", symbol),
		Symbol:    symbol,
		Message:   fmt.Sprintf("Reason: %s\nP&L: $%+.2f", reason, pnlUSD),
		PnL:       pnlUSD,
		Timestamp: time.Now(),
	})
}

// NotifyGridPlaced reports a freshly placed ladder.
func (m *Manager) NotifyGridPlaced(symbol string, center float64, buys, sells []float64) {
	m.Send(&Notification{
		Type:   NotifyGrid,
		Title:  fmt.Sprintf("GRID PLACED %s", symbol),
		Symbol: symbol,
		Message: fmt.Sprintf("Center: $%.4f\nBuy rungs: %d, sell rungs: %d",
			center, len(buys), len(sells)),
		Timestamp: time.Now(),
	})
}

// NotifyWarning reports an operator-level warning, e.g. a kill switch.
func (m *Manager) NotifyWarning(message string) {
	m.Send(&Notification{
		Type:      NotifyWarning,
		Title:     "WARNING",
		Message:   message,
		Timestamp: time.Now(),
	})
}

// NotifyDailySummary reports the end-of-day account summary.
func (m *Manager) NotifyDailySummary(equity, dailyPnL float64, trades int, winRate float64) {
	m.Send(&Notification{
		Type:  NotifySummary,
		Title: "DAILY SUMMARY",
		Message: fmt.Sprintf("Equity: $%.2f\nToday's P&L: $%+.2f\nTrades: %d\nWin rate: %.1f%%",
			equity, dailyPnL, trades, winRate),
		PnL:       dailyPnL,
		Timestamp: time.Now(),
	})
}

// TelegramConfig holds the bot credentials.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// TelegramNotifier delivers via the Telegram bot API.
type TelegramNotifier struct {
	cfg    TelegramConfig
	client *http.Client
}

// NewTelegramNotifier creates a Telegram provider. Missing credentials
// leave it disabled.
func NewTelegramNotifier(cfg TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) IsEnabled() bool {
	return t.cfg.Enabled && t.cfg.BotToken != "" && t.cfg.ChatID != ""
}

func (t *TelegramNotifier) Send(n *Notification) error {
	text := fmt.Sprintf("<b>%s</b>\n\n%s\n\n%s",
		n.Title, n.Message, n.Timestamp.Format("15:04:05"))

	payload := map[string]interface{}{
		"chat_id":    t.cfg.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.cfg.BotToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram api status %d", resp.StatusCode)
	}
	return nil
}
