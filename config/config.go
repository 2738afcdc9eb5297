package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"weex-trading-bot/internal/api"
	"weex-trading-bot/internal/bot"
	"weex-trading-bot/internal/cache"
	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/grid"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/notification"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/vault"
)

// WeexConfig holds exchange connection settings. Credentials here are the
// development fallback; with Vault enabled they come from the secret store.
type WeexConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
	BaseURL    string `json:"base_url"`
	StreamURL  string `json:"stream_url"`
	DryRun     bool   `json:"dry_run"`
}

// IntelConfig holds market-intelligence provider settings.
type IntelConfig struct {
	CoinGeckoAPIKey string `json:"coingecko_api_key"`
	RefreshSeconds  int    `json:"refresh_seconds"`
}

// SentimentConfig holds the DeepSeek analyzer settings.
type SentimentConfig struct {
	DeepSeekAPIKey string `json:"deepseek_api_key"`
}

// JournalConfig holds decision-journal settings. An empty PostgresDSN
// keeps the journal memory-only.
type JournalConfig struct {
	Capacity    int    `json:"capacity"`
	PostgresDSN string `json:"postgres_dsn"`
}

// BotTimingConfig carries loop cadence in seconds for JSON friendliness.
type BotTimingConfig struct {
	Variant          string   `json:"variant"` // "scalper" or "grid"
	ScanSeconds      int      `json:"scan_seconds"`
	PositionSeconds  int      `json:"position_seconds"`
	Symbols          []string `json:"symbols"`
	GridSymbol       string   `json:"grid_symbol"`
	MinBalance       float64  `json:"min_balance"`
	DailyLossCapPct  float64  `json:"daily_loss_cap_pct"`
}

// Config is the whole application configuration.
type Config struct {
	Weex         WeexConfig                     `json:"weex"`
	Risk         risk.Limits                    `json:"risk"`
	Fusion       fusion.Config                  `json:"fusion"`
	Position     position.Config                `json:"position"`
	Grid         grid.Config                    `json:"grid"`
	Bot          BotTimingConfig                `json:"bot"`
	Intel        IntelConfig                    `json:"intel"`
	Sentiment    SentimentConfig                `json:"sentiment"`
	Journal      JournalConfig                  `json:"journal"`
	Notification notification.TelegramConfig    `json:"telegram"`
	Server       api.ServerConfig               `json:"server"`
	Auth         api.AuthConfig                 `json:"auth"`
	Vault        vault.Config                   `json:"vault"`
	Redis        cache.Config                   `json:"redis"`
	Logging      logging.Config                 `json:"logging"`
}

// Default returns the production defaults for every section.
func Default() *Config {
	return &Config{
		Risk:     risk.DefaultLimits(),
		Fusion:   fusion.DefaultConfig(),
		Position: position.DefaultConfig(),
		Grid:     grid.DefaultConfig(),
		Bot: BotTimingConfig{
			Variant:         string(bot.VariantScalper),
			ScanSeconds:     20,
			PositionSeconds: 5,
			Symbols:         []string{"cmt_btcusdt", "cmt_ethusdt", "cmt_solusdt"},
			GridSymbol:      "cmt_btcusdt",
			MinBalance:      50,
			DailyLossCapPct: 10,
		},
		Intel:   IntelConfig{RefreshSeconds: 120},
		Journal: JournalConfig{Capacity: 500},
		Server:  api.ServerConfig{Host: "0.0.0.0", Port: 8080},
		Logging: logging.Config{Level: "info", JSONFormat: true},
	}
}

// Load reads .env, config.json (when present) and env overrides, in that
// order of increasing precedence.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = "config.json"
	}
	if raw, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BotConfig converts the timing section into the runtime bot config.
func (c *Config) BotConfig() bot.Config {
	return bot.Config{
		Variant:          bot.Variant(c.Bot.Variant),
		ScanInterval:     time.Duration(c.Bot.ScanSeconds) * time.Second,
		PositionInterval: time.Duration(c.Bot.PositionSeconds) * time.Second,
		MinBalance:       c.Bot.MinBalance,
		DailyLossCapPct:  c.Bot.DailyLossCapPct,
	}
}

// ScalperConfig converts the relevant sections into the scalper config.
func (c *Config) ScalperConfig() bot.ScalperConfig {
	cfg := bot.DefaultScalperConfig()
	cfg.Symbols = c.Bot.Symbols
	if c.Intel.RefreshSeconds > 0 {
		cfg.IntelRefresh = time.Duration(c.Intel.RefreshSeconds) * time.Second
	}
	return cfg
}

func (c *Config) validate() error {
	switch bot.Variant(c.Bot.Variant) {
	case bot.VariantScalper, bot.VariantGrid:
	default:
		return fmt.Errorf("unknown bot variant %q", c.Bot.Variant)
	}
	if bot.Variant(c.Bot.Variant) == bot.VariantGrid && c.Bot.GridSymbol == "" {
		return fmt.Errorf("grid variant requires bot.grid_symbol")
	}
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth enabled without auth.jwt_secret")
		}
		if c.Auth.AdminPasswordHash == "" {
			return fmt.Errorf("auth enabled without auth.admin_password_hash")
		}
	}
	if !c.Weex.DryRun && !c.Vault.Enabled && c.Weex.APIKey == "" {
		return fmt.Errorf("live trading requires weex credentials or vault")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Weex.APIKey = getEnv("WEEX_API_KEY", cfg.Weex.APIKey)
	cfg.Weex.SecretKey = getEnv("WEEX_SECRET_KEY", cfg.Weex.SecretKey)
	cfg.Weex.Passphrase = getEnv("WEEX_PASSPHRASE", cfg.Weex.Passphrase)
	cfg.Weex.BaseURL = getEnv("WEEX_BASE_URL", cfg.Weex.BaseURL)
	cfg.Weex.StreamURL = getEnv("WEEX_STREAM_URL", cfg.Weex.StreamURL)
	cfg.Weex.DryRun = getEnvBool("WEEX_DRY_RUN", cfg.Weex.DryRun)

	cfg.Bot.Variant = getEnv("BOT_VARIANT", cfg.Bot.Variant)
	if symbols := os.Getenv("BOT_SYMBOLS"); symbols != "" {
		cfg.Bot.Symbols = splitList(symbols)
	}
	cfg.Bot.GridSymbol = getEnv("BOT_GRID_SYMBOL", cfg.Bot.GridSymbol)
	cfg.Bot.MinBalance = getEnvFloat("BOT_MIN_BALANCE", cfg.Bot.MinBalance)

	cfg.Intel.CoinGeckoAPIKey = getEnv("COINGECKO_API_KEY", cfg.Intel.CoinGeckoAPIKey)
	cfg.Sentiment.DeepSeekAPIKey = getEnv("DEEPSEEK_API_KEY", cfg.Sentiment.DeepSeekAPIKey)

	cfg.Journal.PostgresDSN = getEnv("JOURNAL_POSTGRES_DSN", cfg.Journal.PostgresDSN)

	cfg.Notification.Enabled = getEnvBool("TELEGRAM_ENABLED", cfg.Notification.Enabled)
	cfg.Notification.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Notification.BotToken)
	cfg.Notification.ChatID = getEnv("TELEGRAM_CHAT_ID", cfg.Notification.ChatID)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ProductionMode = getEnvBool("SERVER_PRODUCTION", cfg.Server.ProductionMode)

	cfg.Auth.Enabled = getEnvBool("AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AdminUser = getEnv("AUTH_ADMIN_USER", cfg.Auth.AdminUser)
	cfg.Auth.AdminPasswordHash = getEnv("AUTH_ADMIN_PASSWORD_HASH", cfg.Auth.AdminPasswordHash)
	if cfg.Auth.AdminUser == "" {
		cfg.Auth.AdminUser = "admin"
	}

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", cfg.Vault.Enabled)
	cfg.Vault.Address = getEnv("VAULT_ADDR", cfg.Vault.Address)
	cfg.Vault.Token = getEnv("VAULT_TOKEN", cfg.Vault.Token)
	cfg.Vault.SecretPath = getEnv("VAULT_SECRET_PATH", cfg.Vault.SecretPath)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnv("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSONFormat = getEnvBool("LOG_JSON", cfg.Logging.JSONFormat)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
