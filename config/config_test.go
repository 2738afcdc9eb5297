package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"weex-trading-bot/internal/bot"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.Weex.DryRun = true
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config must validate in dry-run: %v", err)
	}
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"weex": {"dry_run": true},
		"bot": {"variant": "scalper", "scan_seconds": 30, "position_seconds": 5, "symbols": ["cmt_btcusdt"]},
		"risk": {"max_position_size_usd": 250}
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("BOT_SYMBOLS", "cmt_ethusdt, cmt_solusdt")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Risk.MaxPositionSizeUSD != 250 {
		t.Errorf("file override lost: max size %v", cfg.Risk.MaxPositionSizeUSD)
	}
	if got := cfg.BotConfig().ScanInterval; got != 30*time.Second {
		t.Errorf("scan interval = %v, want 30s", got)
	}
	if len(cfg.Bot.Symbols) != 2 || cfg.Bot.Symbols[0] != "cmt_ethusdt" {
		t.Errorf("env must override file symbols, got %v", cfg.Bot.Symbols)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Auth.AdminUser != "admin" {
		t.Errorf("admin user default = %q", cfg.Auth.AdminUser)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("WEEX_DRY_RUN", "true")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load without file: %v", err)
	}
	if cfg.Bot.Variant != string(bot.VariantScalper) {
		t.Errorf("variant = %q", cfg.Bot.Variant)
	}
	if cfg.Journal.Capacity != 500 {
		t.Errorf("journal capacity = %d", cfg.Journal.Capacity)
	}
}

func TestValidateRejectsUnknownVariant(t *testing.T) {
	cfg := Default()
	cfg.Weex.DryRun = true
	cfg.Bot.Variant = "martingale"
	if err := cfg.validate(); err == nil {
		t.Error("unknown variant must be rejected")
	}
}

func TestValidateGridNeedsSymbol(t *testing.T) {
	cfg := Default()
	cfg.Weex.DryRun = true
	cfg.Bot.Variant = string(bot.VariantGrid)
	cfg.Bot.GridSymbol = ""
	if err := cfg.validate(); err == nil {
		t.Error("grid variant without a symbol must be rejected")
	}
}

func TestValidateAuthRequiresSecrets(t *testing.T) {
	cfg := Default()
	cfg.Weex.DryRun = true
	cfg.Auth.Enabled = true
	if err := cfg.validate(); err == nil {
		t.Error("auth without jwt secret must be rejected")
	}
}

func TestValidateLiveNeedsCredentials(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err == nil {
		t.Error("live mode without credentials or vault must be rejected")
	}
	cfg.Vault.Enabled = true
	if err := cfg.validate(); err != nil {
		t.Errorf("vault-backed live mode must validate: %v", err)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("X_BOOL", "1")
	if !getEnvBool("X_BOOL", false) {
		t.Error("1 must parse as true")
	}
	t.Setenv("X_INT", "not-a-number")
	if getEnvInt("X_INT", 7) != 7 {
		t.Error("bad int must fall back")
	}
	if got := splitList("a, b ,,c"); len(got) != 3 || got[2] != "c" {
		t.Errorf("splitList = %v", got)
	}
}
