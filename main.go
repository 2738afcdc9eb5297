package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weex-trading-bot/config"
	"weex-trading-bot/internal/api"
	"weex-trading-bot/internal/bot"
	"weex-trading-bot/internal/cache"
	"weex-trading-bot/internal/fusion"
	"weex-trading-bot/internal/grid"
	"weex-trading-bot/internal/intel"
	"weex-trading-bot/internal/journal"
	"weex-trading-bot/internal/logging"
	"weex-trading-bot/internal/notification"
	"weex-trading-bot/internal/position"
	"weex-trading-bot/internal/risk"
	"weex-trading-bot/internal/sentiment"
	"weex-trading-bot/internal/vault"
	"weex-trading-bot/internal/weex"
)

const dryRunEquity = 1000

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logging.Setup(cfg.Logging)
	log.Info().Str("variant", cfg.Bot.Variant).Bool("dry_run", cfg.Weex.DryRun).Msg("starting weex trading bot")

	ctx := context.Background()

	// Exchange credentials come from Vault when enabled, config otherwise.
	vaultClient, err := vault.NewClient(cfg.Vault)
	if err != nil {
		log.Fatal().Err(err).Msg("vault client init failed")
	}
	if !cfg.Vault.Enabled {
		vaultClient.Seed(vault.Credentials{
			APIKey:     cfg.Weex.APIKey,
			SecretKey:  cfg.Weex.SecretKey,
			Passphrase: cfg.Weex.Passphrase,
		})
	}

	var exchange weex.Exchange
	if cfg.Weex.DryRun {
		// Real market data, simulated account: public endpoints need no
		// credentials, orders never leave the process.
		log.Warn().Msg("dry-run mode: orders are simulated, no network placement")
		market := weex.NewClient(cfg.Weex.APIKey, cfg.Weex.SecretKey, cfg.Weex.Passphrase, cfg.Weex.BaseURL)
		exchange = weex.NewPaperExchange(market, dryRunEquity)
	} else {
		creds, err := vaultClient.GetCredentials(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("exchange credentials unavailable")
		}
		exchange = weex.NewClient(creds.APIKey, creds.SecretKey, creds.Passphrase, cfg.Weex.BaseURL)
	}

	// Market intelligence.
	responseCache := cache.New(cfg.Redis, logging.Component(log, "cache"))
	gecko := intel.NewCoinGeckoClient(cfg.Intel.CoinGeckoAPIKey, responseCache, logging.Component(log, "coingecko"))
	scanner := intel.NewScanner(gecko, logging.Component(log, "scanner"))
	fearGreed := intel.NewFearGreedClient(logging.Component(log, "feargreed"))

	analyzer := sentiment.New(cfg.Sentiment.DeepSeekAPIKey, logging.Component(log, "sentiment"))
	sentimentFn := func(coin string) sentiment.Result {
		return analyzer.AnalyzeMarket(context.Background(), coin, "")
	}

	fusionEng := fusion.NewEngine(cfg.Fusion, sentimentFn, logging.Component(log, "fusion"))
	riskMgr := risk.NewManager(cfg.Risk, logging.Component(log, "risk"))

	notifier := notification.NewManager(logging.Component(log, "notification"))
	notifier.AddNotifier(notification.NewTelegramNotifier(cfg.Notification))

	// Decision journal, optionally persisted to Postgres.
	var store *journal.Store
	if cfg.Journal.PostgresDSN != "" {
		store, err = journal.NewStore(ctx, cfg.Journal.PostgresDSN)
		if err != nil {
			log.Error().Err(err).Msg("journal store unavailable, continuing memory-only")
			store = nil
		}
	}
	jrnl := journal.New(cfg.Journal.Capacity, store, logging.Component(log, "journal"))

	positions := position.NewEngine(cfg.Position, exchange, riskMgr, notifier, logging.Component(log, "position"))

	// Real-time prices over websocket; polling falls back to REST. The
	// public ticker feed needs no credentials, so dry-run uses it too.
	streamSymbols := cfg.Bot.Symbols
	if bot.Variant(cfg.Bot.Variant) == bot.VariantGrid {
		streamSymbols = []string{cfg.Bot.GridSymbol}
	}
	stream := weex.NewTickerStream(cfg.Weex.StreamURL, streamSymbols, logging.Component(log, "stream"))
	stream.Start()

	var strategy bot.Strategy
	switch bot.Variant(cfg.Bot.Variant) {
	case bot.VariantGrid:
		gridEngine := grid.NewEngine(cfg.Grid, cfg.Bot.GridSymbol, exchange, riskMgr, logging.Component(log, "grid"))
		strategy = bot.NewGridStrategy(cfg.Bot.GridSymbol, gridEngine, exchange, stream, jrnl, log)
	default:
		strategy = bot.NewScalper(cfg.ScalperConfig(), exchange, stream, fusionEng, scanner, fearGreed, positions, jrnl, log)
	}

	trader := bot.New(cfg.BotConfig(), strategy, exchange, riskMgr, positions, jrnl, notifier, log)
	trader.Start()

	server := api.NewServer(cfg.Server, cfg.Auth, exchange, positions, riskMgr, jrnl, trader, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Block until an interrupt, then shut everything down in dependency
	// order: loops first so no new orders race the teardown.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	trader.Stop()
	stream.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown failed")
	}

	if store != nil {
		store.Close()
	}
	if err := responseCache.Close(); err != nil {
		log.Error().Err(err).Msg("cache close failed")
	}
	log.Info().Msg("shutdown complete")
}
