// Pyrabot - pyramid profit-compounding engine
//
// Watches each active profit chain's cohort P/L and, when the level's
// dollar target is hit, books the profit and rolls into a larger cohort
// at the next level under a tightened stop. The risk governor gates
// every new cohort on balance tier, daily and lifetime loss caps.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/pyrabot/internal/broker"
	"github.com/web3guy0/pyrabot/internal/chain"
	"github.com/web3guy0/pyrabot/internal/config"
	"github.com/web3guy0/pyrabot/internal/engine"
	"github.com/web3guy0/pyrabot/internal/feed"
	"github.com/web3guy0/pyrabot/internal/notify"
	"github.com/web3guy0/pyrabot/internal/risk"
	"github.com/web3guy0/pyrabot/internal/store"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Log.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Bool("simulate_orders", cfg.SimulateOrders).
		Bool("profit_booking", *cfg.ProfitBooking.Enabled).
		Msg("⚡ Pyrabot starting...")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chain store
	st, err := store.Open(cfg.Storage.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open chain store")
	}

	// Broker: the simulator is a drop-in Client picked here at wiring
	// time; the engine never branches on simulation.
	var br broker.Client
	var priceFeed chain.PriceFeed
	if cfg.SimulateOrders {
		sim := broker.NewSimulator(decimal.NewFromInt(10000))
		br = sim
		priceFeed = feed.Direct{Client: sim}
	} else {
		bridgeURL := os.Getenv("BRIDGE_URL")
		if bridgeURL == "" {
			log.Fatal().Msg("BRIDGE_URL is required when simulate_orders is off")
		}
		br = broker.NewBridge(bridgeURL)

		symbols := make([]string, 0, len(cfg.Symbols))
		for sym := range cfg.Symbols {
			symbols = append(symbols, sym)
		}
		poller := feed.NewPoller(br, symbols)
		poller.Start()
		defer poller.Stop()
		priceFeed = poller
	}

	// Risk governor
	policy := risk.NewPolicy(cfg)
	ledger := risk.OpenLedger(cfg.Storage.StatsPath)

	// Notifier
	var notifier notify.Notifier = notify.Discard{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Telegram notifier")
		}
		notifier = tg
	}

	// Engine + recovery
	pip := broker.NewPipCalculator(cfg.Symbols, 0.01)
	eng := engine.New(cfg, st, br, priceFeed, pip, policy, ledger, notifier)

	openTrades, err := br.OpenTrades()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list open trades for recovery")
	}
	if _, err := eng.Recover(openTrades); err != nil {
		log.Fatal().Err(err).Msg("Chain recovery failed")
	}

	// Supervisor loop: one cycle ticks every active chain, each under
	// its own lock so chains progress independently.
	ticker := time.NewTicker(cfg.TickInterval())
	defer ticker.Stop()

	log.Info().Dur("interval", cfg.TickInterval()).Msg("⚡ Supervisor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return
		case <-ticker.C:
			runCycle(ctx, eng, br, ledger)
		}
	}
}

// runCycle snapshots broker truth once and ticks every active chain.
func runCycle(ctx context.Context, eng *engine.Engine, br broker.Client, ledger *risk.Ledger) {
	if err := ledger.RollDay(time.Now()); err != nil {
		log.Error().Err(err).Msg("Day rollover failed")
	}

	openTrades, err := br.OpenTrades()
	if err != nil {
		log.Error().Err(err).Msg("Open trade listing failed, skipping cycle")
		return
	}

	var wg sync.WaitGroup
	for _, id := range eng.ActiveChainIDs() {
		wg.Add(1)
		go func(chainID string) {
			defer wg.Done()
			if err := eng.Tick(ctx, chainID, openTrades); err != nil {
				log.Warn().Err(err).Str("chain_id", chainID).Msg("Tick failed")
			}
		}(id)
	}
	wg.Wait()
}
