package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"finvizTraderBot/config"
	"finvizTraderBot/internal/adapters/alpacaclient"
	"finvizTraderBot/internal/adapters/finviz"
	"finvizTraderBot/internal/adapters/logger"
	"finvizTraderBot/internal/adapters/marketdata"
	"finvizTraderBot/internal/adapters/paperbroker"
	"finvizTraderBot/internal/adapters/sqlite"
	"finvizTraderBot/internal/adapters/statestore"
	"finvizTraderBot/internal/app"
	"finvizTraderBot/internal/ports"
	"finvizTraderBot/internal/positions"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger (stderr plus the configured log file)
	appLogger, err := logger.NewFileLogger(cfg.LogLevel, cfg.LogFilePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "file": cfg.LogFilePath})

	// 3. Acquire the state lock so operational tools cannot mutate state
	// while the bot runs.
	lock, err := statestore.AcquireLock(cfg.LockPath)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to acquire state lock")
		log.Fatalf("FATAL: Failed to acquire state lock: %v", err)
	}
	defer func() {
		if err := lock.Release(); err != nil {
			appLogger.Error(ctx, err, "Error releasing state lock")
		}
	}()

	// 4. Initialize the trade journal
	journal, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.JournalDBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err)
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing trade journal")
		}
	}()
	appLogger.Info(ctx, "Trade journal initialized")

	// 5. Initialize the snapshot store and load state
	store, err := statestore.New(statestore.Config{Path: cfg.StatePath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize snapshot store")
		log.Fatalf("FATAL: Failed to initialize snapshot store: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load snapshot")
		log.Fatalf("FATAL: Failed to load snapshot: %v", err)
	}
	appLogger.Info(ctx, "Snapshot loaded", map[string]interface{}{"positions": len(snap.Positions)})

	// 6. Select the broker backend
	var (
		broker     ports.Broker
		marketData ports.MarketData
		sim        ports.FillSimulator
	)
	switch cfg.BrokerBackend {
	case config.BackendAlpaca:
		alpaca, err := alpacaclient.New(alpacaclient.Config{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaSecret,
			BaseURL:   cfg.AlpacaBaseURL,
			DataURL:   cfg.AlpacaDataURL,
			Logger:    appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Alpaca client")
			log.Fatalf("FATAL: Failed to initialize Alpaca client: %v", err)
		}
		broker = alpaca
		marketData = alpaca
		appLogger.Info(ctx, "Using Alpaca broker backend")
	default:
		paper, err := paperbroker.New(paperbroker.Config{Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize paper broker")
			log.Fatalf("FATAL: Failed to initialize paper broker: %v", err)
		}
		broker = paper
		sim = paper
		marketData = marketdata.NewSynthetic(0, appLogger)
		appLogger.Info(ctx, "Using paper broker backend with synthetic quotes")
	}

	// 7. Initialize the screener gateway
	screener, err := finviz.New(finviz.Config{
		URL:    cfg.FinvizURL,
		Cookie: cfg.FinvizCookie,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize screener client")
		log.Fatalf("FATAL: Failed to initialize screener client: %v", err)
	}

	// 8. Initialize the position book over the loaded snapshot
	sizer, err := positions.NewSizer(cfg.EntryDollars)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position sizer")
		log.Fatalf("FATAL: Failed to initialize position sizer: %v", err)
	}
	book, err := positions.New(positions.Config{
		Broker:              broker,
		Journal:             journal,
		Logger:              appLogger,
		Sizer:               sizer,
		Store:               store,
		StageFractions:      cfg.ExitStageFractions,
		EntryTimeoutTicks:   cfg.EntryTimeoutTicks,
		AfterHoursOffsetBps: cfg.AfterHoursOffsetBps,
		BlockSameDayReentry: cfg.BlockSameDayReentry,
	}, snap)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position book")
		log.Fatalf("FATAL: Failed to initialize position book: %v", err)
	}

	// 9. Initialize the orchestrator service
	service, err := app.NewService(cfg, appLogger, screener, marketData, broker, store, book, sim)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize trading service")
		log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
	}
	appLogger.Info(ctx, "Trading service initialized")

	// 10. Optional metrics listener
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			appLogger.Info(ctx, "Serving metrics", map[string]interface{}{"addr": cfg.MetricsAddr})
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				appLogger.Error(ctx, err, "Metrics listener stopped")
			}
		}()
	}

	// 11. Start the service
	if err := service.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Trading service exited with error")
		log.Fatalf("FATAL: Trading service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
