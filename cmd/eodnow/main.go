// Command eodnow forces the end-of-day liquidation immediately instead of
// waiting for the scheduled cutoff. With -afterhours the remainder is sold
// with marketable limit orders regardless of the clock.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"finvizTraderBot/config"
	"finvizTraderBot/internal/adapters/alpacaclient"
	"finvizTraderBot/internal/adapters/logger"
	"finvizTraderBot/internal/adapters/marketdata"
	"finvizTraderBot/internal/adapters/paperbroker"
	"finvizTraderBot/internal/adapters/sqlite"
	"finvizTraderBot/internal/adapters/statestore"
	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
	"finvizTraderBot/internal/positions"
)

func main() {
	afterHours := flag.Bool("afterhours", false, "force marketable-limit liquidation regardless of the clock")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	lock, err := statestore.AcquireLock(cfg.LockPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to acquire state lock (is the bot running?): %v", err)
	}
	defer func() { _ = lock.Release() }()

	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.JournalDBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open trade journal: %v", err)
	}
	defer func() { _ = journal.Close() }()

	store, err := statestore.New(statestore.Config{Path: cfg.StatePath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize snapshot store: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to load snapshot: %v", err)
	}
	if len(snap.ActivePositions()) == 0 {
		appLogger.Info(ctx, "Nothing to liquidate")
		return
	}

	var (
		broker     ports.Broker
		marketData ports.MarketData
		sim        ports.FillSimulator
	)
	if cfg.BrokerBackend == config.BackendAlpaca {
		alpaca, err := alpacaclient.New(alpacaclient.Config{
			APIKey:    cfg.AlpacaAPIKey,
			APISecret: cfg.AlpacaSecret,
			BaseURL:   cfg.AlpacaBaseURL,
			DataURL:   cfg.AlpacaDataURL,
			Logger:    appLogger,
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize Alpaca client: %v", err)
		}
		broker = alpaca
		marketData = alpaca
	} else {
		paper, err := paperbroker.New(paperbroker.Config{Logger: appLogger})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize paper broker: %v", err)
		}
		broker = paper
		sim = paper
		marketData = marketdata.NewSynthetic(0, appLogger)
	}

	sizer, err := positions.NewSizer(cfg.EntryDollars)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
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
		log.Fatalf("FATAL: Failed to initialize position book: %v", err)
	}

	now := time.Now().In(cfg.Location)
	mode := domain.LiquidateMarketableLimit
	if !*afterHours && withinRegularSession(now, cfg) {
		mode = domain.LiquidateMarket
	}

	quotes := map[string]domain.Quote{}
	if active := book.ActiveSymbols(); len(active) > 0 {
		quotes, err = marketData.GetQuotes(ctx, active)
		if err != nil {
			log.Fatalf("FATAL: Failed to fetch quotes for liquidation: %v", err)
		}
	}

	if err := book.LiquidateAll(ctx, mode, quotes); err != nil {
		log.Fatalf("FATAL: Liquidation failed: %v", err)
	}

	if sim != nil {
		for i := 0; i < 2; i++ {
			for _, fill := range sim.SimulateMinute(ctx, quotes) {
				if err := book.ApplyFill(ctx, fill); err != nil {
					appLogger.Error(ctx, err, "Applying fill failed", map[string]interface{}{"orderID": fill.OrderID})
				}
			}
		}
	} else {
		applyBrokerFills(ctx, appLogger, broker, book)
	}

	snap.EODDoneDate = now.Format("2006-01-02")
	if err := store.Save(ctx, snap); err != nil {
		log.Fatalf("FATAL: Failed to persist snapshot: %v", err)
	}
	appLogger.Info(ctx, "Forced liquidation finished", map[string]interface{}{
		"mode":      string(mode),
		"remaining": len(snap.ActivePositions()),
	})
}

// applyBrokerFills reconciles outstanding order statuses once so fills that
// executed immediately are reflected before the snapshot is written.
func applyBrokerFills(ctx context.Context, appLogger ports.Logger, broker ports.Broker, book *positions.Book) {
	for _, orderID := range book.OutstandingOrderIDs() {
		state, err := broker.GetStatus(ctx, orderID)
		if err != nil {
			if !errors.Is(err, ports.ErrOrderNotFound) {
				appLogger.Warn(ctx, "Order status query failed", map[string]interface{}{"orderID": orderID})
			}
			continue
		}
		if state.Status != domain.OrderFilled {
			continue
		}
		fill := domain.Fill{
			OrderID:   state.ID,
			Symbol:    state.Symbol,
			Side:      state.Side,
			Qty:       state.FillQty,
			Price:     state.FillPrice,
			Timestamp: state.FilledAt,
		}
		if err := book.ApplyFill(ctx, fill); err != nil {
			appLogger.Error(ctx, err, "Applying fill failed", map[string]interface{}{"orderID": orderID})
		}
	}
}

func withinRegularSession(t time.Time, cfg *config.Config) bool {
	offset := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	return offset >= cfg.RegularOpen && offset <= cfg.RegularClose
}
