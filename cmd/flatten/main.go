// Command flatten cancels every working order and closes every position at
// the broker, then marks the local records closed. Emergency stop for the
// live backend.
package main

import (
	"context"
	"log"
	"time"

	"finvizTraderBot/config"
	"finvizTraderBot/internal/adapters/alpacaclient"
	"finvizTraderBot/internal/adapters/logger"
	"finvizTraderBot/internal/adapters/statestore"
	"finvizTraderBot/internal/domain"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	if cfg.BrokerBackend != config.BackendAlpaca {
		log.Fatalf("FATAL: flatten requires the alpaca backend; the paper broker holds no state outside the bot process")
	}

	lock, err := statestore.AcquireLock(cfg.LockPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to acquire state lock (is the bot running?): %v", err)
	}
	defer func() { _ = lock.Release() }()

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

	if err := alpaca.CancelAllOrders(ctx); err != nil {
		log.Fatalf("FATAL: Failed to cancel orders: %v", err)
	}
	appLogger.Info(ctx, "All working orders cancelled")

	if err := alpaca.CloseAllPositions(ctx); err != nil {
		log.Fatalf("FATAL: Failed to close positions: %v", err)
	}
	appLogger.Info(ctx, "All positions closed at the broker")

	store, err := statestore.New(statestore.Config{Path: cfg.StatePath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize snapshot store: %v", err)
	}
	snap, err := store.Load(ctx)
	if err != nil {
		log.Fatalf("FATAL: Failed to load snapshot: %v", err)
	}

	now := time.Now()
	closed := 0
	for _, rec := range snap.Positions {
		if !rec.IsActive() {
			continue
		}
		rec.Status = domain.StatusClosed
		rec.ClosedAt = now
		closed++
	}
	if err := store.Save(ctx, snap); err != nil {
		log.Fatalf("FATAL: Failed to persist snapshot: %v", err)
	}
	appLogger.Info(ctx, "Local records marked closed", map[string]interface{}{"count": closed})
}
