// Command fillstoday lists every execution journaled today.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"finvizTraderBot/config"
	"finvizTraderBot/internal/adapters/logger"
	"finvizTraderBot/internal/adapters/sqlite"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.JournalDBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open trade journal: %v", err)
	}
	defer func() { _ = journal.Close() }()

	today := time.Now().In(cfg.Location)
	fills, err := journal.FillsOn(ctx, today)
	if err != nil {
		log.Fatalf("FATAL: Failed to query journal: %v", err)
	}

	fmt.Printf("Fills on %s\n", today.Format("2006-01-02"))
	if len(fills) == 0 {
		fmt.Println("  (none)")
		return
	}
	fmt.Printf("%-20s %-6s %-10s %8s %10s %10s  %s\n",
		"TIME", "SYMBOL", "EVENT", "QTY", "PRICE", "PNL", "ORDER")
	for _, f := range fills {
		fmt.Printf("%-20s %-6s %-10s %8d %10.2f %10.2f  %s\n",
			f.Timestamp.In(cfg.Location).Format("2006-01-02 15:04:05"),
			f.Symbol, f.Event, f.Qty, f.Price, f.PnLDelta, f.OrderID)
	}
}
