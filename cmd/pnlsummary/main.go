// Command pnlsummary prints the per-symbol realized PnL report for a trading
// day from the journal, optionally exporting it to CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"finvizTraderBot/config"
	"finvizTraderBot/internal/adapters/logger"
	"finvizTraderBot/internal/adapters/sqlite"
	"finvizTraderBot/internal/pnl"
)

func main() {
	dateFlag := flag.String("date", "", "trading day to summarise (YYYY-MM-DD, default today)")
	csvFlag := flag.String("csv", "", "also write the summary to this CSV file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	day := time.Now().In(cfg.Location)
	if *dateFlag != "" {
		day, err = time.ParseInLocation("2006-01-02", *dateFlag, cfg.Location)
		if err != nil {
			log.Fatalf("FATAL: Invalid -date %q: %v", *dateFlag, err)
		}
	}

	journal, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.JournalDBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open trade journal: %v", err)
	}
	defer func() { _ = journal.Close() }()

	events, err := journal.EventsOn(ctx, day)
	if err != nil {
		log.Fatalf("FATAL: Failed to query journal: %v", err)
	}

	summary := pnl.Summarize(day, events)
	fmt.Print(summary.Render())

	if *csvFlag != "" {
		if err := pnl.WriteSummaryCSV(summary, *csvFlag); err != nil {
			log.Fatalf("FATAL: Failed to write CSV: %v", err)
		}
		fmt.Printf("\nSummary written to %s\n", *csvFlag)
	}
}
