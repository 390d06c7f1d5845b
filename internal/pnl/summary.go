// Package pnl aggregates journaled trade events into per-symbol and daily
// realized-PnL statistics for the reporting tools.
package pnl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"finvizTraderBot/internal/ports"
)

// SymbolStats holds per-symbol aggregates for one trading day.
type SymbolStats struct {
	Symbol       string
	EntryQty     int64
	EntryCost    float64
	ExitQty      int64
	Realized     float64
	FirstEntryAt time.Time
	LastCloseAt  time.Time
}

// AvgEntry returns the volume-weighted average entry price.
func (s *SymbolStats) AvgEntry() float64 {
	if s.EntryQty == 0 {
		return 0
	}
	return s.EntryCost / float64(s.EntryQty)
}

// NetQty returns shares entered but not yet exited.
func (s *SymbolStats) NetQty() int64 {
	return s.EntryQty - s.ExitQty
}

// DaySummary aggregates a full day's journal.
type DaySummary struct {
	Date          time.Time
	Symbols       []*SymbolStats
	TotalRealized float64
	WinCount      int
	LossCount     int
	FlatCount     int
	AvgWin        float64
	AvgLoss       float64
}

// Summarize folds journal events into a day summary. Close events carry the
// position's total realized PnL; exit fills carry per-fill deltas. Realized
// is taken from exit fills so liquidations and partial exits both count.
func Summarize(day time.Time, events []ports.JournalEvent) *DaySummary {
	bySymbol := make(map[string]*SymbolStats)
	stats := func(symbol string) *SymbolStats {
		st, ok := bySymbol[symbol]
		if !ok {
			st = &SymbolStats{Symbol: symbol}
			bySymbol[symbol] = st
		}
		return st
	}

	for _, ev := range events {
		st := stats(ev.Symbol)
		switch ev.Event {
		case ports.EventEntry:
			st.EntryQty += ev.Qty
			st.EntryCost += ev.Price * float64(ev.Qty)
			if st.FirstEntryAt.IsZero() {
				st.FirstEntryAt = ev.Timestamp
			}
		case ports.EventExitFill:
			st.ExitQty += ev.Qty
			st.Realized += ev.PnLDelta
		case ports.EventClose:
			st.LastCloseAt = ev.Timestamp
		}
	}

	summary := &DaySummary{Date: day}
	var winTotal, lossTotal float64
	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		st := bySymbol[sym]
		summary.Symbols = append(summary.Symbols, st)
		summary.TotalRealized += st.Realized
		switch {
		case st.Realized > 0:
			summary.WinCount++
			winTotal += st.Realized
		case st.Realized < 0:
			summary.LossCount++
			lossTotal += st.Realized
		default:
			summary.FlatCount++
		}
	}
	if summary.WinCount > 0 {
		summary.AvgWin = winTotal / float64(summary.WinCount)
	}
	if summary.LossCount > 0 {
		summary.AvgLoss = lossTotal / float64(summary.LossCount)
	}
	return summary
}

// Render formats the summary as an aligned text table.
func (d *DaySummary) Render() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Summary for %s\n", d.Date.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Symbols: %d | Total realized PnL: %.2f\n", len(d.Symbols), d.TotalRealized))
	sb.WriteString(fmt.Sprintf("Wins: %d | Losses: %d | Flats: %d | Avg win: %.2f | Avg loss: %.2f\n",
		d.WinCount, d.LossCount, d.FlatCount, d.AvgWin, d.AvgLoss))
	sb.WriteString(strings.Repeat("-", 100) + "\n")
	sb.WriteString(fmt.Sprintf("%-8s %10s %8s %8s %8s %12s %22s %22s\n",
		"Symbol", "AvgEntry", "QtyIn", "QtyOut", "NetQty", "Realized", "FirstEntry", "LastClose"))
	for _, st := range d.Symbols {
		firstEntry, lastClose := "-", "-"
		if !st.FirstEntryAt.IsZero() {
			firstEntry = st.FirstEntryAt.UTC().Format(time.RFC3339)
		}
		if !st.LastCloseAt.IsZero() {
			lastClose = st.LastCloseAt.UTC().Format(time.RFC3339)
		}
		sb.WriteString(fmt.Sprintf("%-8s %10.4f %8d %8d %8d %12.2f %22s %22s\n",
			st.Symbol, st.AvgEntry(), st.EntryQty, st.ExitQty, st.NetQty(), st.Realized, firstEntry, lastClose))
	}
	return sb.String()
}
