package pnl

import (
	"encoding/csv"
	"os"
	"strconv"
)

// WriteSummaryCSV exports the per-symbol rows of a day summary as CSV.
func WriteSummaryCSV(summary *DaySummary, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"date", "symbol", "avg_entry", "qty_in", "qty_out", "net_qty", "realized"})

	date := summary.Date.Format("2006-01-02")
	for _, st := range summary.Symbols {
		writer.Write([]string{
			date,
			st.Symbol,
			strconv.FormatFloat(st.AvgEntry(), 'f', 4, 64),
			strconv.FormatInt(st.EntryQty, 10),
			strconv.FormatInt(st.ExitQty, 10),
			strconv.FormatInt(st.NetQty(), 10),
			strconv.FormatFloat(st.Realized, 'f', 2, 64),
		})
	}
	return writer.Error()
}
