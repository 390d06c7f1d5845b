package ports

import "context"

// ScreenerResult is one row of the screener page: a candidate symbol and,
// when the screener lists one, its last price (zero when absent).
type ScreenerResult struct {
	Symbol string
	Price  float64
}

// Screener returns the current set of candidate symbols. Transient failures
// must surface as an error wrapping ErrTransient; the orchestrator treats
// them as an empty result so an outage never blocks management of positions
// that are already open.
type Screener interface {
	Poll(ctx context.Context) ([]ScreenerResult, error)
}
