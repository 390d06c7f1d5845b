package ports

import (
	"context"

	"finvizTraderBot/internal/domain"
)

// MarketData supplies per-symbol quotes for sizing entries and simulating
// fills. Symbols with no available data are simply absent from the result;
// callers skip them for the tick.
type MarketData interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
}
