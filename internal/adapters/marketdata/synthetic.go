// Package marketdata provides quote sources for sizing entries and
// simulating fills. The synthetic provider keeps paper runs fully
// deterministic: prices derive from the symbol and an internal minute
// counter, never from the wall clock or the network.
package marketdata

import (
	"context"
	"sync"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

// Synthetic generates deterministic per-symbol quotes. Prices drift in a
// small band minute over minute using symbol-derived seeds.
type Synthetic struct {
	basePrice float64
	logger    ports.Logger

	mu     sync.Mutex
	minute int64
}

// NewSynthetic creates a synthetic provider around the given base price.
func NewSynthetic(basePrice float64, logger ports.Logger) *Synthetic {
	if basePrice <= 0 {
		basePrice = 20.0
	}
	return &Synthetic{basePrice: basePrice, logger: logger}
}

func (s *Synthetic) priceFor(symbol string, minute int64) float64 {
	var seed int64
	for _, c := range symbol {
		seed += int64(c)
	}
	variation := float64((minute+seed)%5-2) * 0.01 // ±2% band
	price := s.basePrice + float64(seed%10)
	return price * (1 + variation/10)
}

// GetQuotes returns quotes for the requested symbols, advancing the internal
// minute counter once per call.
func (s *Synthetic) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	s.mu.Lock()
	s.minute++
	minute := s.minute
	s.mu.Unlock()

	quotes := make(map[string]domain.Quote, len(symbols))
	for _, symbol := range symbols {
		last := s.priceFor(symbol, minute)
		prev := s.priceFor(symbol, minute-1)
		high := last
		low := prev
		if prev > last {
			high, low = prev, last
		}
		quotes[symbol] = domain.Quote{
			Symbol: symbol,
			Bid:    last * 0.999,
			Ask:    last * 1.001,
			Last:   last,
			Open:   prev,
			High:   high * 1.001,
			Low:    low * 0.999,
			Close:  last,
		}
	}
	if s.logger != nil {
		s.logger.Debug(ctx, "Generated synthetic quotes", map[string]interface{}{"count": len(quotes), "minute": minute})
	}
	return quotes, nil
}
