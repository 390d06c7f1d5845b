package positions

import (
	"context"
	"fmt"
	"math"

	"finvizTraderBot/internal/ports"
)

// Sizer converts a target dollar allocation into a whole-share quantity.
type Sizer struct {
	entryDollars float64
}

// NewSizer creates a sizer for the given per-position dollar budget.
func NewSizer(entryDollars float64) (*Sizer, error) {
	if entryDollars <= 0 {
		return nil, fmt.Errorf("%w: entry dollars must be positive, got %v", ports.ErrConfiguration, entryDollars)
	}
	return &Sizer{entryDollars: entryDollars}, nil
}

// Shares returns the whole-share quantity the budget buys at the given price,
// rounded down. A quantity below one share means the symbol is too expensive
// for the budget and the caller should skip it.
func (s *Sizer) Shares(ctx context.Context, price float64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: no usable price for sizing", ports.ErrInsufficientData)
	}
	return int64(math.Floor(s.entryDollars / price)), nil
}
