package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LadderMultipliers are the fixed profit-taking multipliers applied to the
// entry price, in ascending order: +10%, +20%, +50%, +100%.
var LadderMultipliers = [4]float64{1.10, 1.20, 1.50, 2.00}

// ExitStage is one rung of the staged limit-sell ladder.
type ExitStage struct {
	Multiplier float64 `json:"multiplier"`
	Fraction   float64 `json:"fraction"`
	Qty        int64   `json:"qty"`
	LimitPrice float64 `json:"limit_price"`
	OrderID    string  `json:"order_id,omitempty"`
	Filled     bool    `json:"filled"`
}

// PositionRecord tracks one symbol from screener signal to flat. Exactly one
// non-closed record may exist per symbol at any time.
type PositionRecord struct {
	Symbol       string         `json:"symbol"`
	Status       PositionStatus `json:"status"`
	EntryOrderID string         `json:"entry_order_id,omitempty"`
	EntryPrice   float64        `json:"entry_price"`
	ShareQty     int64          `json:"share_qty"`
	ExitStages   []ExitStage    `json:"exit_targets"`
	// PendingTicks counts poll cycles spent waiting for the entry fill.
	PendingTicks       int       `json:"pending_ticks,omitempty"`
	LiquidationOrderID string    `json:"liquidation_order_id,omitempty"`
	RealizedPnL        float64   `json:"realized_pnl"`
	OpenedAt           time.Time `json:"opened_at"`
	ClosedAt           time.Time `json:"closed_at,omitempty"`
}

// RoundCents rounds a price to whole cents.
func RoundCents(price float64) float64 {
	v, _ := decimal.NewFromFloat(price).Round(2).Float64()
	return v
}

// BuildExitStages splits shareQty across the four ladder multipliers using the
// given fractions. Each stage quantity is floored; the final stage receives the
// remainder so the quantities always partition shareQty exactly. Stages sized
// to zero shares are marked filled immediately so they never wait on an order.
func BuildExitStages(entryPrice float64, shareQty int64, fractions []float64) ([]ExitStage, error) {
	if entryPrice <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %v", entryPrice)
	}
	if shareQty < 1 {
		return nil, fmt.Errorf("share quantity must be at least 1, got %d", shareQty)
	}
	if err := ValidateStageFractions(fractions); err != nil {
		return nil, err
	}

	entry := decimal.NewFromFloat(entryPrice)
	stages := make([]ExitStage, len(LadderMultipliers))
	var allocated int64
	for i, mult := range LadderMultipliers {
		qty := int64(float64(shareQty) * fractions[i])
		if i == len(LadderMultipliers)-1 {
			qty = shareQty - allocated
		}
		allocated += qty
		price, _ := entry.Mul(decimal.NewFromFloat(mult)).Round(2).Float64()
		stages[i] = ExitStage{
			Multiplier: mult,
			Fraction:   fractions[i],
			Qty:        qty,
			LimitPrice: price,
			Filled:     qty == 0,
		}
	}
	return stages, nil
}

// ValidateStageFractions checks that the configured quantity fractions cover
// the four ladder stages and sum to 100%.
func ValidateStageFractions(fractions []float64) error {
	if len(fractions) != len(LadderMultipliers) {
		return fmt.Errorf("expected %d stage fractions, got %d", len(LadderMultipliers), len(fractions))
	}
	sum := decimal.Zero
	for i, f := range fractions {
		if f < 0 || f > 1 {
			return fmt.Errorf("stage fraction %d out of range: %v", i, f)
		}
		sum = sum.Add(decimal.NewFromFloat(f))
	}
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("stage fractions must sum to 1.0, got %s", sum)
	}
	return nil
}

// IsActive reports whether the record is still being managed (not closed).
func (p *PositionRecord) IsActive() bool {
	return p.Status != StatusClosed
}

// RemainingQty returns the share quantity not yet exited through the ladder.
func (p *PositionRecord) RemainingQty() int64 {
	remaining := p.ShareQty
	for _, st := range p.ExitStages {
		if st.Filled {
			remaining -= st.Qty
		}
	}
	return remaining
}

// AllStagesFilled reports whether every ladder stage has executed.
func (p *PositionRecord) AllStagesFilled() bool {
	for _, st := range p.ExitStages {
		if !st.Filled {
			return false
		}
	}
	return len(p.ExitStages) > 0
}

// StageByOrderID returns the ladder stage owning the given order ID, or nil.
func (p *PositionRecord) StageByOrderID(orderID string) *ExitStage {
	for i := range p.ExitStages {
		if p.ExitStages[i].OrderID == orderID {
			return &p.ExitStages[i]
		}
	}
	return nil
}

// OpenStageOrderIDs returns order IDs of resting, unfilled ladder stages.
func (p *PositionRecord) OpenStageOrderIDs() []string {
	ids := make([]string, 0, len(p.ExitStages))
	for _, st := range p.ExitStages {
		if !st.Filled && st.OrderID != "" {
			ids = append(ids, st.OrderID)
		}
	}
	return ids
}
