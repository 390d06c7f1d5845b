// Package paperbroker implements the broker port with a deterministic
// in-memory fill simulator so strategy and state-machine behavior is exactly
// reproducible from a fixed quote sequence, with no network dependency.
package paperbroker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

const (
	// Market orders are assumed to pay a small spread toward the bar high
	// (buys) or low (sells).
	marketBuySlippage  = 1.001
	marketSellSlippage = 0.999
)

type orderRecord struct {
	req       ports.OrderRequest
	status    domain.OrderStatus
	fillPrice float64
	filledAt  time.Time
	// submitMinute is the simulator minute at submission time. A market
	// order submitted during tick T must fill at tick T+1, never T.
	submitMinute int64
}

// Broker is the paper implementation of ports.Broker and ports.FillSimulator.
type Broker struct {
	logger ports.Logger

	mu     sync.Mutex
	minute int64
	orders map[string]*orderRecord
}

// Config holds configuration for the paper broker.
type Config struct {
	Logger ports.Logger
}

// New creates a paper broker starting at simulated minute zero.
func New(cfg Config) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for the paper broker")
	}
	return &Broker{
		logger: cfg.Logger,
		orders: make(map[string]*orderRecord),
	}, nil
}

// Submit records the order as pending. Nothing fills until a later
// SimulateMinute call.
func (b *Broker) Submit(ctx context.Context, req ports.OrderRequest) (string, error) {
	if req.Qty < 1 {
		return "", fmt.Errorf("%w: quantity must be at least 1", ports.ErrOrderPlacementFailed)
	}
	if req.Kind == domain.Limit && req.LimitPrice <= 0 {
		return "", fmt.Errorf("%w: limit order requires a positive limit price", ports.ErrOrderPlacementFailed)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.orders[id] = &orderRecord{
		req:          req,
		status:       domain.OrderSubmitted,
		submitMinute: b.minute,
	}
	b.logger.Debug(ctx, "Paper order accepted", map[string]interface{}{
		"orderID": id, "symbol": req.Symbol, "side": req.Side, "kind": req.Kind, "qty": req.Qty,
	})
	return id, nil
}

// Cancel removes a pending order. Cancelling a filled order is a no-op.
func (b *Broker) Cancel(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrOrderNotFound, orderID)
	}
	if rec.status == domain.OrderFilled {
		return nil
	}
	rec.status = domain.OrderCancelled
	b.logger.Debug(ctx, "Paper order cancelled", map[string]interface{}{"orderID": orderID})
	return nil
}

// GetStatus returns the current state of an order.
func (b *Broker) GetStatus(ctx context.Context, orderID string) (*ports.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ports.ErrOrderNotFound, orderID)
	}
	state := &ports.OrderState{
		ID:     orderID,
		Symbol: rec.req.Symbol,
		Side:   rec.req.Side,
		Status: rec.status,
	}
	if rec.status == domain.OrderFilled {
		state.FillPrice = rec.fillPrice
		state.FillQty = rec.req.Qty
		state.FilledAt = rec.filledAt
	}
	return state, nil
}

// ListOpenOrders returns the IDs of all still-working orders.
func (b *Broker) ListOpenOrders(ctx context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.orders))
	for id, rec := range b.orders {
		if rec.status == domain.OrderSubmitted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SimulateMinute advances the simulated clock by one minute and applies
// fills from the given quotes. Market orders fill one minute after
// submission at last*1.001 for buys (last*0.999 for sells). Limit sells
// fill at exactly the limit price when the minute midpoint reaches it;
// limit buys symmetrically. Orders fill fully or not at all, and each fill
// is returned exactly once.
func (b *Broker) SimulateMinute(ctx context.Context, quotes map[string]domain.Quote) []domain.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.minute++
	now := time.Now().UTC()

	// Stable iteration keeps fill ordering deterministic for a fixed input.
	ids := make([]string, 0, len(b.orders))
	for id, rec := range b.orders {
		if rec.status == domain.OrderSubmitted {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var fills []domain.Fill
	for _, id := range ids {
		rec := b.orders[id]
		quote, ok := quotes[rec.req.Symbol]
		if !ok {
			continue
		}

		var price float64
		switch rec.req.Kind {
		case domain.Market:
			// The minute of submission never fills a market order.
			if b.minute < rec.submitMinute+2 {
				continue
			}
			if rec.req.Side == domain.Buy {
				price = quote.Last * marketBuySlippage
			} else {
				price = quote.Last * marketSellSlippage
			}
		case domain.Limit:
			mid := quote.Mid()
			if rec.req.Side == domain.Sell {
				if mid < rec.req.LimitPrice {
					continue
				}
			} else {
				if mid > rec.req.LimitPrice {
					continue
				}
			}
			// Conservative: never better than requested.
			price = rec.req.LimitPrice
		default:
			continue
		}

		rec.status = domain.OrderFilled
		rec.fillPrice = price
		rec.filledAt = now
		fills = append(fills, domain.Fill{
			OrderID:   id,
			Symbol:    rec.req.Symbol,
			Side:      rec.req.Side,
			Qty:       rec.req.Qty,
			Price:     price,
			Timestamp: now,
		})
	}

	if len(fills) > 0 {
		b.logger.Debug(ctx, "Simulated fills", map[string]interface{}{"count": len(fills), "minute": b.minute})
	}
	return fills
}
