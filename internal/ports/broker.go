package ports

import (
	"context"
	"time"

	"finvizTraderBot/internal/domain"
)

// OrderRequest describes an order to be submitted through the broker port.
type OrderRequest struct {
	Symbol     string
	Side       domain.OrderSide
	Kind       domain.OrderKind
	LimitPrice float64 // required for limit orders, ignored for market orders
	Qty        int64
	// Tag labels the logical intent of the order (entry, target_10, ...,
	// eod_liquidation) for journaling and idempotent resubmission checks.
	Tag string
}

// OrderState reports the broker's view of a submitted order. FillPrice,
// FillQty and FilledAt are populated only when Status is OrderFilled.
type OrderState struct {
	ID        string
	Symbol    string
	Side      domain.OrderSide
	Status    domain.OrderStatus
	FillPrice float64
	FillQty   int64
	FilledAt  time.Time
}

// Broker is the single capability interface over order execution. Two
// implementations conform: the deterministic paper simulator and the live
// Alpaca adapter, selected at startup by configuration. Live submissions
// always set the extended-hours flag so limit orders can fill after the
// regular session.
type Broker interface {
	// Submit places an order and returns its broker-assigned ID.
	Submit(ctx context.Context, req OrderRequest) (string, error)
	// Cancel removes a pending or resting order. Cancelling an order that
	// has already filled is a no-op.
	Cancel(ctx context.Context, orderID string) error
	// GetStatus returns the current state of an order by ID.
	GetStatus(ctx context.Context, orderID string) (*OrderState, error)
	// ListOpenOrders returns the IDs of all working orders.
	ListOpenOrders(ctx context.Context) ([]string, error)
}

// FillSimulator is the additional capability of the paper broker: advancing
// the simulated clock by one minute and applying fills from the given quotes.
// The orchestrator holds it only when the paper backend is configured.
type FillSimulator interface {
	SimulateMinute(ctx context.Context, quotes map[string]domain.Quote) []domain.Fill
}
