package domain

import "time"

// Order is the broker-side view of a working or completed order. The position
// book never holds Order values, only their IDs; the broker port owns the
// authoritative status.
type Order struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Kind       OrderKind
	LimitPrice float64 // zero for market orders
	Qty        int64
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Fill reports a completed execution for an order. Orders fill fully or not
// at all; a given order produces at most one Fill.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      OrderSide
	Qty       int64
	Price     float64
	Timestamp time.Time
}
