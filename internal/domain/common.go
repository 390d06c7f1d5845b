package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderKind represents the execution type of an order.
type OrderKind string

const (
	Market OrderKind = "MARKET"
	Limit  OrderKind = "LIMIT"
)

// OrderStatus represents the lifecycle state of an order at the broker.
type OrderStatus string

const (
	OrderSubmitted OrderStatus = "submitted"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
)

// PositionStatus represents the lifecycle state of a tracked position.
type PositionStatus string

const (
	StatusPendingEntry    PositionStatus = "pending_entry"
	StatusOpen            PositionStatus = "open"
	StatusPartiallyExited PositionStatus = "partially_exited"
	StatusClosed          PositionStatus = "closed"
)

// LiquidationMode selects how a forced end-of-day exit is priced.
type LiquidationMode string

const (
	// LiquidateMarket sells the remainder with a market order (regular session).
	LiquidateMarket LiquidationMode = "market"
	// LiquidateMarketableLimit sells with an aggressively priced limit order,
	// used after hours where market orders may be rejected.
	LiquidateMarketableLimit LiquidationMode = "marketable_limit"
)
