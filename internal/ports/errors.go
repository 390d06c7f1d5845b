package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the orchestrator can classify failures without knowing the backend.
var (
	// ErrTransient marks a screener or broker I/O failure that should be
	// retried on the next tick and is never fatal.
	ErrTransient = errors.New("transient I/O failure")
	// ErrInsufficientData means no usable price exists for a symbol; the
	// signal is skipped for this tick only.
	ErrInsufficientData = errors.New("no price data available")
	// ErrInvariantViolation marks an event that contradicts tracked state
	// (e.g. a fill for an unknown order). The event is logged and ignored.
	ErrInvariantViolation = errors.New("state invariant violation")
	// ErrConfiguration marks invalid or missing configuration. Fatal at
	// startup only.
	ErrConfiguration = errors.New("invalid or missing configuration")

	// Broker specific errors
	ErrBrokerUnavailable    = errors.New("broker API is unavailable")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found at the broker")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// State store specific errors
	ErrSnapshotCorrupt = errors.New("snapshot file is corrupt")
	ErrLockHeld        = errors.New("state lock is held by another process")

	// Journal specific errors
	ErrQueryFailed = errors.New("journal query failed")
)
