package ports

import (
	"context"
	"time"

	"finvizTraderBot/internal/domain"
)

// SnapshotStore persists the full position snapshot. Save must be atomic: a
// crash mid-write leaves the previous complete snapshot intact. Load of a
// missing file returns an empty snapshot, never an error. The JSON file
// backing is a stand-in for a future embedded store, so nothing outside the
// adapter may assume a file exists.
type SnapshotStore interface {
	Load(ctx context.Context) (*domain.Snapshot, error)
	Save(ctx context.Context, snap *domain.Snapshot) error
}

// Journal event kinds.
const (
	EventEntry    = "entry"
	EventExitFill = "exit_fill"
	EventClose    = "close"
)

// TradeLog is the append-only journal of executions used for PnL summaries
// and fill reports.
type TradeLog interface {
	// RecordEntry journals an entry fill.
	RecordEntry(ctx context.Context, symbol string, ts time.Time, price float64, qty int64, orderID string) error
	// RecordExitFill journals a ladder or liquidation fill with its realized
	// PnL delta against the entry price.
	RecordExitFill(ctx context.Context, symbol string, ts time.Time, price float64, qty int64, pnlDelta float64, orderID string) error
	// RecordClose journals that a position went flat with its total realized PnL.
	RecordClose(ctx context.Context, symbol string, ts time.Time, realized float64) error
	// FillsOn returns the entry and exit fills journaled on the given date.
	FillsOn(ctx context.Context, day time.Time) ([]JournalEvent, error)
	// EventsOn returns every journaled event on the given date, including
	// close summaries, for PnL reporting.
	EventsOn(ctx context.Context, day time.Time) ([]JournalEvent, error)
}

// JournalEvent is one journaled execution event.
type JournalEvent struct {
	ID        int64
	Event     string // entry | exit_fill | close
	Symbol    string
	Timestamp time.Time
	Price     float64
	Qty       int64
	PnLDelta  float64
	OrderID   string
}
