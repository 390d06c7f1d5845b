package positions

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockBroker struct {
	nextID    int
	submitted []ports.OrderRequest
	ids       []string
	cancelled []string
	submitErr error
	cancelErr error
}

func (m *mockBroker) Submit(ctx context.Context, req ports.OrderRequest) (string, error) {
	if m.submitErr != nil {
		return "", m.submitErr
	}
	m.nextID++
	id := fmt.Sprintf("ord-%d", m.nextID)
	m.submitted = append(m.submitted, req)
	m.ids = append(m.ids, id)
	return id, nil
}

func (m *mockBroker) Cancel(ctx context.Context, orderID string) error {
	if m.cancelErr != nil {
		return m.cancelErr
	}
	m.cancelled = append(m.cancelled, orderID)
	return nil
}

func (m *mockBroker) GetStatus(ctx context.Context, orderID string) (*ports.OrderState, error) {
	return nil, ports.ErrOrderNotFound
}

func (m *mockBroker) ListOpenOrders(ctx context.Context) ([]string, error) {
	return nil, nil
}

type journalEntry struct {
	event  string
	symbol string
	price  float64
	qty    int64
	pnl    float64
}

type mockJournal struct {
	events []journalEntry
}

func (m *mockJournal) RecordEntry(ctx context.Context, symbol string, ts time.Time, price float64, qty int64, orderID string) error {
	m.events = append(m.events, journalEntry{event: "entry", symbol: symbol, price: price, qty: qty})
	return nil
}

func (m *mockJournal) RecordExitFill(ctx context.Context, symbol string, ts time.Time, price float64, qty int64, pnlDelta float64, orderID string) error {
	m.events = append(m.events, journalEntry{event: "exit_fill", symbol: symbol, price: price, qty: qty, pnl: pnlDelta})
	return nil
}

func (m *mockJournal) RecordClose(ctx context.Context, symbol string, ts time.Time, realized float64) error {
	m.events = append(m.events, journalEntry{event: "close", symbol: symbol, pnl: realized})
	return nil
}

func (m *mockJournal) FillsOn(ctx context.Context, day time.Time) ([]ports.JournalEvent, error) {
	return nil, nil
}

func (m *mockJournal) EventsOn(ctx context.Context, day time.Time) ([]ports.JournalEvent, error) {
	return nil, nil
}

func newTestBook(t *testing.T) (*Book, *mockBroker, *mockJournal, *domain.Snapshot) {
	t.Helper()
	broker := &mockBroker{}
	journal := &mockJournal{}
	sizer, err := NewSizer(1000)
	require.NoError(t, err)
	snap := domain.NewSnapshot()
	book, err := New(Config{
		Broker:              broker,
		Journal:             journal,
		Logger:              &mockLogger{},
		Sizer:               sizer,
		StageFractions:      []float64{0.25, 0.25, 0.25, 0.25},
		EntryTimeoutTicks:   3,
		AfterHoursOffsetBps: 50,
		BlockSameDayReentry: true,
		Now:                 func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) },
	}, snap)
	require.NoError(t, err)
	return book, broker, journal, snap
}

func entryFill(snap *domain.Snapshot, symbol string, price float64, qty int64) domain.Fill {
	return domain.Fill{
		OrderID:   snap.Positions[symbol].EntryOrderID,
		Symbol:    symbol,
		Side:      domain.Buy,
		Qty:       qty,
		Price:     price,
		Timestamp: time.Date(2024, 3, 15, 10, 1, 0, 0, time.UTC),
	}
}

func TestHandleSignal(t *testing.T) {
	ctx := context.Background()

	t.Run("new symbol places sized market buy", func(t *testing.T) {
		book, broker, _, snap := newTestBook(t)
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))

		require.Len(t, broker.submitted, 1)
		req := broker.submitted[0]
		assert.Equal(t, "ABCD", req.Symbol)
		assert.Equal(t, domain.Buy, req.Side)
		assert.Equal(t, domain.Market, req.Kind)
		assert.Equal(t, int64(20), req.Qty)
		assert.Equal(t, TagEntry, req.Tag)

		rec := snap.Positions["ABCD"]
		require.NotNil(t, rec)
		assert.Equal(t, domain.StatusPendingEntry, rec.Status)
		assert.Equal(t, broker.ids[0], rec.EntryOrderID)
	})

	t.Run("repeated signal is a no-op", func(t *testing.T) {
		book, broker, _, _ := newTestBook(t)
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 51.0))
		assert.Len(t, broker.submitted, 1)
	})

	t.Run("signal while open is a no-op", func(t *testing.T) {
		book, broker, _, snap := newTestBook(t)
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
		require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.0, 20)))
		before := len(broker.submitted)
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 52.0))
		assert.Len(t, broker.submitted, before)
	})

	t.Run("budget below one share discards the signal", func(t *testing.T) {
		book, broker, _, snap := newTestBook(t)
		require.NoError(t, book.HandleSignal(ctx, "PRCY", 2500.0))
		assert.Empty(t, broker.submitted)
		assert.Empty(t, snap.Positions)
	})

	t.Run("missing price discards the signal", func(t *testing.T) {
		book, broker, _, _ := newTestBook(t)
		err := book.HandleSignal(ctx, "NOPX", 0)
		assert.ErrorIs(t, err, ports.ErrInsufficientData)
		assert.Empty(t, broker.submitted)
	})

	t.Run("same-day re-entry after close is blocked", func(t *testing.T) {
		book, broker, _, snap := newTestBook(t)
		snap.TradedDates["ABCD"] = "2024-03-15"
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
		assert.Empty(t, broker.submitted)
	})

	t.Run("re-entry on a later day is allowed", func(t *testing.T) {
		book, broker, _, snap := newTestBook(t)
		snap.TradedDates["ABCD"] = "2024-03-14"
		require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
		assert.Len(t, broker.submitted, 1)
	})
}

func TestApplyEntryFill(t *testing.T) {
	ctx := context.Background()
	book, broker, journal, snap := newTestBook(t)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.0, 20)))

	rec := snap.Positions["ABCD"]
	assert.Equal(t, domain.StatusOpen, rec.Status)
	assert.Equal(t, 50.0, rec.EntryPrice)
	assert.Equal(t, int64(20), rec.ShareQty)
	require.Len(t, rec.ExitStages, 4)

	// One entry plus four ladder sells.
	require.Len(t, broker.submitted, 5)
	wantPrices := []float64{55.00, 60.00, 75.00, 100.00}
	wantTags := []string{"target_10", "target_20", "target_50", "target_100"}
	for i, req := range broker.submitted[1:] {
		assert.Equal(t, domain.Sell, req.Side)
		assert.Equal(t, domain.Limit, req.Kind)
		assert.Equal(t, int64(5), req.Qty)
		assert.Equal(t, wantPrices[i], req.LimitPrice)
		assert.Equal(t, wantTags[i], req.Tag)
	}

	assert.Equal(t, "2024-03-15", snap.TradedDates["ABCD"])
	require.Len(t, journal.events, 1)
	assert.Equal(t, "entry", journal.events[0].event)

	// Replaying the entry fill changes nothing.
	require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.0, 20)))
	assert.Len(t, broker.submitted, 5)
	assert.Len(t, journal.events, 1)
}

func TestApplyStageFills(t *testing.T) {
	ctx := context.Background()
	book, _, journal, snap := newTestBook(t)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.0, 20)))
	rec := snap.Positions["ABCD"]

	stageFill := func(i int) domain.Fill {
		return domain.Fill{
			OrderID:   rec.ExitStages[i].OrderID,
			Symbol:    "ABCD",
			Side:      domain.Sell,
			Qty:       rec.ExitStages[i].Qty,
			Price:     rec.ExitStages[i].LimitPrice,
			Timestamp: time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC),
		}
	}

	require.NoError(t, book.ApplyFill(ctx, stageFill(0)))
	assert.Equal(t, domain.StatusPartiallyExited, rec.Status)
	assert.True(t, rec.ExitStages[0].Filled)
	assert.InDelta(t, 25.0, rec.RealizedPnL, 1e-9) // 5 shares * $5

	// Replay is idempotent.
	require.NoError(t, book.ApplyFill(ctx, stageFill(0)))
	assert.InDelta(t, 25.0, rec.RealizedPnL, 1e-9)

	require.NoError(t, book.ApplyFill(ctx, stageFill(1)))
	require.NoError(t, book.ApplyFill(ctx, stageFill(2)))
	require.NoError(t, book.ApplyFill(ctx, stageFill(3)))

	assert.Equal(t, domain.StatusClosed, rec.Status)
	// 5*(5+10+25+50) = 450
	assert.InDelta(t, 450.0, rec.RealizedPnL, 1e-9)

	last := journal.events[len(journal.events)-1]
	assert.Equal(t, "close", last.event)
	assert.InDelta(t, 450.0, last.pnl, 1e-9)
}

func TestApplyFillUnknownOrder(t *testing.T) {
	ctx := context.Background()
	book, _, journal, snap := newTestBook(t)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID: "bogus", Symbol: "ABCD", Side: domain.Sell, Qty: 5, Price: 60.0,
	}))
	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID: "bogus", Symbol: "WXYZ", Side: domain.Sell, Qty: 5, Price: 60.0,
	}))

	assert.Equal(t, domain.StatusPendingEntry, snap.Positions["ABCD"].Status)
	assert.Empty(t, journal.events)
}

func TestTickPendingEntries(t *testing.T) {
	ctx := context.Background()
	book, broker, _, snap := newTestBook(t)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	entryID := snap.Positions["ABCD"].EntryOrderID

	book.TickPendingEntries(ctx)
	book.TickPendingEntries(ctx)
	require.Contains(t, snap.Positions, "ABCD")
	assert.Empty(t, broker.cancelled)

	// Third tick hits the timeout.
	book.TickPendingEntries(ctx)
	assert.NotContains(t, snap.Positions, "ABCD")
	assert.Equal(t, []string{entryID}, broker.cancelled)

	// The symbol can be retried afterwards.
	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	assert.Contains(t, snap.Positions, "ABCD")
}

func TestLiquidateAllAfterHours(t *testing.T) {
	ctx := context.Background()
	book, broker, journal, snap := newTestBook(t)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.0, 20)))
	rec := snap.Positions["ABCD"]

	// Two stages fill before the close; 10 shares remain.
	for i := 0; i < 2; i++ {
		require.NoError(t, book.ApplyFill(ctx, domain.Fill{
			OrderID:   rec.ExitStages[i].OrderID,
			Symbol:    "ABCD",
			Side:      domain.Sell,
			Qty:       rec.ExitStages[i].Qty,
			Price:     rec.ExitStages[i].LimitPrice,
			Timestamp: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		}))
	}

	quotes := map[string]domain.Quote{"ABCD": {Symbol: "ABCD", Last: 50.0}}
	require.NoError(t, book.LiquidateAll(ctx, domain.LiquidateMarketableLimit, quotes))

	// The two resting stages were cancelled.
	assert.ElementsMatch(t, []string{rec.ExitStages[2].OrderID, rec.ExitStages[3].OrderID}, broker.cancelled)

	liq := broker.submitted[len(broker.submitted)-1]
	assert.Equal(t, domain.Sell, liq.Side)
	assert.Equal(t, domain.Limit, liq.Kind)
	assert.Equal(t, int64(10), liq.Qty)
	assert.Equal(t, 49.75, liq.LimitPrice) // 50 * (1 - 50/10000)
	assert.Equal(t, TagLiquidation, liq.Tag)
	require.NotEmpty(t, rec.LiquidationOrderID)

	// Idempotent: a second pass does not submit another order.
	before := len(broker.submitted)
	require.NoError(t, book.LiquidateAll(ctx, domain.LiquidateMarketableLimit, quotes))
	assert.Len(t, broker.submitted, before)

	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID:   rec.LiquidationOrderID,
		Symbol:    "ABCD",
		Side:      domain.Sell,
		Qty:       10,
		Price:     49.75,
		Timestamp: time.Date(2024, 3, 15, 16, 5, 0, 0, time.UTC),
	}))
	assert.Equal(t, domain.StatusClosed, rec.Status)

	last := journal.events[len(journal.events)-1]
	assert.Equal(t, "close", last.event)
}

func TestLiquidateAllCancelsPendingEntries(t *testing.T) {
	ctx := context.Background()
	book, broker, _, snap := newTestBook(t)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	entryID := snap.Positions["ABCD"].EntryOrderID

	require.NoError(t, book.LiquidateAll(ctx, domain.LiquidateMarket, nil))
	assert.NotContains(t, snap.Positions, "ABCD")
	assert.Equal(t, []string{entryID}, broker.cancelled)
}

func TestOutstandingOrderIDs(t *testing.T) {
	ctx := context.Background()
	book, _, _, snap := newTestBook(t)

	assert.Empty(t, book.OutstandingOrderIDs())

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	assert.Equal(t, []string{snap.Positions["ABCD"].EntryOrderID}, book.OutstandingOrderIDs())

	require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.0, 20)))
	assert.Len(t, book.OutstandingOrderIDs(), 4)

	rec := snap.Positions["ABCD"]
	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID: rec.ExitStages[0].OrderID,
		Symbol:  "ABCD",
		Side:    domain.Sell,
		Qty:     rec.ExitStages[0].Qty,
		Price:   rec.ExitStages[0].LimitPrice,
	}))
	assert.Len(t, book.OutstandingOrderIDs(), 3)
}

func TestSizerShares(t *testing.T) {
	ctx := context.Background()
	sizer, err := NewSizer(1000)
	require.NoError(t, err)

	tests := []struct {
		name  string
		price float64
		want  int64
	}{
		{"even split", 50.0, 20},
		{"rounds down", 33.0, 30},
		{"penny stock", 0.99, 1010},
		{"too expensive", 1200.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sizer.Shares(ctx, tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = sizer.Shares(ctx, 0)
	assert.ErrorIs(t, err, ports.ErrInsufficientData)

	_, err = NewSizer(0)
	assert.ErrorIs(t, err, ports.ErrConfiguration)
}

type countingStore struct {
	saves int
}

func (s *countingStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	return domain.NewSnapshot(), nil
}

func (s *countingStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	s.saves++
	return nil
}

func TestBookFlushesEveryTransition(t *testing.T) {
	ctx := context.Background()
	broker := &mockBroker{}
	store := &countingStore{}
	sizer, err := NewSizer(1000)
	require.NoError(t, err)
	snap := domain.NewSnapshot()
	book, err := New(Config{
		Broker:              broker,
		Journal:             &mockJournal{},
		Logger:              &mockLogger{},
		Sizer:               sizer,
		Store:               store,
		StageFractions:      []float64{0.25, 0.25, 0.25, 0.25},
		EntryTimeoutTicks:   3,
		AfterHoursOffsetBps: 50,
		BlockSameDayReentry: true,
		Now:                 func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) },
	}, snap)
	require.NoError(t, err)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	assert.Equal(t, 1, store.saves)

	require.NoError(t, book.ApplyFill(ctx, entryFill(snap, "ABCD", 50.05, 20)))
	assert.Equal(t, 2, store.saves)

	rec := snap.Positions["ABCD"]
	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID: rec.ExitStages[0].OrderID,
		Symbol:  "ABCD",
		Side:    domain.Sell,
		Qty:     rec.ExitStages[0].Qty,
		Price:   rec.ExitStages[0].LimitPrice,
	}))
	assert.Equal(t, 3, store.saves)

	// Replays do not flush again.
	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID: rec.ExitStages[0].OrderID,
		Symbol:  "ABCD",
		Side:    domain.Sell,
		Qty:     rec.ExitStages[0].Qty,
		Price:   rec.ExitStages[0].LimitPrice,
	}))
	assert.Equal(t, 3, store.saves)

	require.NoError(t, book.LiquidateAll(ctx, domain.LiquidateMarket, nil))
	assert.Equal(t, 4, store.saves)

	// The liquidation fill flushes once for the realized PnL and once more
	// when the record closes.
	require.NoError(t, book.ApplyFill(ctx, domain.Fill{
		OrderID: rec.LiquidationOrderID,
		Symbol:  "ABCD",
		Side:    domain.Sell,
		Qty:     rec.RemainingQty(),
		Price:   51.0,
	}))
	assert.Equal(t, 6, store.saves)
	assert.Equal(t, domain.StatusClosed, rec.Status)
}

func TestEntryTimeoutFlushesRemoval(t *testing.T) {
	ctx := context.Background()
	broker := &mockBroker{}
	store := &countingStore{}
	sizer, err := NewSizer(1000)
	require.NoError(t, err)
	snap := domain.NewSnapshot()
	book, err := New(Config{
		Broker:              broker,
		Journal:             &mockJournal{},
		Logger:              &mockLogger{},
		Sizer:               sizer,
		Store:               store,
		StageFractions:      []float64{0.25, 0.25, 0.25, 0.25},
		EntryTimeoutTicks:   2,
		AfterHoursOffsetBps: 50,
		BlockSameDayReentry: true,
		Now:                 func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) },
	}, snap)
	require.NoError(t, err)

	require.NoError(t, book.HandleSignal(ctx, "ABCD", 50.0))
	book.TickPendingEntries(ctx)
	assert.Equal(t, 1, store.saves)

	// The cancellation on the second tick flushes the record's removal.
	book.TickPendingEntries(ctx)
	assert.Nil(t, snap.Positions["ABCD"])
	assert.Equal(t, 2, store.saves)
}
