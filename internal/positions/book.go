package positions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
)

// Order tags identifying the logical intent of each submission.
const (
	TagEntry       = "entry"
	TagLiquidation = "eod_liquidation"
)

// Config holds the dependencies and parameters for the position book.
type Config struct {
	Broker  ports.Broker
	Journal ports.TradeLog
	Logger  ports.Logger
	Sizer   *Sizer
	// Store, when set, persists the snapshot after every state transition so
	// a crash loses at most the single transition in flight. Nil disables
	// book-owned persistence.
	Store               ports.SnapshotStore
	StageFractions      []float64
	EntryTimeoutTicks   int
	AfterHoursOffsetBps int
	BlockSameDayReentry bool
	// Now supplies the current time; defaults to time.Now.
	Now func() time.Time
}

// Book is the per-symbol position state machine. It owns every transition
// from screener signal to flat: pending entry, the staged exit ladder, entry
// timeouts and forced end-of-day liquidation. The Book mutates the snapshot
// it was created with and, when a store is configured, writes it back after
// every transition. Book is not safe for concurrent use.
type Book struct {
	cfg  Config
	snap *domain.Snapshot
}

// New creates a position book over the given snapshot.
func New(cfg Config, snap *domain.Snapshot) (*Book, error) {
	if cfg.Broker == nil || cfg.Journal == nil || cfg.Logger == nil || cfg.Sizer == nil {
		return nil, fmt.Errorf("missing required dependencies for Book")
	}
	if snap == nil {
		return nil, fmt.Errorf("snapshot must not be nil")
	}
	if err := domain.ValidateStageFractions(cfg.StageFractions); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfiguration, err)
	}
	if cfg.EntryTimeoutTicks <= 0 {
		return nil, fmt.Errorf("%w: entry timeout ticks must be positive", ports.ErrConfiguration)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Book{cfg: cfg, snap: snap}, nil
}

// Snapshot returns the state the book operates on.
func (b *Book) Snapshot() *domain.Snapshot {
	return b.snap
}

// persist writes the snapshot after a state transition. Each transition is
// flushed individually: a crash between an order submission and the next
// flush loses at most that one transition. Persistence failures are logged,
// not returned; trading continues on the in-memory state.
func (b *Book) persist(ctx context.Context) {
	if b.cfg.Store == nil {
		return
	}
	if err := b.cfg.Store.Save(ctx, b.snap); err != nil {
		b.cfg.Logger.Error(ctx, err, "failed to persist snapshot after transition")
	}
}

// HandleSignal reacts to a symbol appearing on the screener. A symbol with an
// active record, or one that already traded today when same-day re-entry is
// blocked, is a no-op. Otherwise a market buy for the budgeted share quantity
// is submitted and a PENDING_ENTRY record created. Signals without a usable
// price, or sized below one share, are discarded.
func (b *Book) HandleSignal(ctx context.Context, symbol string, price float64) error {
	op := "HandleSignal"
	if rec, ok := b.snap.Positions[symbol]; ok && rec.IsActive() {
		b.cfg.Logger.Debug(ctx, op+": symbol already tracked, ignoring signal", map[string]interface{}{
			"symbol": symbol,
			"status": string(rec.Status),
		})
		return nil
	}
	today := b.cfg.Now().Format("2006-01-02")
	if b.cfg.BlockSameDayReentry && b.snap.TradedDates[symbol] == today {
		b.cfg.Logger.Debug(ctx, op+": symbol already traded today, ignoring signal", map[string]interface{}{"symbol": symbol})
		return nil
	}

	shares, err := b.cfg.Sizer.Shares(ctx, price)
	if err != nil {
		b.cfg.Logger.Debug(ctx, op+": no usable price, discarding signal", map[string]interface{}{"symbol": symbol})
		return err
	}
	if shares < 1 {
		b.cfg.Logger.Info(ctx, op+": budget buys less than one share, discarding signal", map[string]interface{}{
			"symbol": symbol,
			"price":  price,
		})
		return nil
	}

	orderID, err := b.cfg.Broker.Submit(ctx, ports.OrderRequest{
		Symbol: symbol,
		Side:   domain.Buy,
		Kind:   domain.Market,
		Qty:    shares,
		Tag:    TagEntry,
	})
	if err != nil {
		return fmt.Errorf("%s: entry order for %s failed: %w", op, symbol, err)
	}

	b.snap.Positions[symbol] = &domain.PositionRecord{
		Symbol:       symbol,
		Status:       domain.StatusPendingEntry,
		EntryOrderID: orderID,
		OpenedAt:     b.cfg.Now(),
	}
	b.persist(ctx)
	b.cfg.Logger.Info(ctx, op+": placed market buy", map[string]interface{}{
		"symbol":  symbol,
		"shares":  shares,
		"orderID": orderID,
	})
	return nil
}

// ApplyFill advances the state machine with an observed execution. Replayed
// fills are no-ops; fills for orders the book does not track are logged and
// ignored as state violations.
func (b *Book) ApplyFill(ctx context.Context, fill domain.Fill) error {
	op := "ApplyFill"
	rec, ok := b.snap.Positions[fill.Symbol]
	if !ok {
		b.logUnknownFill(ctx, op, fill)
		return nil
	}

	switch {
	case fill.OrderID == rec.EntryOrderID:
		return b.applyEntryFill(ctx, rec, fill)
	case rec.StageByOrderID(fill.OrderID) != nil:
		return b.applyStageFill(ctx, rec, fill)
	case fill.OrderID == rec.LiquidationOrderID && rec.LiquidationOrderID != "":
		return b.applyLiquidationFill(ctx, rec, fill)
	default:
		b.logUnknownFill(ctx, op, fill)
		return nil
	}
}

func (b *Book) logUnknownFill(ctx context.Context, op string, fill domain.Fill) {
	b.cfg.Logger.Warn(ctx, op+": fill for untracked order, ignoring", map[string]interface{}{
		"symbol":  fill.Symbol,
		"orderID": fill.OrderID,
		"error":   ports.ErrInvariantViolation.Error(),
	})
}

// applyEntryFill moves a record from PENDING_ENTRY to OPEN and submits the
// four-stage limit-sell ladder from the filled price and quantity.
func (b *Book) applyEntryFill(ctx context.Context, rec *domain.PositionRecord, fill domain.Fill) error {
	op := "applyEntryFill"
	if rec.Status != domain.StatusPendingEntry {
		// Replay of a fill already applied.
		return nil
	}

	rec.EntryPrice = fill.Price
	rec.ShareQty = fill.Qty
	rec.Status = domain.StatusOpen
	rec.PendingTicks = 0
	rec.OpenedAt = fill.Timestamp

	stages, err := domain.BuildExitStages(rec.EntryPrice, rec.ShareQty, b.cfg.StageFractions)
	if err != nil {
		return fmt.Errorf("%s: building exit ladder for %s: %w", op, rec.Symbol, err)
	}
	for i := range stages {
		if stages[i].Qty == 0 {
			continue
		}
		orderID, err := b.cfg.Broker.Submit(ctx, ports.OrderRequest{
			Symbol:     rec.Symbol,
			Side:       domain.Sell,
			Kind:       domain.Limit,
			LimitPrice: stages[i].LimitPrice,
			Qty:        stages[i].Qty,
			Tag:        stageTag(stages[i].Multiplier),
		})
		if err != nil {
			return fmt.Errorf("%s: placing %s for %s: %w", op, stageTag(stages[i].Multiplier), rec.Symbol, err)
		}
		stages[i].OrderID = orderID
		b.cfg.Logger.Info(ctx, op+": placed limit sell", map[string]interface{}{
			"symbol":  rec.Symbol,
			"tag":     stageTag(stages[i].Multiplier),
			"shares":  stages[i].Qty,
			"price":   stages[i].LimitPrice,
			"orderID": orderID,
		})
	}
	rec.ExitStages = stages

	b.snap.TradedDates[rec.Symbol] = fill.Timestamp.Format("2006-01-02")
	b.persist(ctx)
	if err := b.cfg.Journal.RecordEntry(ctx, rec.Symbol, fill.Timestamp, fill.Price, fill.Qty, fill.OrderID); err != nil {
		b.cfg.Logger.Error(ctx, err, op+": failed to journal entry fill", map[string]interface{}{"symbol": rec.Symbol})
	}
	b.cfg.Logger.Info(ctx, op+": entry filled", map[string]interface{}{
		"symbol": rec.Symbol,
		"price":  fill.Price,
		"shares": fill.Qty,
	})
	return nil
}

func (b *Book) applyStageFill(ctx context.Context, rec *domain.PositionRecord, fill domain.Fill) error {
	op := "applyStageFill"
	stage := rec.StageByOrderID(fill.OrderID)
	if stage.Filled {
		return nil
	}

	stage.Filled = true
	pnlDelta := (fill.Price - rec.EntryPrice) * float64(fill.Qty)
	rec.RealizedPnL += pnlDelta
	rec.Status = domain.StatusPartiallyExited
	b.persist(ctx)

	if err := b.cfg.Journal.RecordExitFill(ctx, rec.Symbol, fill.Timestamp, fill.Price, fill.Qty, pnlDelta, fill.OrderID); err != nil {
		b.cfg.Logger.Error(ctx, err, op+": failed to journal exit fill", map[string]interface{}{"symbol": rec.Symbol})
	}
	b.cfg.Logger.Info(ctx, op+": ladder stage filled", map[string]interface{}{
		"symbol":   rec.Symbol,
		"tag":      stageTag(stage.Multiplier),
		"price":    fill.Price,
		"shares":   fill.Qty,
		"pnlDelta": pnlDelta,
	})

	if rec.AllStagesFilled() {
		b.closeRecord(ctx, rec, fill.Timestamp)
	}
	return nil
}

func (b *Book) applyLiquidationFill(ctx context.Context, rec *domain.PositionRecord, fill domain.Fill) error {
	op := "applyLiquidationFill"
	if rec.Status == domain.StatusClosed {
		return nil
	}

	pnlDelta := (fill.Price - rec.EntryPrice) * float64(fill.Qty)
	rec.RealizedPnL += pnlDelta
	b.persist(ctx)
	if err := b.cfg.Journal.RecordExitFill(ctx, rec.Symbol, fill.Timestamp, fill.Price, fill.Qty, pnlDelta, fill.OrderID); err != nil {
		b.cfg.Logger.Error(ctx, err, op+": failed to journal liquidation fill", map[string]interface{}{"symbol": rec.Symbol})
	}
	b.cfg.Logger.Info(ctx, op+": liquidation filled", map[string]interface{}{
		"symbol":   rec.Symbol,
		"price":    fill.Price,
		"shares":   fill.Qty,
		"pnlDelta": pnlDelta,
	})
	b.closeRecord(ctx, rec, fill.Timestamp)
	return nil
}

func (b *Book) closeRecord(ctx context.Context, rec *domain.PositionRecord, ts time.Time) {
	rec.Status = domain.StatusClosed
	rec.ClosedAt = ts
	b.persist(ctx)
	if err := b.cfg.Journal.RecordClose(ctx, rec.Symbol, ts, rec.RealizedPnL); err != nil {
		b.cfg.Logger.Error(ctx, err, "failed to journal position close", map[string]interface{}{"symbol": rec.Symbol})
	}
	b.cfg.Logger.Info(ctx, "position fully closed", map[string]interface{}{
		"symbol":      rec.Symbol,
		"realizedPnL": rec.RealizedPnL,
	})
}

// TickPendingEntries counts a poll cycle against every unfilled entry order.
// Entries pending longer than the configured timeout are cancelled and their
// records removed so a later signal can retry the symbol.
func (b *Book) TickPendingEntries(ctx context.Context) {
	op := "TickPendingEntries"
	for _, symbol := range b.sortedSymbols() {
		rec := b.snap.Positions[symbol]
		if rec.Status != domain.StatusPendingEntry {
			continue
		}
		rec.PendingTicks++
		if rec.PendingTicks < b.cfg.EntryTimeoutTicks {
			continue
		}
		if err := b.cfg.Broker.Cancel(ctx, rec.EntryOrderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
			b.cfg.Logger.Error(ctx, err, op+": failed to cancel timed-out entry", map[string]interface{}{
				"symbol":  symbol,
				"orderID": rec.EntryOrderID,
			})
			continue
		}
		delete(b.snap.Positions, symbol)
		b.persist(ctx)
		b.cfg.Logger.Info(ctx, op+": entry timed out, order cancelled", map[string]interface{}{
			"symbol": symbol,
			"ticks":  rec.PendingTicks,
		})
	}
}

// LiquidateAll force-closes every active record: pending entries are cancelled
// and dropped, open positions have their unfilled ladder stages cancelled and
// the remaining quantity sold with a single order. During regular hours the
// sale is a market order; after hours a marketable limit priced slightly
// below the last trade so it still executes.
func (b *Book) LiquidateAll(ctx context.Context, mode domain.LiquidationMode, quotes map[string]domain.Quote) error {
	op := "LiquidateAll"
	var errs []error
	for _, symbol := range b.sortedSymbols() {
		rec := b.snap.Positions[symbol]
		switch rec.Status {
		case domain.StatusPendingEntry:
			if err := b.cfg.Broker.Cancel(ctx, rec.EntryOrderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
				b.cfg.Logger.Error(ctx, err, op+": failed to cancel pending entry", map[string]interface{}{"symbol": symbol})
				errs = append(errs, err)
				continue
			}
			delete(b.snap.Positions, symbol)
			b.persist(ctx)
			b.cfg.Logger.Info(ctx, op+": cancelled pending entry", map[string]interface{}{"symbol": symbol})
		case domain.StatusOpen, domain.StatusPartiallyExited:
			if err := b.liquidate(ctx, rec, mode, quotes[symbol]); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (b *Book) liquidate(ctx context.Context, rec *domain.PositionRecord, mode domain.LiquidationMode, quote domain.Quote) error {
	op := "liquidate"
	if rec.LiquidationOrderID != "" {
		// Already submitted, waiting on the fill.
		return nil
	}
	for _, orderID := range rec.OpenStageOrderIDs() {
		if err := b.cfg.Broker.Cancel(ctx, orderID); err != nil && !errors.Is(err, ports.ErrOrderNotFound) {
			return fmt.Errorf("%s: cancelling stage order %s for %s: %w", op, orderID, rec.Symbol, err)
		}
	}

	qty := rec.RemainingQty()
	if qty <= 0 {
		b.closeRecord(ctx, rec, b.cfg.Now())
		return nil
	}

	req := ports.OrderRequest{
		Symbol: rec.Symbol,
		Side:   domain.Sell,
		Kind:   domain.Market,
		Qty:    qty,
		Tag:    TagLiquidation,
	}
	if mode == domain.LiquidateMarketableLimit {
		last := quote.Last
		if last <= 0 {
			return fmt.Errorf("%s: %w: no last price to peg marketable limit for %s", op, ports.ErrInsufficientData, rec.Symbol)
		}
		req.Kind = domain.Limit
		req.LimitPrice = domain.RoundCents(last * (1 - float64(b.cfg.AfterHoursOffsetBps)/10000))
	}

	orderID, err := b.cfg.Broker.Submit(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: liquidation order for %s failed: %w", op, rec.Symbol, err)
	}
	rec.LiquidationOrderID = orderID
	b.persist(ctx)
	b.cfg.Logger.Info(ctx, op+": submitted liquidation order", map[string]interface{}{
		"symbol":  rec.Symbol,
		"shares":  qty,
		"kind":    string(req.Kind),
		"price":   req.LimitPrice,
		"orderID": orderID,
	})
	return nil
}

// OutstandingOrderIDs returns every order ID the book is waiting on: unfilled
// entries, resting ladder stages and in-flight liquidations. Sorted for
// deterministic polling order.
func (b *Book) OutstandingOrderIDs() []string {
	var ids []string
	for _, symbol := range b.sortedSymbols() {
		rec := b.snap.Positions[symbol]
		switch rec.Status {
		case domain.StatusPendingEntry:
			ids = append(ids, rec.EntryOrderID)
		case domain.StatusOpen, domain.StatusPartiallyExited:
			ids = append(ids, rec.OpenStageOrderIDs()...)
			if rec.LiquidationOrderID != "" {
				ids = append(ids, rec.LiquidationOrderID)
			}
		}
	}
	return ids
}

// ActiveSymbols returns the symbols with non-closed records, sorted.
func (b *Book) ActiveSymbols() []string {
	var symbols []string
	for _, symbol := range b.sortedSymbols() {
		if b.snap.Positions[symbol].IsActive() {
			symbols = append(symbols, symbol)
		}
	}
	return symbols
}

func (b *Book) sortedSymbols() []string {
	symbols := make([]string, 0, len(b.snap.Positions))
	for symbol := range b.snap.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// stageTag labels a ladder stage by its profit percentage (target_10 for the
// +10% rung and so on).
func stageTag(multiplier float64) string {
	return fmt.Sprintf("target_%d", int(math.Round(multiplier*100))-100)
}
