package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"finvizTraderBot/config"
	"finvizTraderBot/internal/domain"
	"finvizTraderBot/internal/ports"
	"finvizTraderBot/internal/positions"
)

// Service orchestrates the bot: it polls the screener once per tick, feeds
// new symbols to the position book, advances the fill simulator in paper
// mode and applies observed executions. The book flushes the snapshot after
// each transition; the service saves once more per cycle to record its
// scheduling state. All trading state lives in the book's snapshot.
type Service struct {
	cfg        *config.Config
	logger     ports.Logger
	screener   ports.Screener
	marketData ports.MarketData
	broker     ports.Broker
	store      ports.SnapshotStore
	book       *positions.Book

	// sim is non-nil only for the paper backend.
	sim ports.FillSimulator

	mu  sync.Mutex
	now func() time.Time
}

// NewService creates the orchestrator. sim may be nil when the live backend
// is configured.
func NewService(
	cfg *config.Config,
	logger ports.Logger,
	screener ports.Screener,
	marketData ports.MarketData,
	broker ports.Broker,
	store ports.SnapshotStore,
	book *positions.Book,
	sim ports.FillSimulator,
) (*Service, error) {
	if cfg == nil || logger == nil || screener == nil || marketData == nil || broker == nil || store == nil || book == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	return &Service{
		cfg:        cfg,
		logger:     logger,
		screener:   screener,
		marketData: marketData,
		broker:     broker,
		store:      store,
		book:       book,
		sim:        sim,
		now:        time.Now,
	}, nil
}

// Start runs the minute loop until the context is cancelled or a shutdown
// signal arrives. Ticks outside the premarket-to-close window and on
// weekends are skipped; once past the close the end-of-day liquidation runs
// exactly once per day.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting trading service", map[string]interface{}{
		"interval": s.cfg.TickInterval.String(),
		"timezone": s.cfg.Timezone,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Trading service stopped")
			return nil
		case <-ticker.C:
			current := s.now().In(s.cfg.Location)
			switch {
			case isWeekend(current):
				s.logger.Debug(ctx, "Weekend, skipping tick")
			case s.withinTradingHours(current):
				if err := s.Tick(ctx); err != nil {
					s.logger.Error(ctx, err, "Tick failed")
				}
			case s.pastClose(current):
				if err := s.RunEOD(ctx); err != nil {
					s.logger.Error(ctx, err, "End-of-day liquidation failed")
				}
			default:
				s.logger.Debug(ctx, "Outside trading hours, skipping tick")
			}
		}
	}
}

// Tick executes one poll cycle. Screener failures are non-fatal: fills and
// pending-entry timeouts are still processed so the book never stalls on a
// bad poll.
func (s *Service) Tick(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mtxTicks.Inc()

	results, err := s.screener.Poll(ctx)
	if err != nil {
		mtxScreenerFailures.Inc()
		s.logger.Warn(ctx, "Screener poll failed, continuing without signals", map[string]interface{}{"error": err.Error()})
		results = nil
	}
	mtxScreenerSymbols.Set(float64(len(results)))

	quotes, err := s.collectQuotes(ctx, results)
	if err != nil {
		s.logger.Warn(ctx, "Quote fetch failed", map[string]interface{}{"error": err.Error()})
	}

	if s.screenerGateOpen(ctx, results) {
		s.handleSignals(ctx, results, quotes)
	} else {
		mtxSignals.WithLabelValues("held").Add(float64(len(results)))
	}
	s.processFills(ctx, quotes)
	s.book.TickPendingEntries(ctx)

	snap := s.book.Snapshot()
	snap.LastTickAt = s.now()
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	return nil
}

// collectQuotes fetches quotes for every symbol this tick touches: screener
// candidates without a listed price plus all actively tracked symbols.
func (s *Service) collectQuotes(ctx context.Context, results []ports.ScreenerResult) (map[string]domain.Quote, error) {
	seen := make(map[string]bool)
	var symbols []string
	for _, r := range results {
		if r.Price <= 0 && !seen[r.Symbol] {
			seen[r.Symbol] = true
			symbols = append(symbols, r.Symbol)
		}
	}
	for _, sym := range s.book.ActiveSymbols() {
		if !seen[sym] {
			seen[sym] = true
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}
	quotes, err := s.marketData.GetQuotes(ctx, symbols)
	if err != nil {
		return map[string]domain.Quote{}, err
	}
	return quotes, nil
}

// screenerGateOpen reports whether screener results may open new positions
// this tick. When the refresh gate is enabled, the first list seen each day
// becomes the baseline and entries stay blocked until a later poll returns a
// different sorted symbol list of at least ScreenerMinSymbols entries. The
// gate state lives in the snapshot so it survives restarts.
func (s *Service) screenerGateOpen(ctx context.Context, results []ports.ScreenerResult) bool {
	if !s.cfg.RequireScreenerRefresh {
		return true
	}

	snap := s.book.Snapshot()
	today := s.now().In(s.cfg.Location).Format("2006-01-02")
	if snap.ScreenerBaselineDate != today {
		snap.ScreenerBaselineDate = today
		snap.ScreenerBaseline = ""
		snap.ScreenerRefreshed = false
	}
	if snap.ScreenerRefreshed {
		return true
	}
	if len(results) == 0 {
		return false
	}

	symbols := make([]string, 0, len(results))
	for _, r := range results {
		symbols = append(symbols, r.Symbol)
	}
	sort.Strings(symbols)
	current := strings.Join(symbols, ",")

	if snap.ScreenerBaseline == "" {
		snap.ScreenerBaseline = current
		s.logger.Info(ctx, "Screener gate locked on first list of the day", map[string]interface{}{
			"symbols": len(symbols),
		})
		return false
	}
	if current != snap.ScreenerBaseline && len(symbols) >= s.cfg.ScreenerMinSymbols {
		snap.ScreenerRefreshed = true
		s.logger.Info(ctx, "Screener gate unlocked, list refreshed", map[string]interface{}{
			"symbols": len(symbols),
		})
		return true
	}
	return false
}

// handleSignals feeds screener results to the book. Errors are isolated per
// symbol so one bad signal never blocks the rest.
func (s *Service) handleSignals(ctx context.Context, results []ports.ScreenerResult, quotes map[string]domain.Quote) {
	snap := s.book.Snapshot()
	for _, r := range results {
		price := r.Price
		if price <= 0 {
			price = quotes[r.Symbol].Last
		}
		hadRecord := snap.Positions[r.Symbol] != nil && snap.Positions[r.Symbol].IsActive()
		if err := s.book.HandleSignal(ctx, r.Symbol, price); err != nil {
			if errors.Is(err, ports.ErrInsufficientData) {
				mtxSignals.WithLabelValues("skipped").Inc()
				continue
			}
			mtxSignals.WithLabelValues("failed").Inc()
			s.logger.Error(ctx, err, "Signal handling failed", map[string]interface{}{"symbol": r.Symbol})
			continue
		}
		if !hadRecord && snap.Positions[r.Symbol] != nil && snap.Positions[r.Symbol].IsActive() {
			mtxSignals.WithLabelValues("entered").Inc()
		} else {
			mtxSignals.WithLabelValues("skipped").Inc()
		}
	}
}

// processFills advances the paper simulator when present, then reconciles
// the status of every outstanding order. Fill application is idempotent, so
// an order observed through both paths is applied once.
func (s *Service) processFills(ctx context.Context, quotes map[string]domain.Quote) {
	if s.sim != nil {
		for _, fill := range s.sim.SimulateMinute(ctx, quotes) {
			s.applyFill(ctx, fill)
		}
	}

	for _, orderID := range s.book.OutstandingOrderIDs() {
		state, err := s.broker.GetStatus(ctx, orderID)
		if err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) {
				s.logger.Warn(ctx, "Outstanding order unknown to broker", map[string]interface{}{"orderID": orderID})
			} else {
				s.logger.Warn(ctx, "Order status query failed", map[string]interface{}{"orderID": orderID, "error": err.Error()})
			}
			continue
		}
		if state.Status != domain.OrderFilled {
			continue
		}
		s.applyFill(ctx, domain.Fill{
			OrderID:   state.ID,
			Symbol:    state.Symbol,
			Side:      state.Side,
			Qty:       state.FillQty,
			Price:     state.FillPrice,
			Timestamp: state.FilledAt,
		})
	}
}

func (s *Service) applyFill(ctx context.Context, fill domain.Fill) {
	if err := s.book.ApplyFill(ctx, fill); err != nil {
		s.logger.Error(ctx, err, "Applying fill failed", map[string]interface{}{
			"symbol":  fill.Symbol,
			"orderID": fill.OrderID,
		})
		return
	}
	mtxFills.WithLabelValues(string(fill.Side)).Inc()
}

// RunEOD force-closes everything still open, once per calendar day. The
// liquidation is priced by the clock: market orders inside the regular
// session, marketable limits after the close. Against a live broker the day
// is only marked done once the book is flat; a run that hits the poll
// deadline leaves the date unset so the next invocation reconciles again.
func (s *Service) RunEOD(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.now().In(s.cfg.Location)
	today := current.Format("2006-01-02")
	snap := s.book.Snapshot()
	if snap.EODDoneDate == today {
		// Liquidation fills that landed after the day was marked done still
		// reconcile here.
		if len(s.book.OutstandingOrderIDs()) > 0 {
			s.processFills(ctx, map[string]domain.Quote{})
			if err := s.store.Save(ctx, snap); err != nil {
				return fmt.Errorf("persisting snapshot after reconciliation: %w", err)
			}
		}
		return nil
	}

	s.logger.Info(ctx, "End-of-day liquidation started", map[string]interface{}{"date": today})
	mtxEODRuns.Inc()

	mode := domain.LiquidateMarketableLimit
	if s.withinRegularSession(current) {
		mode = domain.LiquidateMarket
	}

	quotes := map[string]domain.Quote{}
	if active := s.book.ActiveSymbols(); len(active) > 0 {
		var err error
		quotes, err = s.marketData.GetQuotes(ctx, active)
		if err != nil {
			return fmt.Errorf("fetching quotes for liquidation: %w", err)
		}
	}

	if err := s.book.LiquidateAll(ctx, mode, quotes); err != nil {
		return fmt.Errorf("liquidation: %w", err)
	}

	if s.sim != nil {
		// Limit orders are eligible on the first simulated minute after
		// submission, market orders on the second.
		for i := 0; i < 2; i++ {
			for _, fill := range s.sim.SimulateMinute(ctx, quotes) {
				s.applyFill(ctx, fill)
			}
		}
	} else if !s.pollUntilFlat(ctx, quotes) {
		if err := s.store.Save(ctx, snap); err != nil {
			return fmt.Errorf("persisting snapshot after liquidation: %w", err)
		}
		return nil
	}

	snap.EODDoneDate = today
	if err := s.store.Save(ctx, snap); err != nil {
		return fmt.Errorf("persisting snapshot after liquidation: %w", err)
	}
	s.logger.Info(ctx, "End-of-day liquidation finished", map[string]interface{}{"date": today})
	return nil
}

// pollUntilFlat reconciles live executions until every position is closed or
// the poll deadline passes. It reports whether the book went flat.
func (s *Service) pollUntilFlat(ctx context.Context, quotes map[string]domain.Quote) bool {
	deadline := s.now().Add(s.cfg.EODPollTimeout)
	for {
		s.processFills(ctx, quotes)
		remaining := len(s.book.ActiveSymbols())
		if remaining == 0 {
			return true
		}
		if !s.now().Before(deadline) {
			s.logger.Warn(ctx, "End-of-day poll deadline reached with positions still open", map[string]interface{}{
				"open": remaining,
			})
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.cfg.EODPollInterval):
		}
	}
}

func (s *Service) withinTradingHours(t time.Time) bool {
	offset := clockOffset(t)
	return offset >= s.cfg.PremarketStart && offset <= s.cfg.RegularClose
}

func (s *Service) withinRegularSession(t time.Time) bool {
	offset := clockOffset(t)
	return offset >= s.cfg.RegularOpen && offset <= s.cfg.RegularClose
}

func (s *Service) pastClose(t time.Time) bool {
	return clockOffset(t) > s.cfg.RegularClose
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

// clockOffset returns the duration since local midnight.
func clockOffset(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}
