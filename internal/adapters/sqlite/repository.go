package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"finvizTraderBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.TradeLog interface using SQLite. It is the
// durable, append-only journal behind the PnL summary and fills reports.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite journal instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_journal.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Trade journal initialized", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS journal_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event TEXT NOT NULL,
		symbol TEXT NOT NULL,
		ts TIMESTAMP NOT NULL,
		price REAL DEFAULT NULL,
		qty INTEGER DEFAULT NULL,
		pnl_delta REAL DEFAULT NULL,
		order_id TEXT DEFAULT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_journal_events_symbol_ts ON journal_events (symbol, ts);
	CREATE INDEX IF NOT EXISTS idx_journal_events_event_ts ON journal_events (event, ts);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing trade journal")
		return r.db.Close()
	}
	return nil
}

// --- TradeLog Implementation ---

// RecordEntry journals an entry fill.
func (r *Repository) RecordEntry(ctx context.Context, symbol string, ts time.Time, price float64, qty int64, orderID string) error {
	return r.insertEvent(ctx, ports.EventEntry, symbol, ts, price, qty, 0, orderID)
}

// RecordExitFill journals a ladder or liquidation fill.
func (r *Repository) RecordExitFill(ctx context.Context, symbol string, ts time.Time, price float64, qty int64, pnlDelta float64, orderID string) error {
	return r.insertEvent(ctx, ports.EventExitFill, symbol, ts, price, qty, pnlDelta, orderID)
}

// RecordClose journals that a position went flat.
func (r *Repository) RecordClose(ctx context.Context, symbol string, ts time.Time, realized float64) error {
	return r.insertEvent(ctx, ports.EventClose, symbol, ts, 0, 0, realized, "")
}

func (r *Repository) insertEvent(ctx context.Context, event, symbol string, ts time.Time, price float64, qty int64, pnlDelta float64, orderID string) error {
	const query = `
	INSERT INTO journal_events (event, symbol, ts, price, qty, pnl_delta, order_id)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	var oid sql.NullString
	if orderID != "" {
		oid = sql.NullString{String: orderID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, event, symbol, ts.UTC(), price, qty, pnlDelta, oid)
	if err != nil {
		return fmt.Errorf("%w: insert %s event for %s: %v", ports.ErrQueryFailed, event, symbol, err)
	}
	r.logger.Debug(ctx, "Journal event recorded", map[string]interface{}{"event": event, "symbol": symbol, "qty": qty})
	return nil
}

// FillsOn returns the entry and exit fills journaled on the given date (UTC).
func (r *Repository) FillsOn(ctx context.Context, day time.Time) ([]ports.JournalEvent, error) {
	const query = `
	SELECT id, event, symbol, ts, COALESCE(price, 0), COALESCE(qty, 0), COALESCE(pnl_delta, 0), COALESCE(order_id, '')
	FROM journal_events
	WHERE event IN (?, ?) AND ts >= ? AND ts < ?
	ORDER BY ts ASC`
	start, end := dayBounds(day)
	return r.queryEvents(ctx, query, ports.EventEntry, ports.EventExitFill, start, end)
}

// EventsOn returns every journal event on the given date (UTC).
func (r *Repository) EventsOn(ctx context.Context, day time.Time) ([]ports.JournalEvent, error) {
	const query = `
	SELECT id, event, symbol, ts, COALESCE(price, 0), COALESCE(qty, 0), COALESCE(pnl_delta, 0), COALESCE(order_id, '')
	FROM journal_events
	WHERE ts >= ? AND ts < ?
	ORDER BY ts ASC`
	start, end := dayBounds(day)
	return r.queryEvents(ctx, query, start, end)
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

func (r *Repository) queryEvents(ctx context.Context, query string, args ...interface{}) ([]ports.JournalEvent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query journal events: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	events := make([]ports.JournalEvent, 0)
	for rows.Next() {
		var ev ports.JournalEvent
		if err := rows.Scan(&ev.ID, &ev.Event, &ev.Symbol, &ev.Timestamp, &ev.Price, &ev.Qty, &ev.PnLDelta, &ev.OrderID); err != nil {
			return nil, fmt.Errorf("failed to scan journal event: %w", err)
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal rows: %w", err)
	}
	return events, nil
}
