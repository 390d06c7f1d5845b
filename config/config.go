package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"finvizTraderBot/internal/adapters/logger" // Import the logger package for LogLevel
	"finvizTraderBot/internal/domain"
)

// Broker backend identifiers.
const (
	BackendPaper  = "paper"
	BackendAlpaca = "alpaca"
)

// Config holds all application configuration.
type Config struct {
	// Screener
	FinvizURL    string
	FinvizCookie string // optional Elite session cookie
	// RequireScreenerRefresh blocks new entries until the screener list has
	// changed from the first list seen that day.
	RequireScreenerRefresh bool
	ScreenerMinSymbols     int // minimum list size for the refresh gate to unlock

	// Broker selection
	BrokerBackend string // paper | alpaca
	AlpacaAPIKey  string
	AlpacaSecret  string
	AlpacaBaseURL string
	AlpacaDataURL string

	// Trading parameters
	EntryDollars        float64   // dollar amount per new position
	ExitStageFractions  []float64 // quantity fraction per ladder stage, must sum to 1.0
	EntryTimeoutTicks   int       // cancel an unfilled entry after this many polls
	AfterHoursOffsetBps int       // marketable-limit discount for after-hours liquidation
	BlockSameDayReentry bool      // block re-entering a symbol that already traded today

	// Session times (local to Timezone), as durations since midnight
	PremarketStart time.Duration
	RegularOpen    time.Duration
	RegularClose   time.Duration
	Timezone       string
	Location       *time.Location

	// Scheduling
	TickInterval time.Duration

	// End-of-day reconciliation against a live broker
	EODPollTimeout  time.Duration
	EODPollInterval time.Duration

	// Paths
	StatePath     string
	LockPath      string
	JournalDBPath string

	// Logging / metrics
	LogLevel    logger.LogLevel
	LogFilePath string
	MetricsAddr string // empty disables the metrics listener
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Screener
	cfg.FinvizURL = getEnv("FINVIZ_URL",
		"https://elite.finviz.com/screener.ashx?v=111&f=sh_curvol_o1000,ta_perf_d15o&ft=4&o=-change&ar=60")
	if cfg.FinvizURL == "" {
		errs = append(errs, "FINVIZ_URL must be set")
	}
	cfg.FinvizCookie = getEnv("FINVIZ_COOKIE", "")
	cfg.RequireScreenerRefresh = getEnvAsBool("FINVIZ_REQUIRE_REFRESH_BEFORE_TRADING", false)
	cfg.ScreenerMinSymbols = getEnvAsInt("FINVIZ_MIN_SYMBOLS", 1)
	if cfg.ScreenerMinSymbols < 1 {
		errs = append(errs, "FINVIZ_MIN_SYMBOLS must be at least 1")
	}

	// Broker selection
	cfg.BrokerBackend = strings.ToLower(getEnv("BROKER_BACKEND", BackendPaper))
	switch cfg.BrokerBackend {
	case BackendPaper:
	case BackendAlpaca:
		cfg.AlpacaAPIKey = getEnv("ALPACA_API_KEY", "")
		cfg.AlpacaSecret = getEnv("ALPACA_API_SECRET", "")
		if cfg.AlpacaAPIKey == "" || cfg.AlpacaSecret == "" {
			errs = append(errs, "ALPACA_API_KEY and ALPACA_API_SECRET must be set for the alpaca backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("BROKER_BACKEND must be %q or %q, got %q", BackendPaper, BackendAlpaca, cfg.BrokerBackend))
	}
	cfg.AlpacaBaseURL = getEnv("ALPACA_API_BASE_URL", "https://paper-api.alpaca.markets")
	cfg.AlpacaDataURL = getEnv("ALPACA_DATA_BASE_URL", "https://data.alpaca.markets")

	// Trading parameters
	cfg.EntryDollars, err = getEnvAsFloatRequired("ENTRY_DOLLARS", 1000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ENTRY_DOLLARS: %v", err))
	} else if cfg.EntryDollars <= 0 {
		errs = append(errs, "ENTRY_DOLLARS must be positive")
	}

	cfg.ExitStageFractions, err = parseFractions(getEnv("EXIT_STAGE_FRACTIONS", "0.25,0.25,0.25,0.25"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXIT_STAGE_FRACTIONS: %v", err))
	} else if fracErr := domain.ValidateStageFractions(cfg.ExitStageFractions); fracErr != nil {
		errs = append(errs, fmt.Sprintf("invalid EXIT_STAGE_FRACTIONS: %v", fracErr))
	}

	cfg.EntryTimeoutTicks, err = getEnvAsIntRequired("ENTRY_TIMEOUT_TICKS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ENTRY_TIMEOUT_TICKS: %v", err))
	} else if cfg.EntryTimeoutTicks <= 0 {
		errs = append(errs, "ENTRY_TIMEOUT_TICKS must be positive")
	}

	cfg.AfterHoursOffsetBps = getEnvAsInt("AFTER_HOURS_OFFSET_BPS", 50)
	if cfg.AfterHoursOffsetBps < 0 || cfg.AfterHoursOffsetBps >= 10000 {
		errs = append(errs, "AFTER_HOURS_OFFSET_BPS must be in [0, 10000)")
	}
	cfg.BlockSameDayReentry = getEnvAsBool("BLOCK_SAME_DAY_REENTRY", true)

	// Session times
	if cfg.PremarketStart, err = parseClockTime(getEnv("PREMARKET_START", "04:00")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid PREMARKET_START: %v", err))
	}
	if cfg.RegularOpen, err = parseClockTime(getEnv("REGULAR_OPEN", "09:30")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid REGULAR_OPEN: %v", err))
	}
	if cfg.RegularClose, err = parseClockTime(getEnv("REGULAR_CLOSE", "16:00")); err != nil {
		errs = append(errs, fmt.Sprintf("invalid REGULAR_CLOSE: %v", err))
	}
	if cfg.PremarketStart >= cfg.RegularClose {
		errs = append(errs, "PREMARKET_START must be before REGULAR_CLOSE")
	}

	cfg.Timezone = getEnv("TIMEZONE", "America/New_York")
	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE %q: %v", cfg.Timezone, err))
	}

	// Scheduling
	tickSeconds := getEnvAsInt("TICK_INTERVAL_SECONDS", 60)
	if tickSeconds <= 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS must be positive")
	}
	cfg.TickInterval = time.Duration(tickSeconds) * time.Second

	// End-of-day reconciliation
	eodTimeout := getEnvAsInt("EOD_POLL_TIMEOUT_SECONDS", 90)
	if eodTimeout <= 0 {
		errs = append(errs, "EOD_POLL_TIMEOUT_SECONDS must be positive")
	}
	cfg.EODPollTimeout = time.Duration(eodTimeout) * time.Second
	eodInterval := getEnvAsInt("EOD_POLL_INTERVAL_SECONDS", 2)
	if eodInterval < 0 {
		errs = append(errs, "EOD_POLL_INTERVAL_SECONDS must not be negative")
	}
	cfg.EODPollInterval = time.Duration(eodInterval) * time.Second

	// Paths
	cfg.StatePath = getEnv("STATE_PATH", "./data/state.json")
	if cfg.StatePath == "" {
		errs = append(errs, "STATE_PATH must be set")
	}
	cfg.LockPath = getEnv("LOCK_PATH", "./data/state.lock")
	cfg.JournalDBPath = getEnv("JOURNAL_DB_PATH", "./data/trade_journal.db")
	if cfg.JournalDBPath == "" {
		errs = append(errs, "JOURNAL_DB_PATH must be set")
	}

	// Logging / metrics
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFilePath = getEnv("LOG_FILE", "./logs/finviz_trader.log")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseClockTime parses "HH:MM" into a duration since midnight.
func parseClockTime(value string) (time.Duration, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", value)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

// parseFractions parses a comma-separated list of floats.
func parseFractions(value string) ([]float64, error) {
	parts := strings.Split(value, ",")
	fractions := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fraction %q: %w", part, err)
		}
		fractions = append(fractions, f)
	}
	return fractions, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
