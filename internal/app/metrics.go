// Prometheus metrics updated by the orchestrator during operation:
//   - bot_ticks_total: poll cycles executed
//   - bot_screener_failures_total: screener polls that failed
//   - bot_screener_symbols: symbols on the last screener poll (gauge)
//   - bot_signals_total{outcome}: screener signals by outcome (entered|skipped|failed)
//   - bot_fills_applied_total{side}: executions applied to the position book
//   - bot_eod_liquidations_total: end-of-day liquidation runs
//
// Registered in init() and served at /metrics when a listen address is
// configured.

package app

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Poll cycles executed",
		},
	)

	mtxScreenerFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_screener_failures_total",
			Help: "Screener polls that failed",
		},
	)

	mtxScreenerSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_screener_symbols",
			Help: "Symbols returned by the last screener poll",
		},
	)

	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_signals_total",
			Help: "Screener signals by outcome",
		},
		[]string{"outcome"}, // entered|skipped|failed
	)

	mtxFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_fills_applied_total",
			Help: "Executions applied to the position book",
		},
		[]string{"side"},
	)

	mtxEODRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_eod_liquidations_total",
			Help: "End-of-day liquidation runs",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTicks, mtxScreenerFailures, mtxScreenerSymbols)
	prometheus.MustRegister(mtxSignals, mtxFills, mtxEODRuns)
}
