package domain

import "time"

// Snapshot is the durable state written after every transition and reloaded
// on restart. Unknown fields in a persisted snapshot are ignored on load so
// the schema can grow without breaking older files.
type Snapshot struct {
	// Positions maps symbol to its tracked record.
	Positions map[string]*PositionRecord `json:"positions"`
	// TradedDates maps symbol to the ISO date it last entered, used to block
	// same-day re-entry after a position fully closes.
	TradedDates map[string]string `json:"traded_dates"`
	// LastTickAt and EODDoneDate carry the orchestrator's scheduling state so
	// restarts are deterministic.
	LastTickAt  time.Time `json:"last_tick_at,omitempty"`
	EODDoneDate string    `json:"eod_done_date,omitempty"`
	// Screener refresh gate: the sorted list captured at the start of the day
	// and whether a changed list has unlocked entries since.
	ScreenerBaselineDate string    `json:"screener_baseline_date,omitempty"`
	ScreenerBaseline     string    `json:"screener_baseline,omitempty"`
	ScreenerRefreshed    bool      `json:"screener_refreshed,omitempty"`
	SavedAt              time.Time `json:"saved_at,omitempty"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Positions:   make(map[string]*PositionRecord),
		TradedDates: make(map[string]string),
	}
}

// ActivePositions returns the records still being managed.
func (s *Snapshot) ActivePositions() map[string]*PositionRecord {
	active := make(map[string]*PositionRecord)
	for sym, rec := range s.Positions {
		if rec.IsActive() {
			active[sym] = rec
		}
	}
	return active
}
