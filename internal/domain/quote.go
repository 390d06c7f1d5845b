package domain

import "time"

// Quote is a per-symbol snapshot of the current minute's prices. Bar fields
// (Open/High/Low/Close) are populated when minute-bar data is available;
// otherwise only Bid/Ask/Last are set.
type Quote struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Timestamp time.Time
}

// Mid returns the minute midpoint used for limit fill checks: the bar
// midpoint (High+Low)/2 when bar data exists, else the bid/ask midpoint,
// else Last.
func (q Quote) Mid() float64 {
	if q.High > 0 && q.Low > 0 {
		return (q.High + q.Low) / 2
	}
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}
