package domain

import "time"

// Indicator is the freshness badge rendered by the UI.
type Indicator string

const (
	IndicatorLive     Indicator = "Live"
	IndicatorPartial  Indicator = "Partial data"
	IndicatorDegraded Indicator = "Degraded"
)

// LoadOutcome summarizes the most recent refresh cycle.
type LoadOutcome struct {
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	LastUpdated time.Time `json:"last_updated"` // end of the cycle
	LastSuccess time.Time `json:"last_success"` // last cycle with at least one success
}

// Indicator derives the badge from the counters.
func (o LoadOutcome) Indicator() Indicator {
	switch {
	case o.Failed == 0 && o.Succeeded > 0:
		return IndicatorLive
	case o.Succeeded > 0:
		return IndicatorPartial
	case o.Failed > 0:
		return IndicatorDegraded
	default:
		// nothing loaded yet
		return IndicatorDegraded
	}
}

// Total is the number of sources attempted in the cycle.
func (o LoadOutcome) Total() int {
	return o.Succeeded + o.Failed
}
