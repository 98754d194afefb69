package engine

import (
	"time"

	"market_engine/internal/domain"
)

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateLive
	StateRefreshing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoading:
		return "Loading"
	case StateLive:
		return "Live"
	case StateRefreshing:
		return "Refreshing"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Running reports whether commands are accepted in this state.
func (s State) Running() bool {
	return s == StateLoading || s == StateLive || s == StateRefreshing
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a consistent-per-store copy of everything the UI renders.
type Snapshot struct {
	State        State                  `json:"state"`
	SelectedPair string                 `json:"selected_pair"`
	Instruments  []domain.Instrument    `json:"instruments"`
	Globals      domain.MarketGlobals   `json:"globals"`
	OrderBook    domain.OrderBook       `json:"order_book"`
	Trades       []domain.Trade         `json:"trades"`
	Portfolio    domain.Portfolio       `json:"portfolio"`
	OpenOrders   []domain.Order         `json:"open_orders"`
	News         []domain.NewsItem      `json:"news"`
	Education    []domain.EducationItem `json:"education"`
	LoadOutcome  domain.LoadOutcome     `json:"load_outcome"`
	Indicator    domain.Indicator       `json:"indicator"`
	Notice       string                 `json:"notice,omitempty"`
	TakenAt      time.Time              `json:"taken_at"`
}
