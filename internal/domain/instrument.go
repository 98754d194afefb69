package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePrecision is the number of decimal places kept for instrument prices.
const PricePrecision = 8

// Instrument is one row of the ticker table.
type Instrument struct {
	ID           string    `json:"id"`     // e.g. "bitcoin"
	Symbol       string    `json:"symbol"` // e.g. "BTC"
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Change24hPct float64   `json:"change_24h_pct"`
	MarketCap    float64   `json:"market_cap"`
	Volume24h    float64   `json:"volume_24h"`
	LastUpdated  time.Time `json:"last_updated"`
	ImageURL     string    `json:"image_url,omitempty"`
}

// Validate rejects rows that break the price invariant.
func (i Instrument) Validate() error {
	if i.ID == "" {
		return &ValidationError{Field: "id", Reason: "empty"}
	}
	if !(i.Price > 0) {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	return nil
}

// ChangeDirection returns "positive", "negative", or "neutral"
func (i Instrument) ChangeDirection() string {
	switch {
	case i.Change24hPct > 0:
		return "positive"
	case i.Change24hPct < 0:
		return "negative"
	default:
		return "neutral"
	}
}

// RoundPrice rounds a price to PricePrecision decimal places.
func RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(PricePrecision).InexactFloat64()
}

// MarketGlobals holds market-wide aggregates. It is only ever replaced whole.
type MarketGlobals struct {
	TotalMarketCap  float64   `json:"total_market_cap"`
	TotalVolume24h  float64   `json:"total_volume_24h"`
	BTCDominancePct float64   `json:"btc_dominance_pct"`
	ETHDominancePct float64   `json:"eth_dominance_pct"`
	FearGreedIndex  int       `json:"fear_greed_index"` // 0..100
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the globals payload ranges.
func (g MarketGlobals) Validate() error {
	if g.FearGreedIndex < 0 || g.FearGreedIndex > 100 {
		return &ValidationError{Field: "fear_greed_index", Reason: "out of range 0..100"}
	}
	if g.TotalMarketCap < 0 || g.TotalVolume24h < 0 {
		return &ValidationError{Field: "totals", Reason: "negative"}
	}
	return nil
}

// IsZero reports whether no globals have been loaded yet.
func (g MarketGlobals) IsZero() bool {
	return g.UpdatedAt.IsZero() && g.TotalMarketCap == 0
}
