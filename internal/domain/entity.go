package domain

import (
	"time"
)

// InstrumentRecord is the cached copy of an instrument row kept in SQLite.
// It seeds the ticker table when the first authoritative load fails.
type InstrumentRecord struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Symbol       string    `gorm:"index" json:"symbol"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	Change24hPct float64   `gorm:"column:change_24h_pct" json:"change_24h_pct"`
	MarketCap    float64   `json:"market_cap"`
	Volume24h    float64   `gorm:"column:volume_24h" json:"volume_24h"`
	ImageURL     string    `json:"image_url"`
	IconPath     string    `json:"icon_path"`
	Rank         int       `gorm:"column:position;index" json:"rank"` // position in the last table
	LastUpdated  time.Time `json:"last_updated"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToInstrument converts a cached row back into a table row.
func (r InstrumentRecord) ToInstrument() Instrument {
	return Instrument{
		ID:           r.ID,
		Symbol:       r.Symbol,
		Name:         r.Name,
		Price:        r.Price,
		Change24hPct: r.Change24hPct,
		MarketCap:    r.MarketCap,
		Volume24h:    r.Volume24h,
		LastUpdated:  r.LastUpdated,
		ImageURL:     r.ImageURL,
	}
}

// NewInstrumentRecord builds a cache row from a table row.
func NewInstrumentRecord(i Instrument, rank int) InstrumentRecord {
	return InstrumentRecord{
		ID:           i.ID,
		Symbol:       i.Symbol,
		Name:         i.Name,
		Price:        i.Price,
		Change24hPct: i.Change24hPct,
		MarketCap:    i.MarketCap,
		Volume24h:    i.Volume24h,
		ImageURL:     i.ImageURL,
		Rank:         rank,
		LastUpdated:  i.LastUpdated,
	}
}

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Setting keys stored in AppConfig.
const (
	SettingSelectedPair = "selected_pair"
	SettingGlobals      = "market_globals"
)
